package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	es8 "github.com/elastic/go-elasticsearch/v8"

	"academic-blog-api/models"
)

type ES struct {
	Client *es8.Client
	Index  string
}

func New(esURL, index string) (*ES, error) {
	es, err := es8.NewClient(es8.Config{Addresses: []string{esURL}, Transport: &http.Transport{}})
	if err != nil {
		return nil, err
	}
	return &ES{Client: es, Index: index}, nil
}

// document is what gets indexed for a published post.
type document struct {
	ID        int64     `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
}

func toDocument(p *models.Post) document {
	d := document{
		ID:        p.ID,
		Slug:      p.Slug,
		Title:     p.Title,
		Content:   p.Content,
		Tags:      p.Tags,
		CreatedAt: p.CreatedAt,
	}
	if p.Summary != nil {
		d.Summary = *p.Summary
	}
	return d
}

const mapping = `{
  "mappings": {
    "properties": {
      "slug":       {"type":"keyword"},
      "title":      {"type":"text"},
      "summary":    {"type":"text"},
      "content":    {"type":"text"},
      "tags":       {"type":"keyword"},
      "created_at": {"type":"date"}
    }
  }
}`

// EnsureIndex creates the index; an existing index is not an error.
func (e *ES) EnsureIndex(ctx context.Context) error {
	res, err := e.Client.Indices.Create(e.Index,
		e.Client.Indices.Create.WithBody(bytes.NewBufferString(mapping)),
		e.Client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if !res.IsError() {
		return nil
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("create index %s: [%d] %w", e.Index, res.StatusCode, err)
	}
	if indexExists(res.StatusCode, body) {
		return nil
	}
	return fmt.Errorf("create index %s: [%d] %s", e.Index, res.StatusCode, body)
}

// indexExists reports whether a failed create was rejected only because the
// index is already there.
func indexExists(status int, body []byte) bool {
	return status == http.StatusBadRequest && bytes.Contains(body, []byte("resource_already_exists_exception"))
}

// IndexPost upserts the post document.
func (e *ES) IndexPost(ctx context.Context, p *models.Post) error {
	b, err := json.Marshal(toDocument(p))
	if err != nil {
		return err
	}
	res, err := e.Client.Index(e.Index, bytes.NewReader(b),
		e.Client.Index.WithDocumentID(strconv.FormatInt(p.ID, 10)),
		e.Client.Index.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index post %d: %s", p.ID, res.String())
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}

// DeletePost removes the document; a missing document is not an error.
func (e *ES) DeletePost(ctx context.Context, id int64) error {
	res, err := e.Client.Delete(e.Index, strconv.FormatInt(id, 10), e.Client.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete post %d: %s", id, res.String())
	}
	return nil
}

func (e *ES) Search(ctx context.Context, q string, limit int) ([]models.SearchHit, error) {
	return e.run(ctx, searchQuery(q, limit))
}

// Related finds posts sharing at least one tag, excluding excludeID.
func (e *ES) Related(ctx context.Context, tags []string, excludeID int64, limit int) ([]models.SearchHit, error) {
	if len(tags) == 0 {
		return []models.SearchHit{}, nil
	}
	return e.run(ctx, relatedQuery(tags, excludeID, limit))
}

func (e *ES) run(ctx context.Context, body map[string]any) ([]models.SearchHit, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	res, err := e.Client.Search(
		e.Client.Search.WithContext(ctx),
		e.Client.Search.WithIndex(e.Index),
		e.Client.Search.WithBody(bytes.NewReader(b)),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search %s: %s", e.Index, res.String())
	}
	return decodeHits(res.Body)
}

func searchQuery(q string, limit int) map[string]any {
	return map[string]any{
		"size": limit,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"title^2", "summary", "content", "tags"},
			},
		},
	}
}

func relatedQuery(tags []string, excludeID int64, limit int) map[string]any {
	return map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{
				"must_not": []any{
					map[string]any{"ids": map[string]any{"values": []string{strconv.FormatInt(excludeID, 10)}}},
				},
				"should": []any{
					map[string]any{"terms": map[string]any{"tags": tags}},
				},
				"minimum_should_match": 1,
			},
		},
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64  `json:"_score"`
			Source document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func decodeHits(r io.Reader) ([]models.SearchHit, error) {
	var resp searchResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	out := make([]models.SearchHit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		out = append(out, models.SearchHit{
			ID:      h.Source.ID,
			Slug:    h.Source.Slug,
			Title:   h.Source.Title,
			Summary: h.Source.Summary,
			Tags:    h.Source.Tags,
			Score:   h.Score,
		})
	}
	return out, nil
}
