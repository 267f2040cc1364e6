// Package events publishes post lifecycle notifications over NATS.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"academic-blog-api/models"
)

const (
	SubjectCreated = "post.created"
	SubjectUpdated = "post.updated"
	SubjectDeleted = "post.deleted"
)

type PostEvent struct {
	PostID    int64  `json:"post_id"`
	Slug      string `json:"slug"`
	AuthorID  int64  `json:"author_id"`
	Published bool   `json:"published"`
	Timestamp string `json:"timestamp"`
}

func NewPostEvent(p *models.Post, at time.Time) PostEvent {
	return PostEvent{
		PostID:    p.ID,
		Slug:      p.Slug,
		AuthorID:  p.CreatedByID,
		Published: p.Published,
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}

type Publisher struct {
	conn *nats.Conn
}

func Connect(url string) (*Publisher, error) {
	conn, err := nats.Connect(url, nats.Name("academic-blog-api"))
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn}, nil
}

func (p *Publisher) Publish(subject string, event PostEvent) error {
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.conn.Publish(subject, b)
}

// Subscribe delivers every post.* event to handler.
func (p *Publisher) Subscribe(handler func(subject string, event PostEvent)) (*nats.Subscription, error) {
	return p.conn.Subscribe("post.*", func(msg *nats.Msg) {
		var ev PostEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		handler(msg.Subject, ev)
	})
}

// Invalidator drops cached copies of a post.
type Invalidator interface {
	Invalidate(ctx context.Context, id int64, slugs ...string) error
}

// Listener returns a Subscribe handler that logs every event and, when inv is
// set, evicts the cached post on updates and deletes.
func Listener(ctx context.Context, logger *slog.Logger, inv Invalidator) func(subject string, event PostEvent) {
	return func(subject string, ev PostEvent) {
		logger.Info("post event", "subject", subject, "post_id", ev.PostID, "slug", ev.Slug)
		if inv == nil || (subject != SubjectUpdated && subject != SubjectDeleted) {
			return
		}
		if err := inv.Invalidate(ctx, ev.PostID, ev.Slug); err != nil {
			logger.Warn("cache invalidate failed", "subject", subject, "post_id", ev.PostID, "err", err)
		}
	}
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}
