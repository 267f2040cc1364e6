package service_test

import (
	"context"
	"slices"
	"sync"
	"time"

	"academic-blog-api/events"
	"academic-blog-api/models"
	"academic-blog-api/slug"
)

// memStore mirrors repository.PostRepo over maps.
type memStore struct {
	mu     sync.Mutex
	posts  map[int64]*models.Post
	users  map[int64]*models.User
	nextID int64
	clock  time.Time
	calls  int
}

func newMemStore() *memStore {
	return &memStore{
		posts: map[int64]*models.Post{},
		users: map[int64]*models.User{},
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *memStore) addUser(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.users[m.nextID] = &models.User{ID: m.nextID, Name: name, Email: name + "@example.com"}
	return m.nextID
}

func (m *memStore) withAuthor(p *models.Post) *models.Post {
	cp := *p
	cp.Tags = slices.Clone(p.Tags)
	u := m.users[p.CreatedByID]
	cp.Author = &models.Author{ID: u.ID, Name: u.Name, Image: u.Image}
	return &cp
}

func (m *memStore) Create(_ context.Context, in models.NewPost, base string) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	var taken []string
	for _, p := range m.posts {
		taken = append(taken, p.Slug)
	}
	m.nextID++
	p := &models.Post{
		ID:            m.nextID,
		Title:         in.Title,
		Content:       in.Content,
		Summary:       in.Summary,
		Slug:          slug.Next(base, taken),
		Published:     in.Published,
		FeaturedImage: in.FeaturedImage,
		Tags:          in.Tags,
		CreatedByID:   in.CreatedByID,
		CreatedAt:     m.tick(),
	}
	m.posts[p.ID] = p
	cp := *p
	return &cp, nil
}

func (m *memStore) GuestUserID(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for _, u := range m.users {
		if u.Email == models.GuestEmail {
			return u.ID, nil
		}
	}
	m.nextID++
	m.users[m.nextID] = &models.User{ID: m.nextID, Name: models.GuestName, Email: models.GuestEmail}
	return m.nextID, nil
}

func (m *memStore) guestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.users {
		if u.Email == models.GuestEmail {
			n++
		}
	}
	return n
}

func (m *memStore) Update(_ context.Context, id, owner int64, ch models.PostChanges) (*models.Post, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	p, ok := m.posts[id]
	if !ok || p.CreatedByID != owner {
		return nil, "", models.ErrDenied
	}
	if ch.Slug != nil {
		for _, other := range m.posts {
			if other.ID != id && other.Slug == *ch.Slug {
				return nil, "", models.ErrConflict
			}
		}
	}
	old := p.Slug
	p.Title, p.Content, p.Published = ch.Title, ch.Content, ch.Published
	if ch.Summary != nil {
		p.Summary = ch.Summary
	}
	if ch.Slug != nil {
		p.Slug = *ch.Slug
	}
	if ch.FeaturedImage != nil {
		p.FeaturedImage = ch.FeaturedImage
	}
	if ch.Tags != nil {
		p.Tags = *ch.Tags
	}
	now := m.tick()
	p.UpdatedAt = &now
	cp := *p
	return &cp, old, nil
}

func (m *memStore) Delete(_ context.Context, id, owner int64) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	p, ok := m.posts[id]
	if !ok || p.CreatedByID != owner {
		return nil, models.ErrDenied
	}
	delete(m.posts, id)
	return p, nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if p, ok := m.posts[id]; ok {
		return m.withAuthor(p), nil
	}
	return nil, nil
}

func (m *memStore) GetBySlug(_ context.Context, s string) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for _, p := range m.posts {
		if p.Slug == s {
			return m.withAuthor(p), nil
		}
	}
	return nil, nil
}

func (m *memStore) sorted() []*models.Post {
	out := make([]*models.Post, 0, len(m.posts))
	for _, p := range m.posts {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *models.Post) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})
	return out
}

func (m *memStore) GetLatest(context.Context) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	all := m.sorted()
	if len(all) == 0 {
		return nil, nil
	}
	return m.withAuthor(all[0]), nil
}

func (m *memStore) List(_ context.Context, params models.ListParams) (*models.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	started := params.Cursor == 0
	if !started {
		if _, ok := m.posts[params.Cursor]; !ok {
			page := models.NewPage(nil, params.Limit)
			return &page, nil
		}
	}
	var rows []models.Post
	for _, p := range m.sorted() {
		if p.ID == params.Cursor {
			started = true
		}
		if !started {
			continue
		}
		if params.PublishedOnly && !p.Published {
			continue
		}
		if params.OwnerID != 0 && p.CreatedByID != params.OwnerID {
			continue
		}
		rows = append(rows, *m.withAuthor(p))
		if len(rows) == params.Limit+1 {
			break
		}
	}
	page := models.NewPage(rows, params.Limit)
	return &page, nil
}

func (m *memStore) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type memCache struct {
	byID        map[int64]*models.Post
	bySlug      map[string]*models.Post
	invalidated []string
}

func newMemCache() *memCache {
	return &memCache{byID: map[int64]*models.Post{}, bySlug: map[string]*models.Post{}}
}

func (c *memCache) GetByID(_ context.Context, id int64) (*models.Post, error) {
	return c.byID[id], nil
}

func (c *memCache) GetBySlug(_ context.Context, s string) (*models.Post, error) {
	return c.bySlug[s], nil
}

func (c *memCache) SetPost(_ context.Context, p *models.Post) error {
	c.byID[p.ID] = p
	c.bySlug[p.Slug] = p
	return nil
}

func (c *memCache) Invalidate(_ context.Context, id int64, slugs ...string) error {
	delete(c.byID, id)
	for _, s := range slugs {
		delete(c.bySlug, s)
		c.invalidated = append(c.invalidated, s)
	}
	return nil
}

type memIndex struct {
	docs map[int64]*models.Post
}

func newMemIndex() *memIndex { return &memIndex{docs: map[int64]*models.Post{}} }

func (i *memIndex) IndexPost(_ context.Context, p *models.Post) error {
	i.docs[p.ID] = p
	return nil
}

func (i *memIndex) DeletePost(_ context.Context, id int64) error {
	delete(i.docs, id)
	return nil
}

func (i *memIndex) Search(_ context.Context, q string, limit int) ([]models.SearchHit, error) {
	var out []models.SearchHit
	for _, p := range i.docs {
		if p.Title == q && len(out) < limit {
			out = append(out, models.SearchHit{ID: p.ID, Slug: p.Slug, Title: p.Title})
		}
	}
	return out, nil
}

func (i *memIndex) Related(_ context.Context, tags []string, excludeID int64, limit int) ([]models.SearchHit, error) {
	out := []models.SearchHit{}
	for _, p := range i.docs {
		if p.ID == excludeID || len(out) >= limit {
			continue
		}
		for _, t := range p.Tags {
			if slices.Contains(tags, t) {
				out = append(out, models.SearchHit{ID: p.ID, Slug: p.Slug, Title: p.Title})
				break
			}
		}
	}
	return out, nil
}

type recordedEvent struct {
	subject string
	event   events.PostEvent
}

type memPublisher struct {
	events []recordedEvent
}

func (p *memPublisher) Publish(subject string, ev events.PostEvent) error {
	p.events = append(p.events, recordedEvent{subject: subject, event: ev})
	return nil
}
