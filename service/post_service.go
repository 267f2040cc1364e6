// Package service implements the post.* procedures on top of the store and
// the best-effort side channels (cache, search index, events).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"academic-blog-api/auth"
	"academic-blog-api/events"
	"academic-blog-api/models"
	"academic-blog-api/slug"
)

type Store interface {
	Create(ctx context.Context, in models.NewPost, base string) (*models.Post, error)
	GuestUserID(ctx context.Context) (int64, error)
	Update(ctx context.Context, id, owner int64, ch models.PostChanges) (*models.Post, string, error)
	Delete(ctx context.Context, id, owner int64) (*models.Post, error)
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	GetBySlug(ctx context.Context, slug string) (*models.Post, error)
	GetLatest(ctx context.Context) (*models.Post, error)
	List(ctx context.Context, params models.ListParams) (*models.Page, error)
}

type Cache interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	GetBySlug(ctx context.Context, slug string) (*models.Post, error)
	SetPost(ctx context.Context, p *models.Post) error
	Invalidate(ctx context.Context, id int64, slugs ...string) error
}

type Index interface {
	IndexPost(ctx context.Context, p *models.Post) error
	DeletePost(ctx context.Context, id int64) error
	Search(ctx context.Context, q string, limit int) ([]models.SearchHit, error)
	Related(ctx context.Context, tags []string, excludeID int64, limit int) ([]models.SearchHit, error)
}

type Publisher interface {
	Publish(subject string, event events.PostEvent) error
}

type Option func(*PostService)

func WithCache(c Cache) Option         { return func(s *PostService) { s.cache = c } }
func WithIndex(i Index) Option         { return func(s *PostService) { s.index = i } }
func WithPublisher(p Publisher) Option { return func(s *PostService) { s.events = p } }
func WithLogger(l *slog.Logger) Option { return func(s *PostService) { s.logger = l } }

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option { return func(s *PostService) { s.now = now } }

type PostService struct {
	store    Store
	cache    Cache
	index    Index
	events   Publisher
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

func New(store Store, opts ...Option) *PostService {
	s := &PostService{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.validate = newValidator()
	return s
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("url_or_empty", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || v.Var(s, "url") == nil
	})
	return v
}

func (s *PostService) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param()))
		case "url_or_empty":
			msgs = append(msgs, fe.Field()+" must be a URL")
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return fmt.Errorf("%w: %s", models.ErrValidation, strings.Join(msgs, "; "))
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// Create stores a new post and returns the slug it was given. Without a
// session the post belongs to the shared guest account.
func (s *PostService) Create(ctx context.Context, in models.CreatePostReq) (*models.CreatePostResult, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}

	owner, ok := auth.UserID(ctx)
	if !ok {
		guest, err := s.store.GuestUserID(ctx)
		if err != nil {
			return nil, err
		}
		owner = guest
	}

	image := in.FeaturedImage
	if image != nil && *image == "" {
		image = nil
	}
	p, err := s.store.Create(ctx, models.NewPost{
		Title:         in.Title,
		Content:       deref(in.Content),
		Summary:       in.Summary,
		Published:     deref(in.Published),
		FeaturedImage: image,
		Tags:          in.Tags,
		CreatedByID:   owner,
	}, slug.Base(in.Slug, in.Title))
	if err != nil {
		return nil, err
	}

	s.logger.Info("post created", "post_id", p.ID, "slug", p.Slug, "owner", owner)
	if p.Published {
		s.reindex(ctx, p)
	}
	s.publish(events.SubjectCreated, p)
	return &models.CreatePostResult{Success: true, Slug: p.Slug}, nil
}

// Update overwrites the post's fields when the caller owns it. The slug is
// normalized but not de-duplicated: taking another post's slug is a conflict.
func (s *PostService) Update(ctx context.Context, id int64, data models.CreatePostReq) (*models.Result, error) {
	owner, ok := auth.UserID(ctx)
	if !ok {
		return nil, models.ErrUnauthenticated
	}
	if err := s.check(data); err != nil {
		return nil, err
	}

	ch := models.PostChanges{
		Title:         data.Title,
		Content:       deref(data.Content),
		Published:     deref(data.Published),
		Summary:       data.Summary,
		FeaturedImage: data.FeaturedImage,
	}
	if data.Slug != nil {
		normalized := slug.Normalize(*data.Slug)
		if normalized == "" {
			return nil, fmt.Errorf("%w: slug has no usable characters", models.ErrValidation)
		}
		ch.Slug = &normalized
	}
	if data.Tags != nil {
		tags := data.Tags
		ch.Tags = &tags
	}

	p, oldSlug, err := s.store.Update(ctx, id, owner, ch)
	if err != nil {
		return nil, err
	}

	s.logger.Info("post updated", "post_id", p.ID, "slug", p.Slug, "published", p.Published)
	s.invalidate(ctx, p.ID, oldSlug, p.Slug)
	if p.Published {
		s.reindex(ctx, p)
	} else {
		s.unindex(ctx, p.ID)
	}
	s.publish(events.SubjectUpdated, p)
	return &models.Result{Success: true}, nil
}

// Delete removes the post permanently when the caller owns it.
func (s *PostService) Delete(ctx context.Context, id int64) (*models.Result, error) {
	owner, ok := auth.UserID(ctx)
	if !ok {
		return nil, models.ErrUnauthenticated
	}

	p, err := s.store.Delete(ctx, id, owner)
	if err != nil {
		return nil, err
	}

	s.logger.Info("post deleted", "post_id", p.ID, "slug", p.Slug)
	s.invalidate(ctx, p.ID, p.Slug)
	s.unindex(ctx, p.ID)
	s.publish(events.SubjectDeleted, p)
	return &models.Result{Success: true}, nil
}

// GetByID returns nil when the post does not exist. Drafts are returned too;
// callers rendering public pages check Published.
func (s *PostService) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	if s.cache != nil {
		if p, err := s.cache.GetByID(ctx, id); err != nil {
			s.logger.Warn("cache read failed", "post_id", id, "err", err)
		} else if p != nil {
			return p, nil
		}
	}
	p, err := s.store.GetByID(ctx, id)
	if err != nil || p == nil {
		return nil, err
	}
	s.remember(ctx, p)
	return p, nil
}

// GetBySlug is GetByID keyed by slug.
func (s *PostService) GetBySlug(ctx context.Context, sl string) (*models.Post, error) {
	if s.cache != nil {
		if p, err := s.cache.GetBySlug(ctx, sl); err != nil {
			s.logger.Warn("cache read failed", "slug", sl, "err", err)
		} else if p != nil {
			return p, nil
		}
	}
	p, err := s.store.GetBySlug(ctx, sl)
	if err != nil || p == nil {
		return nil, err
	}
	s.remember(ctx, p)
	return p, nil
}

func (s *PostService) GetLatest(ctx context.Context) (*models.Post, error) {
	return s.store.GetLatest(ctx)
}

func checkPaging(params *models.ListParams) error {
	if params.Limit == 0 {
		params.Limit = models.DefaultLimit
	}
	if params.Limit < 1 || params.Limit > models.MaxLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d", models.ErrValidation, models.MaxLimit)
	}
	if params.Cursor < 0 {
		return fmt.Errorf("%w: cursor must be a post id", models.ErrValidation)
	}
	return nil
}

// GetAll pages through all posts, or only published ones, newest first.
func (s *PostService) GetAll(ctx context.Context, params models.ListParams) (*models.Page, error) {
	if err := checkPaging(&params); err != nil {
		return nil, err
	}
	params.OwnerID = 0
	return s.store.List(ctx, params)
}

// GetUserPosts pages through the caller's posts, drafts included.
func (s *PostService) GetUserPosts(ctx context.Context, params models.ListParams) (*models.Page, error) {
	owner, ok := auth.UserID(ctx)
	if !ok {
		return nil, models.ErrUnauthenticated
	}
	if err := checkPaging(&params); err != nil {
		return nil, err
	}
	params.OwnerID = owner
	params.PublishedOnly = false
	return s.store.List(ctx, params)
}

func searchLimit(limit int) int {
	if limit <= 0 {
		return models.DefaultLimit
	}
	return min(limit, models.MaxLimit)
}

// Search runs a full-text query over published posts.
func (s *PostService) Search(ctx context.Context, q string, limit int) ([]models.SearchHit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("%w: q is required", models.ErrValidation)
	}
	if s.index == nil {
		return nil, fmt.Errorf("search: %w", models.ErrUnavailable)
	}
	return s.index.Search(ctx, q, searchLimit(limit))
}

// GetRelated lists published posts sharing tags with post id.
func (s *PostService) GetRelated(ctx context.Context, id int64, limit int) ([]models.SearchHit, error) {
	if s.index == nil {
		return nil, fmt.Errorf("related posts: %w", models.ErrUnavailable)
	}
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil || len(p.Tags) == 0 {
		return []models.SearchHit{}, nil
	}
	return s.index.Related(ctx, p.Tags, p.ID, searchLimit(limit))
}

func (s *PostService) remember(ctx context.Context, p *models.Post) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetPost(ctx, p); err != nil {
		s.logger.Warn("cache write failed", "post_id", p.ID, "err", err)
	}
}

func (s *PostService) invalidate(ctx context.Context, id int64, slugs ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id, slugs...); err != nil {
		s.logger.Warn("cache invalidation failed", "post_id", id, "err", err)
	}
}

func (s *PostService) reindex(ctx context.Context, p *models.Post) {
	if s.index == nil {
		return
	}
	if err := s.index.IndexPost(ctx, p); err != nil {
		s.logger.Warn("search indexing failed", "post_id", p.ID, "err", err)
	}
}

func (s *PostService) unindex(ctx context.Context, id int64) {
	if s.index == nil {
		return
	}
	if err := s.index.DeletePost(ctx, id); err != nil {
		s.logger.Warn("search removal failed", "post_id", id, "err", err)
	}
}

func (s *PostService) publish(subject string, p *models.Post) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(subject, events.NewPostEvent(p, s.now())); err != nil {
		s.logger.Warn("event publish failed", "subject", subject, "post_id", p.ID, "err", err)
	}
}
