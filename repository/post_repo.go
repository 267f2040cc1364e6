package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"academic-blog-api/models"
	"academic-blog-api/slug"
)

// MaxSlugAttempts bounds optimistic slug inserts that lose a race.
const MaxSlugAttempts = 5

const (
	uniqueViolation = "23505"

	slugConstraint  = "posts_slug_key"
	emailConstraint = "users_email_key"
)

const selectPost = `
	SELECT p.id, p.title, p.content, p.summary, p.slug, p.published,
	       p.featured_image, p.tags, p.created_by_id, p.created_at, p.updated_at,
	       u.id, COALESCE(u.name, ''), u.image
	FROM posts p
	JOIN users u ON u.id = p.created_by_id`

const returningPost = `
	RETURNING id, title, content, summary, slug, published,
	          featured_image, tags, created_by_id, created_at, updated_at`

type PostRepo struct {
	DB *pgxpool.Pool
}

func NewPostRepo(db *pgxpool.Pool) *PostRepo { return &PostRepo{DB: db} }

func scanPost(row pgx.Row) (*models.Post, error) {
	var p models.Post
	if err := row.Scan(
		&p.ID, &p.Title, &p.Content, &p.Summary, &p.Slug, &p.Published,
		&p.FeaturedImage, &p.Tags, &p.CreatedByID, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPostWithAuthor(row pgx.Row) (*models.Post, error) {
	var p models.Post
	var a models.Author
	if err := row.Scan(
		&p.ID, &p.Title, &p.Content, &p.Summary, &p.Slug, &p.Published,
		&p.FeaturedImage, &p.Tags, &p.CreatedByID, &p.CreatedAt, &p.UpdatedAt,
		&a.ID, &a.Name, &a.Image,
	); err != nil {
		return nil, err
	}
	p.Author = &a
	return &p, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}

// Create inserts a post under the first free slug derived from base. The slug
// is picked from the slugs currently sharing the base and the insert relies on
// posts_slug_key: a concurrent writer that takes the same slug first makes the
// insert fail, and the pick is redone.
func (r *PostRepo) Create(ctx context.Context, in models.NewPost, base string) (*models.Post, error) {
	for attempt := 0; attempt < MaxSlugAttempts; attempt++ {
		taken, err := r.slugsLike(ctx, base)
		if err != nil {
			return nil, fmt.Errorf("create post: %w", err)
		}
		candidate := slug.Next(base, taken)

		p, err := scanPost(r.DB.QueryRow(ctx, `
			INSERT INTO posts (title, content, summary, slug, published, featured_image, tags, created_by_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`+returningPost,
			in.Title, in.Content, in.Summary, candidate, in.Published, in.FeaturedImage, in.Tags, in.CreatedByID,
		))
		if err == nil {
			return p, nil
		}
		if !isUniqueViolation(err, slugConstraint) {
			return nil, fmt.Errorf("create post: %w", err)
		}
	}
	return nil, fmt.Errorf("create post: slug %q still taken after %d attempts: %w", base, MaxSlugAttempts, models.ErrConflict)
}

// slugsLike returns the slugs a candidate of base can take: base itself and
// base-n. Candidates of long bases are shortened, so their prefix is matched
// loosely.
func (r *PostRepo) slugsLike(ctx context.Context, base string) ([]string, error) {
	pattern := "^" + regexp.QuoteMeta(base) + "-[0-9]+$"
	if n := slug.MaxLen - 21; len(base) > n {
		prefix := strings.TrimRight(base[:n], "-")
		pattern = "^" + regexp.QuoteMeta(prefix) + "[a-z0-9_-]*-[0-9]+$"
	}
	rows, err := r.DB.Query(ctx, `SELECT slug FROM posts WHERE slug = $1 OR slug ~ $2`, base, pattern)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// GuestUserID returns the id of the shared guest account, creating it on first
// use. users_email_key makes concurrent first calls converge on one row.
func (r *PostRepo) GuestUserID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, models.GuestEmail).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("get guest user: %w", err)
	}

	err = r.DB.QueryRow(ctx,
		`INSERT INTO users (name, email) VALUES ($1, $2) ON CONFLICT ON CONSTRAINT `+emailConstraint+` DO NOTHING RETURNING id`,
		models.GuestName, models.GuestEmail,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("create guest user: %w", err)
	}

	// Lost the race to another first caller.
	if err := r.DB.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, models.GuestEmail).Scan(&id); err != nil {
		return 0, fmt.Errorf("get guest user: %w", err)
	}
	return id, nil
}

// Update applies ch to the post when owner created it. It returns the updated
// post and the slug it had before. A missing post and a foreign post both
// yield models.ErrDenied.
func (r *PostRepo) Update(ctx context.Context, id, owner int64, ch models.PostChanges) (*models.Post, string, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = tx.Rollback(ctx) }() // no-op after Commit

	var oldSlug string
	err = tx.QueryRow(ctx,
		`SELECT slug FROM posts WHERE id = $1 AND created_by_id = $2 FOR UPDATE`, id, owner,
	).Scan(&oldSlug)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", models.ErrDenied
	}
	if err != nil {
		return nil, "", fmt.Errorf("update post: %w", err)
	}

	set := "title=$1,content=$2,published=$3,updated_at=now(),"
	args := []any{ch.Title, ch.Content, ch.Published}
	arg := 4
	if ch.Summary != nil {
		set += fmt.Sprintf("summary=$%d,", arg)
		args = append(args, *ch.Summary)
		arg++
	}
	if ch.Slug != nil {
		set += fmt.Sprintf("slug=$%d,", arg)
		args = append(args, *ch.Slug)
		arg++
	}
	if ch.FeaturedImage != nil {
		set += fmt.Sprintf("featured_image=NULLIF($%d, ''),", arg)
		args = append(args, *ch.FeaturedImage)
		arg++
	}
	if ch.Tags != nil {
		set += fmt.Sprintf("tags=$%d,", arg)
		args = append(args, *ch.Tags)
		arg++
	}
	set = strings.TrimSuffix(set, ",")
	args = append(args, id)

	p, err := scanPost(tx.QueryRow(ctx, fmt.Sprintf(`UPDATE posts SET %s WHERE id=$%d`, set, arg)+returningPost, args...))
	if err != nil {
		if isUniqueViolation(err, slugConstraint) {
			return nil, "", fmt.Errorf("update post: slug already in use: %w", models.ErrConflict)
		}
		return nil, "", fmt.Errorf("update post: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, "", err
	}
	return p, oldSlug, nil
}

// Delete removes the post when owner created it, as one statement so two
// concurrent deletes cannot both succeed.
func (r *PostRepo) Delete(ctx context.Context, id, owner int64) (*models.Post, error) {
	p, err := scanPost(r.DB.QueryRow(ctx,
		`DELETE FROM posts WHERE id = $1 AND created_by_id = $2`+returningPost, id, owner,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrDenied
	}
	if err != nil {
		return nil, fmt.Errorf("delete post: %w", err)
	}
	return p, nil
}

// GetByID returns nil, nil when the post does not exist.
func (r *PostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	p, err := scanPostWithAuthor(r.DB.QueryRow(ctx, selectPost+` WHERE p.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return p, nil
}

// GetBySlug returns nil, nil when no post has the slug.
func (r *PostRepo) GetBySlug(ctx context.Context, s string) (*models.Post, error) {
	p, err := scanPostWithAuthor(r.DB.QueryRow(ctx, selectPost+` WHERE p.slug = $1`, s))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post by slug: %w", err)
	}
	return p, nil
}

// GetLatest returns the newest post of any owner and state, or nil.
func (r *PostRepo) GetLatest(ctx context.Context) (*models.Post, error) {
	p, err := scanPostWithAuthor(r.DB.QueryRow(ctx, selectPost+` ORDER BY p.created_at DESC, p.id DESC LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest post: %w", err)
	}
	return p, nil
}

// List serves both feeds. Rows are ordered by created_at then id, newest
// first, and start at the cursor post itself. A cursor naming a deleted post
// matches nothing.
func (r *PostRepo) List(ctx context.Context, params models.ListParams) (*models.Page, error) {
	var where []string
	var args []any
	if params.PublishedOnly {
		where = append(where, "p.published")
	}
	if params.OwnerID != 0 {
		args = append(args, params.OwnerID)
		where = append(where, fmt.Sprintf("p.created_by_id = $%d", len(args)))
	}
	if params.Cursor != 0 {
		args = append(args, params.Cursor)
		where = append(where, fmt.Sprintf(
			"(p.created_at, p.id) <= (SELECT c.created_at, c.id FROM posts c WHERE c.id = $%d)", len(args)))
	}
	args = append(args, params.Limit+1)

	q := selectPost
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += fmt.Sprintf(" ORDER BY p.created_at DESC, p.id DESC LIMIT $%d", len(args))

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	out := make([]models.Post, 0, params.Limit+1)
	for rows.Next() {
		p, err := scanPostWithAuthor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	page := models.NewPage(out, params.Limit)
	return &page, nil
}

func (r *PostRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRow(ctx, `SELECT count(*) FROM posts`).Scan(&n)
	return n, err
}
