package models

import "time"

const (
	GuestEmail = "guest@example.com"
	GuestName  = "Guest User"

	MaxTitleLen = 256
	MaxSlugLen  = 256

	DefaultLimit = 10
	MaxLimit     = 100
)

type Post struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	Summary       *string    `json:"summary"`
	Slug          string     `json:"slug"`
	Published     bool       `json:"published"`
	FeaturedImage *string    `json:"featuredImage"`
	Tags          []string   `json:"tags"`
	CreatedByID   int64      `json:"createdById"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     *time.Time `json:"updatedAt"`
	Author        *Author    `json:"author,omitempty"`
}

// Author is the reduced user projection joined onto public post reads.
type Author struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Image *string `json:"image"`
}

type User struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Image *string `json:"image"`
}

// CreatePostReq is the input of post.create and the data of post.update.
// Nil pointers mean "not supplied".
type CreatePostReq struct {
	Title         string   `json:"title" validate:"required,max=256"`
	Content       *string  `json:"content"`
	Summary       *string  `json:"summary"`
	Slug          *string  `json:"slug" validate:"omitempty,min=1,max=256"`
	Published     *bool    `json:"published"`
	FeaturedImage *string  `json:"featuredImage" validate:"omitempty,url_or_empty"`
	Tags          []string `json:"tags"`
}

type CreatePostResult struct {
	Success bool   `json:"success"`
	Slug    string `json:"slug"`
}

type UpdatePostReq struct {
	ID   int64         `json:"id" binding:"required"`
	Data CreatePostReq `json:"data"`
}

type DeletePostReq struct {
	ID int64 `json:"id" binding:"required"`
}

type Result struct {
	Success bool `json:"success"`
}

// NewPost is a fully resolved row ready for insertion.
type NewPost struct {
	Title         string
	Content       string
	Summary       *string
	Published     bool
	FeaturedImage *string
	Tags          []string
	CreatedByID   int64
}

// PostChanges is a fully resolved update. Nil pointers keep the stored value.
type PostChanges struct {
	Title         string
	Content       string
	Published     bool
	Summary       *string
	Slug          *string
	FeaturedImage *string
	Tags          *[]string
}

// ListParams drives both paginated feeds. Cursor is the id of the first post
// of the requested page; zero means "from the newest".
type ListParams struct {
	Limit         int
	Cursor        int64
	PublishedOnly bool
	OwnerID       int64
}

type Page struct {
	Items      []Post `json:"items"`
	NextCursor *int64 `json:"nextCursor,omitempty"`
}

type SearchHit struct {
	ID      int64    `json:"id"`
	Slug    string   `json:"slug"`
	Title   string   `json:"title"`
	Summary string   `json:"summary,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Score   float64  `json:"score"`
}

// NewPage trims rows fetched with limit+1 down to limit. The extra row, when
// present, is the first post of the next page and its id becomes NextCursor.
func NewPage(rows []Post, limit int) Page {
	if rows == nil {
		rows = []Post{}
	}
	if len(rows) > limit {
		next := rows[limit].ID
		return Page{Items: rows[:limit], NextCursor: &next}
	}
	return Page{Items: rows}
}
