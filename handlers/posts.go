// Package handlers exposes the post.* procedures over gin. Queries are GET
// requests with query parameters, mutations are POST requests with a JSON body.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"academic-blog-api/models"
)

type PostService interface {
	Create(ctx context.Context, in models.CreatePostReq) (*models.CreatePostResult, error)
	Update(ctx context.Context, id int64, data models.CreatePostReq) (*models.Result, error)
	Delete(ctx context.Context, id int64) (*models.Result, error)
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	GetBySlug(ctx context.Context, slug string) (*models.Post, error)
	GetLatest(ctx context.Context) (*models.Post, error)
	GetAll(ctx context.Context, params models.ListParams) (*models.Page, error)
	GetUserPosts(ctx context.Context, params models.ListParams) (*models.Page, error)
	Search(ctx context.Context, q string, limit int) ([]models.SearchHit, error)
	GetRelated(ctx context.Context, id int64, limit int) ([]models.SearchHit, error)
}

type Handler struct {
	posts  PostService
	db     PostCounter
	logger *slog.Logger
}

func New(posts PostService, db PostCounter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{posts: posts, db: db, logger: logger}
}

// Router builds the engine with health checks and the /api procedures.
func (h *Handler) Router(tokens TokenValidator) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.logger))

	r.GET("/healthz", h.Health)
	r.GET("/db/health", h.DBHealth)

	api := r.Group("/api", Authenticate(tokens))
	api.POST("/post.create", h.Create)
	api.POST("/post.update", h.Update)
	api.POST("/post.delete", h.Delete)
	api.GET("/post.getLatest", h.GetLatest)
	api.GET("/post.getById", h.GetByID)
	api.GET("/post.getBySlug", h.GetBySlug)
	api.GET("/post.getAll", h.GetAll)
	api.GET("/post.getUserPosts", h.GetUserPosts)
	api.GET("/post.search", h.Search)
	api.GET("/post.getRelated", h.GetRelated)
	return r
}

type idQuery struct {
	ID int64 `form:"id" binding:"required,gt=0"`
}

type slugQuery struct {
	Slug string `form:"slug" binding:"required"`
}

type listQuery struct {
	Limit         *int  `form:"limit"`
	Cursor        int64 `form:"cursor"`
	PublishedOnly *bool `form:"publishedOnly"`
}

type searchQuery struct {
	Q     string `form:"q"`
	Limit int    `form:"limit"`
}

type relatedQuery struct {
	ID    int64 `form:"id" binding:"required,gt=0"`
	Limit int   `form:"limit"`
}

func (h *Handler) Create(c *gin.Context) {
	var req models.CreatePostReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.posts.Create(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Update(c *gin.Context) {
	var req models.UpdatePostReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.posts.Update(c.Request.Context(), req.ID, req.Data)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Delete(c *gin.Context) {
	var req models.DeletePostReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.posts.Delete(c.Request.Context(), req.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetLatest(c *gin.Context) {
	p, err := h.posts.GetLatest(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) GetByID(c *gin.Context) {
	var q idQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	p, err := h.posts.GetByID(c.Request.Context(), q.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) GetBySlug(c *gin.Context) {
	var q slugQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slug is required"})
		return
	}
	p, err := h.posts.GetBySlug(c.Request.Context(), q.Slug)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) GetAll(c *gin.Context) {
	params, ok := bindList(c)
	if !ok {
		return
	}
	page, err := h.posts.GetAll(c.Request.Context(), params)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) GetUserPosts(c *gin.Context) {
	params, ok := bindList(c)
	if !ok {
		return
	}
	page, err := h.posts.GetUserPosts(c.Request.Context(), params)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) Search(c *gin.Context) {
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	hits, err := h.posts.Search(c.Request.Context(), q.Q, q.Limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, hits)
}

func (h *Handler) GetRelated(c *gin.Context) {
	var q relatedQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	hits, err := h.posts.GetRelated(c.Request.Context(), q.ID, q.Limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, hits)
}

// bindList reads the feed parameters. An absent limit takes the default page
// size and publishedOnly defaults to true.
func bindList(c *gin.Context) (models.ListParams, bool) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return models.ListParams{}, false
	}
	params := models.ListParams{
		Limit:         models.DefaultLimit,
		Cursor:        q.Cursor,
		PublishedOnly: true,
	}
	if q.Limit != nil {
		if *q.Limit < 1 || *q.Limit > models.MaxLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: limit must be between 1 and %d", models.ErrValidation, models.MaxLimit)})
			return models.ListParams{}, false
		}
		params.Limit = *q.Limit
	}
	if q.PublishedOnly != nil {
		params.PublishedOnly = *q.PublishedOnly
	}
	return params, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": models.ErrUnauthenticated.Error()})
	case errors.Is(err, models.ErrDenied):
		c.JSON(http.StatusNotFound, gin.H{"error": models.ErrDenied.Error()})
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": models.ErrConflict.Error()})
	case errors.Is(err, models.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
