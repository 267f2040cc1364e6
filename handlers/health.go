package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type PostCounter interface {
	Count(ctx context.Context) (int, error)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now()})
}

func (h *Handler) DBHealth(c *gin.Context) {
	cnt, err := h.db.Count(c.Request.Context())
	if err != nil {
		h.logger.Error("db health check failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"db_ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"db_ok": true, "posts_count": cnt})
}
