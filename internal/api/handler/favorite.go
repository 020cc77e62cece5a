package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/gifsearch/internal/domain"
)

// FavoriteService is the favorites surface the handler needs.
type FavoriteService interface {
	ListAll(ctx context.Context) ([]domain.Item, error)
	Payload(ctx context.Context, id string) ([]byte, string, error)
	PayloadURL(ctx context.Context, id string) (string, error)
	Remove(ctx context.Context, id string) error
	Contains(ctx context.Context, id string) (bool, error)
}

// FavoriteHandler handles favorite endpoints.
type FavoriteHandler struct {
	favorites FavoriteService
}

// NewFavoriteHandler creates a new favorite handler.
func NewFavoriteHandler(favorites FavoriteService) *FavoriteHandler {
	return &FavoriteHandler{favorites: favorites}
}

// List handles GET /api/v1/favorites, newest first.
func (h *FavoriteHandler) List(c *gin.Context) {
	items, err := h.favorites.ListAll(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to list favorites")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"total": len(items),
	})
}

// Payload handles GET /api/v1/favorites/:id/payload. Payloads in a publicly
// served bucket are redirected to; others are served from the cache.
func (h *FavoriteHandler) Payload(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	url, err := h.favorites.PayloadURL(ctx, id)
	if err != nil {
		respondError(c, err, "Failed to load payload")
		return
	}
	if url != "" {
		c.Redirect(http.StatusFound, url)
		return
	}

	body, contentType, err := h.favorites.Payload(ctx, id)
	if err != nil {
		respondError(c, err, "Failed to load payload")
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, contentType, body)
}

// Delete handles DELETE /api/v1/favorites/:id.
func (h *FavoriteHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	ok, err := h.favorites.Contains(ctx, id)
	if err != nil {
		respondError(c, err, "Failed to remove favorite")
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "favorite " + id + " not found"})
		return
	}
	if err := h.favorites.Remove(ctx, id); err != nil {
		respondError(c, err, "Failed to remove favorite")
		return
	}
	c.Status(http.StatusNoContent)
}
