package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/gifsearch/internal/domain"
	"github.com/timmy/gifsearch/internal/service"
)

// respondError maps a domain error onto an HTTP status.
func respondError(c *gin.Context, err error, msg string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrEngineClosed):
		status = http.StatusGone
	case errors.Is(err, domain.ErrNetwork), errors.Is(err, domain.ErrDecoding):
		status = http.StatusBadGateway
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg + ": " + err.Error()})
}
