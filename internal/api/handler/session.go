package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/gifsearch/internal/logger"
	"github.com/timmy/gifsearch/internal/service"
)

const streamHeartbeat = 15 * time.Second

// SessionHandler exposes search sessions over HTTP.
type SessionHandler struct {
	sessions *service.SessionManager
}

// NewSessionHandler creates a new session handler.
// Parameters:
//   - sessions: session manager instance.
//
// Returns:
//   - *SessionHandler: initialized handler.
func NewSessionHandler(sessions *service.SessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// EventRequest is the body of POST /api/v1/sessions/:id/events.
type EventRequest struct {
	Type   service.EventType `json:"type" binding:"required"`
	Term   string            `json:"term"`
	ItemID string            `json:"item_id"`
}

// SessionResponse carries a session ID and its current state.
type SessionResponse struct {
	SessionID string            `json:"session_id"`
	State     service.ViewState `json:"state"`
}

// Create handles POST /api/v1/sessions.
func (h *SessionHandler) Create(c *gin.Context) {
	id, engine := h.sessions.Create()
	logger.FromContext(c.Request.Context()).WithField(logger.FieldSessionID, id).Debug("Session opened over HTTP")
	c.JSON(http.StatusCreated, SessionResponse{SessionID: id, State: engine.State()})
}

// Get handles GET /api/v1/sessions/:id.
func (h *SessionHandler) Get(c *gin.Context) {
	id := c.Param("id")
	engine, err := h.sessions.Get(id)
	if err != nil {
		respondError(c, err, "Session lookup failed")
		return
	}
	c.JSON(http.StatusOK, SessionResponse{SessionID: id, State: engine.State()})
}

// PostEvent handles POST /api/v1/sessions/:id/events.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes 202 with the state at acceptance time).
func (h *SessionHandler) PostEvent(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	if !req.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: unknown event type " + string(req.Type),
		})
		return
	}
	if req.Type == service.EventItemToggled && req.ItemID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: item_id is required for item_toggled",
		})
		return
	}

	id := c.Param("id")
	engine, err := h.sessions.Get(id)
	if err != nil {
		respondError(c, err, "Session lookup failed")
		return
	}

	ev := service.Event{Type: req.Type, Term: req.Term, ItemID: req.ItemID}
	if err := engine.Send(ev); err != nil {
		respondError(c, err, "Event rejected")
		return
	}
	c.JSON(http.StatusAccepted, SessionResponse{SessionID: id, State: engine.State()})
}

// Stream handles GET /api/v1/sessions/:id/stream as server-sent events.
// Each state change is sent as a "state" event; slow readers only see the
// latest state.
func (h *SessionHandler) Stream(c *gin.Context) {
	id := c.Param("id")
	engine, err := h.sessions.Get(id)
	if err != nil {
		respondError(c, err, "Session lookup failed")
		return
	}

	states, cancel := engine.Subscribe()
	defer cancel()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case s, ok := <-states:
			if !ok {
				return false
			}
			h.sessions.Touch(id)
			c.SSEvent("state", s)
			return true
		case <-heartbeat.C:
			h.sessions.Touch(id)
			_, _ = io.WriteString(w, ": ping\n\n")
			return true
		}
	})
}

// Delete handles DELETE /api/v1/sessions/:id.
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.sessions.Close(c.Param("id")); err != nil {
		respondError(c, err, "Session close failed")
		return
	}
	c.Status(http.StatusNoContent)
}
