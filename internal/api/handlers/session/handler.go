package session

import (
	"context"
	"fmt"
	"net/http"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/pixmo/internal/api/respond"
)

// service defines the interface for session-related operations.
type service interface {
	CloseSession(ctx context.Context, sessionID string) error
}

// Handler provides HTTP handlers for session endpoints.
type Handler struct {
	service service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

// CloseRequest is the body of the session close endpoint.
type CloseRequest struct {
	SessionID string `json:"session_id"`
}

// Close deletes the session and everything it owns: targets, libraries with
// all thumbnails, jobs and rendered results.
func (h *Handler) Close(c *ginext.Context) {
	var req CloseRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("session_id is required"))
		return
	}

	if err := h.service.CloseSession(c.Request.Context(), req.SessionID); err != nil {
		zlog.Logger.Err(err).Str("session_id", req.SessionID).Msg("failed to close session")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to close session"))
		return
	}

	respond.OK(c, map[string]bool{"ok": true})
}
