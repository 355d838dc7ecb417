package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/pixmo/internal/api/respond"
	"github.com/aliskhannn/pixmo/internal/middleware"
	"github.com/aliskhannn/pixmo/internal/model"
	"github.com/aliskhannn/pixmo/internal/store"
)

// service defines the interface for library-related operations.
type service interface {
	CreateLibrary(ctx context.Context, sessionID, name string, archive io.Reader) (uuid.UUID, error)
	ListLibraries(ctx context.Context, sessionID string) ([]model.Library, error)
	GetLibrary(ctx context.Context, sessionID string, id uuid.UUID) (model.Library, error)
	DeleteLibrary(ctx context.Context, sessionID string, id uuid.UUID) error
}

// Handler provides HTTP handlers for tile-library endpoints.
type Handler struct {
	service service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

// Upload accepts a tile archive and starts asynchronous indexing. The
// response carries only the new library id; progress is polled separately.
func (h *Handler) Upload(c *ginext.Context) {
	f, _, err := c.Request.FormFile("tiles_zip")
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to read uploaded archive")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("failed to retrieve the file"))
		return
	}
	defer f.Close()

	name := c.PostForm("name")
	if name == "" {
		name = "library"
	}

	id, err := h.service.CreateLibrary(c.Request.Context(), middleware.SessionID(c), name, f)
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to create library")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to create library"))
		return
	}

	respond.Created(c, map[string]interface{}{"library_id": id})
}

// List returns all libraries of the caller's session.
func (h *Handler) List(c *ginext.Context) {
	libs, err := h.service.ListLibraries(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to list libraries")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to list libraries"))
		return
	}

	respond.OK(c, map[string]interface{}{"libraries": libs})
}

// Get returns one library's status, progress, message and tile count.
func (h *Handler) Get(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return
	}

	l, err := h.service.GetLibrary(c.Request.Context(), middleware.SessionID(c), id)
	if err != nil {
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("library not found"))
		return
	}

	respond.OK(c, l)
}

// Delete removes a library by id.
func (h *Handler) Delete(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return
	}

	if err := h.service.DeleteLibrary(c.Request.Context(), middleware.SessionID(c), id); err != nil {
		if errors.Is(err, store.ErrLibraryNotFound) {
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("library not found"))
			return
		}
		zlog.Logger.Err(err).Msg("failed to delete library")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to delete library"))
		return
	}

	c.Status(http.StatusNoContent)
}
