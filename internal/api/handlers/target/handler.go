package target

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/pixmo/internal/api/respond"
	"github.com/aliskhannn/pixmo/internal/middleware"
	"github.com/aliskhannn/pixmo/internal/model"
	"github.com/aliskhannn/pixmo/internal/store"
)

// service defines the interface for target-related operations.
type service interface {
	CreateTarget(ctx context.Context, sessionID, filename string, src io.Reader) (model.Target, error)
	ListTargets(ctx context.Context, sessionID string) ([]model.Target, error)
	TargetFile(ctx context.Context, sessionID string, id uuid.UUID) (string, error)
	DeleteTarget(ctx context.Context, sessionID string, id uuid.UUID) error
}

// opener opens stored files for streaming back to the client.
type opener interface {
	Open(path string) (*os.File, error)
}

// Handler provides HTTP handlers for target endpoints.
type Handler struct {
	service service
	files   opener
}

// NewHandler creates a new Handler with the given service and file opener.
func NewHandler(s service, files opener) *Handler {
	return &Handler{service: s, files: files}
}

// Upload handles the multipart target image upload.
func (h *Handler) Upload(c *ginext.Context) {
	f, header, err := c.Request.FormFile("image")
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to read uploaded target")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("failed to retrieve the file"))
		return
	}
	defer f.Close()

	t, err := h.service.CreateTarget(c.Request.Context(), middleware.SessionID(c), header.Filename, f)
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to create target")
		respond.Fail(c, http.StatusBadRequest, err)
		return
	}

	respond.Created(c, t)
}

// List returns all targets of the caller's session.
func (h *Handler) List(c *ginext.Context) {
	targets, err := h.service.ListTargets(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to list targets")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to list targets"))
		return
	}

	respond.OK(c, map[string]interface{}{"targets": targets})
}

// File serves the stored target image bytes.
func (h *Handler) File(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return
	}

	path, err := h.service.TargetFile(c.Request.Context(), middleware.SessionID(c), id)
	if err != nil {
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("target not found"))
		return
	}

	f, err := h.files.Open(path)
	if err != nil {
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("file missing"))
		return
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	respond.File(c, http.StatusOK, contentType, f)
}

// Delete removes a target by id.
func (h *Handler) Delete(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return
	}

	if err := h.service.DeleteTarget(c.Request.Context(), middleware.SessionID(c), id); err != nil {
		if errors.Is(err, store.ErrTargetNotFound) {
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("target not found"))
			return
		}
		zlog.Logger.Err(err).Msg("failed to delete target")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to delete target"))
		return
	}

	c.Status(http.StatusNoContent)
}
