package job

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/pixmo/internal/api/respond"
	"github.com/aliskhannn/pixmo/internal/middleware"
	"github.com/aliskhannn/pixmo/internal/model"
	"github.com/aliskhannn/pixmo/internal/store"
	"github.com/aliskhannn/pixmo/internal/supervisor"
)

// submitter accepts validated job submissions.
type submitter interface {
	Submit(ctx context.Context, sessionID string, targetID, libraryID uuid.UUID, params model.JobParams) (uuid.UUID, error)
}

// jobs reads job records.
type jobs interface {
	GetOwned(ctx context.Context, id uuid.UUID, sessionID string) (model.Job, error)
}

// opener opens stored files for streaming back to the client.
type opener interface {
	Open(path string) (*os.File, error)
}

// Handler provides HTTP handlers for job endpoints.
type Handler struct {
	submitter submitter
	jobs      jobs
	files     opener
}

// NewHandler creates a new Handler.
func NewHandler(s submitter, j jobs, files opener) *Handler {
	return &Handler{submitter: s, jobs: j, files: files}
}

// Create validates the submission and queues a mosaic job. Defaults mirror
// the web client: cell size 32, repeat window 30, color strength 0.35.
func (h *Handler) Create(c *ginext.Context) {
	targetID, err := uuid.Parse(c.PostForm("target_id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid target_id: %v", err))
		return
	}
	libraryID, err := uuid.Parse(c.PostForm("library_id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid library_id: %v", err))
		return
	}

	params := model.JobParams{
		CellSize:        formInt(c, "cell_size", 32),
		RepeatWindow:    formInt(c, "repeat_window", 30),
		ColorStrength:   formFloat(c, "color_strength", 0.35),
		OverlayStrength: formFloat(c, "overlay_strength", 0),
	}

	id, err := h.submitter.Submit(c.Request.Context(), middleware.SessionID(c), targetID, libraryID, params)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrTargetNotFound):
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("target not found"))
		case errors.Is(err, store.ErrLibraryNotFound):
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("library not found"))
		case errors.Is(err, supervisor.ErrLibraryNotReady):
			respond.Fail(c, http.StatusBadRequest, err)
		default:
			zlog.Logger.Err(err).Msg("failed to submit job")
			respond.Fail(c, http.StatusBadRequest, err)
		}
		return
	}

	respond.Created(c, map[string]interface{}{"job_id": id})
}

// Get returns the job's status, progress and message.
func (h *Handler) Get(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return
	}

	j, err := h.jobs.GetOwned(c.Request.Context(), id, middleware.SessionID(c))
	if err != nil {
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("job not found"))
		return
	}

	respond.OK(c, j)
}

// Result serves the rendered mosaic. Binary content is withheld until the
// job is done.
func (h *Handler) Result(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return
	}

	j, err := h.jobs.GetOwned(c.Request.Context(), id, middleware.SessionID(c))
	if err != nil || j.Status != model.StatusDone || j.ResultPath == "" {
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("result not ready"))
		return
	}

	f, err := h.files.Open(j.ResultPath)
	if err != nil {
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("result file missing"))
		return
	}
	defer f.Close()

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	respond.JPEG(c, http.StatusOK, f)
}

func formInt(c *ginext.Context, key string, def int) int {
	v := c.PostForm(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

func formFloat(c *ginext.Context, key string, def float64) float64 {
	v := c.PostForm(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return -1
	}
	return f
}
