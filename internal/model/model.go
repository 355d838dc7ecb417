package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Statuses shared by libraries and jobs. Libraries move
// queued -> processing -> ready|error, jobs move queued -> running -> done|error.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusRunning    = "running"
	StatusReady      = "ready"
	StatusDone       = "done"
	StatusError      = "error"
)

// IsTerminal reports whether a job status allows no further transitions.
func IsTerminal(status string) bool {
	return status == StatusDone || status == StatusError
}

// Session represents one caller identified by the X-Session-Id header.
// Everything a session owns is deleted together when it closes or expires.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// Target is an uploaded image that mosaics are built against.
type Target struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"-"`
	Name      string    `json:"name"`
	Path      string    `json:"-"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CreatedAt time.Time `json:"created_at"`
}

// Library is the record surface of a tile library. Tile paths, average colors
// and the bucket index live in the runtime representation and are never
// exposed through the API.
type Library struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"-"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	ZipPath   string    `json:"-"`
	MetaPath  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Job is one mosaic composition run against a target and a ready library.
type Job struct {
	ID         uuid.UUID `json:"id"`
	SessionID  string    `json:"-"`
	TargetID   uuid.UUID `json:"target_id"`
	LibraryID  uuid.UUID `json:"library_id"`
	Status     string    `json:"status"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message"`
	ResultPath string    `json:"-"`
	Params     JobParams `json:"params"`
	CreatedAt  time.Time `json:"created_at"`
}

// JobParams are the compositor knobs accepted at job submission.
type JobParams struct {
	CellSize        int     `json:"cell_size"`
	RepeatWindow    int     `json:"repeat_window"`
	ColorStrength   float64 `json:"color_strength"`
	OverlayStrength float64 `json:"overlay_strength"`
}

// Validate checks the submission-time bounds. Any violation rejects the job
// before it is created.
func (p JobParams) Validate() error {
	if p.CellSize < 8 || p.CellSize > 256 {
		return fmt.Errorf("cell_size must be between 8 and 256, got %d", p.CellSize)
	}
	if p.RepeatWindow < 0 || p.RepeatWindow > 500 {
		return fmt.Errorf("repeat_window must be between 0 and 500, got %d", p.RepeatWindow)
	}
	if p.ColorStrength < 0 || p.ColorStrength > 1 {
		return fmt.Errorf("color_strength must be between 0.0 and 1.0, got %g", p.ColorStrength)
	}
	if p.OverlayStrength < 0 || p.OverlayStrength > 1 {
		return fmt.Errorf("overlay_strength must be between 0.0 and 1.0, got %g", p.OverlayStrength)
	}
	return nil
}
