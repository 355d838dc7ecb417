package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/semaphore"

	"github.com/aliskhannn/pixmo/internal/model"
	"github.com/aliskhannn/pixmo/internal/mosaic"
	"github.com/aliskhannn/pixmo/internal/storage/file"
	"github.com/aliskhannn/pixmo/internal/store"
)

// ErrLibraryNotReady rejects job submission against a library that has not
// finished indexing.
var ErrLibraryNotReady = errors.New("library is not ready")

// Supervisor drives the job state machine queued -> running -> done|error.
// Each accepted job runs as an independent task; a failure anywhere in a run
// is recorded on that job alone and never propagates.
type Supervisor struct {
	store     *store.Store
	storage   *file.Storage
	sem       *semaphore.Weighted
	thumbSize int
}

// New creates a Supervisor. The semaphore bounds concurrent task execution
// and is shared with the indexer.
func New(st *store.Store, storage *file.Storage, sem *semaphore.Weighted, thumbSize int) *Supervisor {
	return &Supervisor{store: st, storage: storage, sem: sem, thumbSize: thumbSize}
}

// Submit validates the request and queues an asynchronous compositing run.
// Validation failures surface synchronously and never create a running job:
// parameters must be in bounds, target and library must belong to the
// caller's session, and the library must be ready.
func (s *Supervisor) Submit(ctx context.Context, sessionID string, targetID, libraryID uuid.UUID, params model.JobParams) (uuid.UUID, error) {
	if err := params.Validate(); err != nil {
		return uuid.Nil, err
	}

	target, err := s.store.Targets.GetOwned(ctx, targetID, sessionID)
	if err != nil {
		return uuid.Nil, err
	}

	lib, err := s.store.Libraries.GetOwned(ctx, libraryID, sessionID)
	if err != nil {
		return uuid.Nil, err
	}
	if lib.Status != model.StatusReady {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrLibraryNotReady, lib.Status)
	}

	job := model.Job{
		ID:        uuid.New(),
		SessionID: sessionID,
		TargetID:  targetID,
		LibraryID: libraryID,
		Status:    model.StatusQueued,
		Message:   "Queued",
		Params:    params,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Jobs.Create(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("create job: %w", err)
	}

	go s.run(job, target)

	return job.ID, nil
}

// run executes one job to completion. Once compositing starts the run is not
// externally interruptible; it finishes or fails on its own.
func (s *Supervisor) run(job model.Job, target model.Target) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			zlog.Logger.Error().Interface("panic", r).Str("job_id", job.ID.String()).Msg("job panicked")
			_ = s.store.Jobs.MarkError(ctx, job.ID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		_ = s.store.Jobs.MarkError(ctx, job.ID, err.Error())
		return
	}
	defer s.sem.Release(1)

	if err := s.execute(ctx, job, target); err != nil {
		zlog.Logger.Warn().Err(err).Str("job_id", job.ID.String()).Msg("job failed")
		// The message carries the failure verbatim; it is the only surface
		// a caller ever sees.
		_ = s.store.Jobs.MarkError(ctx, job.ID, err.Error())
		return
	}

	zlog.Logger.Info().Str("job_id", job.ID.String()).Msg("job done")
}

func (s *Supervisor) execute(ctx context.Context, job model.Job, target model.Target) error {
	if err := s.store.Jobs.MarkRunning(ctx, job.ID, "Loading target..."); err != nil {
		return err
	}

	// After a restart the runtime representation is rebuilt from the
	// durable snapshot before any compositing happens.
	lib, err := s.store.Libraries.Runtime(ctx, job.LibraryID)
	if err != nil {
		return fmt.Errorf("load library: %w", err)
	}

	img, err := imaging.Open(target.Path)
	if err != nil {
		return fmt.Errorf("load target: %w", err)
	}

	comp := mosaic.NewCompositor(lib, mosaic.NewFileTileLoader(lib.Paths, s.thumbSize))
	out, err := comp.Render(img, mosaic.Params{
		CellSize:        job.Params.CellSize,
		RepeatWindow:    job.Params.RepeatWindow,
		ColorStrength:   job.Params.ColorStrength,
		OverlayStrength: job.Params.OverlayStrength,
	}, func(pct int, msg string) {
		_ = s.store.Jobs.SetProgress(ctx, job.ID, pct, msg)
	})
	if err != nil {
		return err
	}

	_ = s.store.Jobs.SetProgress(ctx, job.ID, 99, "Saving...")

	outPath := s.storage.ResultPath(job.ID.String())
	if err := imaging.Save(out, outPath, imaging.JPEGQuality(92)); err != nil {
		return fmt.Errorf("save result: %w", err)
	}

	return s.store.Jobs.MarkDone(ctx, job.ID, outPath)
}
