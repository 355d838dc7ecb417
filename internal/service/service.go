package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/aliskhannn/pixmo/internal/indexer"
	"github.com/aliskhannn/pixmo/internal/model"
	"github.com/aliskhannn/pixmo/internal/storage/file"
	"github.com/aliskhannn/pixmo/internal/store"
)

// Service owns target and library lifecycles: uploads, listings, deletion and
// the handoff to the asynchronous indexer. Job execution lives in the
// supervisor.
type Service struct {
	store      *store.Store
	storage    *file.Storage
	indexer    *indexer.Indexer
	allowedExt map[string]bool

	// baseCtx outlives individual requests; indexing tasks are canceled by
	// process shutdown, not by the upload request ending.
	baseCtx context.Context
}

// New creates a Service. baseCtx should be the application lifetime context.
func New(baseCtx context.Context, st *store.Store, storage *file.Storage, ix *indexer.Indexer, allowedExt map[string]bool) *Service {
	return &Service{
		store:      st,
		storage:    storage,
		indexer:    ix,
		allowedExt: allowedExt,
		baseCtx:    baseCtx,
	}
}

// CreateTarget stores an uploaded target image, probes its dimensions and
// creates the record.
func (s *Service) CreateTarget(ctx context.Context, sessionID, filename string, src io.Reader) (model.Target, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !s.allowedExt[ext] {
		return model.Target{}, fmt.Errorf("unsupported image extension %q", ext)
	}

	id := uuid.New()
	path, err := s.storage.SaveTarget(id.String(), ext, src)
	if err != nil {
		return model.Target{}, fmt.Errorf("save target: %w", err)
	}

	img, err := imaging.Open(path)
	if err != nil {
		_ = s.storage.RemoveTargetDir(id.String())
		return model.Target{}, fmt.Errorf("decode target: %w", err)
	}

	t := model.Target{
		ID:        id,
		SessionID: sessionID,
		Name:      filename,
		Path:      path,
		Width:     img.Bounds().Dx(),
		Height:    img.Bounds().Dy(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Targets.Create(ctx, t); err != nil {
		_ = s.storage.RemoveTargetDir(id.String())
		return model.Target{}, fmt.Errorf("create target: %w", err)
	}
	return t, nil
}

// ListTargets returns the session's targets.
func (s *Service) ListTargets(ctx context.Context, sessionID string) ([]model.Target, error) {
	return s.store.Targets.List(ctx, sessionID)
}

// TargetFile resolves the stored file path of an owned target.
func (s *Service) TargetFile(ctx context.Context, sessionID string, id uuid.UUID) (string, error) {
	t, err := s.store.Targets.GetOwned(ctx, id, sessionID)
	if err != nil {
		return "", err
	}
	return t.Path, nil
}

// DeleteTarget removes an owned target from both tiers and disk.
func (s *Service) DeleteTarget(ctx context.Context, sessionID string, id uuid.UUID) error {
	if _, err := s.store.Targets.GetOwned(ctx, id, sessionID); err != nil {
		return err
	}
	return s.store.Targets.Delete(ctx, id)
}

// CreateLibrary stores the uploaded archive, creates the queued record and
// kicks off indexing in the background.
func (s *Service) CreateLibrary(ctx context.Context, sessionID, name string, archive io.Reader) (uuid.UUID, error) {
	id := uuid.New()

	zipPath, err := s.storage.SaveArchive(id.String(), archive)
	if err != nil {
		return uuid.Nil, fmt.Errorf("save archive: %w", err)
	}

	l := model.Library{
		ID:        id,
		SessionID: sessionID,
		Name:      name,
		Status:    model.StatusQueued,
		Message:   "Queued",
		ZipPath:   zipPath,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Libraries.Create(ctx, l); err != nil {
		_ = s.storage.RemoveLibraryDir(id.String())
		return uuid.Nil, fmt.Errorf("create library: %w", err)
	}

	s.indexer.Run(s.baseCtx, sessionID, id, zipPath)

	return id, nil
}

// ListLibraries returns the session's libraries.
func (s *Service) ListLibraries(ctx context.Context, sessionID string) ([]model.Library, error) {
	return s.store.Libraries.List(ctx, sessionID)
}

// GetLibrary returns one owned library record.
func (s *Service) GetLibrary(ctx context.Context, sessionID string, id uuid.UUID) (model.Library, error) {
	return s.store.Libraries.GetOwned(ctx, id, sessionID)
}

// DeleteLibrary removes an owned library from both tiers and disk.
func (s *Service) DeleteLibrary(ctx context.Context, sessionID string, id uuid.UUID) error {
	if _, err := s.store.Libraries.GetOwned(ctx, id, sessionID); err != nil {
		return err
	}
	return s.store.Libraries.Delete(ctx, id)
}

// CloseSession deletes the session and everything it owns.
func (s *Service) CloseSession(ctx context.Context, sessionID string) error {
	return s.store.PurgeSession(ctx, sessionID)
}
