package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/pixmo/internal/model"
	"github.com/aliskhannn/pixmo/internal/mosaic"
)

// Libraries is the tile-library tier. Besides the record cache it holds the
// heavy runtime representation (tile paths, colors, bucket index), which is
// rebuilt from the durable snapshot on cache miss, e.g. after a restart.
type Libraries struct {
	mu      sync.Mutex
	cache   map[uuid.UUID]model.Library
	runtime map[uuid.UUID]*mosaic.Library
	repo    LibraryRepo
	files   FileRemover
	quant   int
	retry   retry.Strategy
}

// Create writes the library record to both tiers.
func (s *Libraries) Create(ctx context.Context, l model.Library) error {
	if err := s.repo.Create(ctx, l); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache[l.ID] = l
	s.mu.Unlock()
	return nil
}

// Get prefers the cache and falls through to the durable record.
func (s *Libraries) Get(ctx context.Context, id uuid.UUID) (model.Library, error) {
	s.mu.Lock()
	l, ok := s.cache[id]
	s.mu.Unlock()
	if ok {
		return l, nil
	}

	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return model.Library{}, err
	}
	s.mu.Lock()
	s.cache[id] = l
	s.mu.Unlock()
	return l, nil
}

// GetOwned is Get with an ownership check.
func (s *Libraries) GetOwned(ctx context.Context, id uuid.UUID, sessionID string) (model.Library, error) {
	l, err := s.Get(ctx, id)
	if err != nil {
		return model.Library{}, err
	}
	if l.SessionID != sessionID {
		return model.Library{}, ErrLibraryNotFound
	}
	return l, nil
}

// List returns the session's libraries from the durable record.
func (s *Libraries) List(ctx context.Context, sessionID string) ([]model.Library, error) {
	return s.repo.ListBySession(ctx, sessionID)
}

// Runtime returns the in-memory library, rehydrating it from the durable
// snapshot when the cache does not hold it. The snapshot read happens outside
// the lock; a concurrent rehydration of the same library is wasted work, not
// a correctness problem.
func (s *Libraries) Runtime(ctx context.Context, id uuid.UUID) (*mosaic.Library, error) {
	s.mu.Lock()
	rt, ok := s.runtime[id]
	s.mu.Unlock()
	if ok {
		return rt, nil
	}

	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Status != model.StatusReady || l.MetaPath == "" {
		return nil, fmt.Errorf("%w: no snapshot for library %s", ErrLibraryNotFound, id)
	}

	snap, err := mosaic.ReadSnapshot(l.MetaPath)
	if err != nil {
		return nil, fmt.Errorf("rehydrate library %s: %w", id, err)
	}
	rt, err = mosaic.FromSnapshot(snap, s.quant)
	if err != nil {
		return nil, fmt.Errorf("rehydrate library %s: %w", id, err)
	}

	s.mu.Lock()
	s.runtime[id] = rt
	s.mu.Unlock()
	return rt, nil
}

// SetProgress updates processing progress on both tiers. Called from the
// indexing task, so the durable write is retried.
func (s *Libraries) SetProgress(ctx context.Context, id uuid.UUID, progress int, message string) error {
	return s.update(ctx, id, func(l *model.Library) {
		l.Status = model.StatusProcessing
		l.Progress = progress
		l.Message = message
	}, nil)
}

// SetError moves the library to its terminal error state.
func (s *Libraries) SetError(ctx context.Context, id uuid.UUID, message string) error {
	return s.update(ctx, id, func(l *model.Library) {
		l.Status = model.StatusError
		l.Message = message
	}, nil)
}

// SetReady marks the library ready, records the snapshot location and
// installs the freshly built runtime into the cache.
func (s *Libraries) SetReady(ctx context.Context, id uuid.UUID, count int, metaPath string, rt *mosaic.Library) error {
	return s.update(ctx, id, func(l *model.Library) {
		l.Status = model.StatusReady
		l.Progress = 100
		l.Message = fmt.Sprintf("Ready: %d tiles", count)
		l.Count = count
		l.MetaPath = metaPath
		l.ZipPath = ""
	}, rt)
}

// Delete removes the library from both tiers, drops the runtime, and deletes
// thumbnails and snapshot. Durable record first so a concurrent cache miss
// cannot resurrect it.
func (s *Libraries) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.cache, id)
	delete(s.runtime, id)
	s.mu.Unlock()
	return s.files.RemoveLibraryDir(id.String())
}

func (s *Libraries) update(ctx context.Context, id uuid.UUID, mutate func(*model.Library), rt *mosaic.Library) error {
	l, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	mutate(&l)

	if err := retry.Do(func() error {
		return s.repo.Update(ctx, l)
	}, s.retry); err != nil {
		return err
	}

	s.mu.Lock()
	s.cache[id] = l
	if rt != nil {
		s.runtime[id] = rt
	}
	s.mu.Unlock()
	return nil
}
