package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/aliskhannn/pixmo/internal/model"
)

// Targets is the target tier: a mutex-guarded cache over the target repo.
type Targets struct {
	mu    sync.Mutex
	cache map[uuid.UUID]model.Target
	repo  TargetRepo
	files FileRemover
}

// Create writes the target to both tiers.
func (s *Targets) Create(ctx context.Context, t model.Target) error {
	if err := s.repo.Create(ctx, t); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache[t.ID] = t
	s.mu.Unlock()
	return nil
}

// Get prefers the cache and falls through to the durable record.
func (s *Targets) Get(ctx context.Context, id uuid.UUID) (model.Target, error) {
	s.mu.Lock()
	t, ok := s.cache[id]
	s.mu.Unlock()
	if ok {
		return t, nil
	}

	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return model.Target{}, err
	}
	s.mu.Lock()
	s.cache[id] = t
	s.mu.Unlock()
	return t, nil
}

// GetOwned is Get with an ownership check; a target belonging to another
// session is indistinguishable from a missing one.
func (s *Targets) GetOwned(ctx context.Context, id uuid.UUID, sessionID string) (model.Target, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return model.Target{}, err
	}
	if t.SessionID != sessionID {
		return model.Target{}, ErrTargetNotFound
	}
	return t, nil
}

// List returns the session's targets from the durable record.
func (s *Targets) List(ctx context.Context, sessionID string) ([]model.Target, error) {
	return s.repo.ListBySession(ctx, sessionID)
}

// Delete removes the target from both tiers and its backing files. The
// durable record goes first so a concurrent cache miss cannot resurrect it.
func (s *Targets) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()
	return s.files.RemoveTargetDir(id.String())
}
