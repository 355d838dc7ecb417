package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/pixmo/internal/model"
)

// Jobs is the job tier: a mutex-guarded cache over the job repo.
type Jobs struct {
	mu    sync.Mutex
	cache map[uuid.UUID]model.Job
	repo  JobRepo
	files FileRemover
	retry retry.Strategy
}

// Create writes the job to both tiers.
func (s *Jobs) Create(ctx context.Context, j model.Job) error {
	if err := s.repo.Create(ctx, j); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache[j.ID] = j
	s.mu.Unlock()
	return nil
}

// Get prefers the cache and falls through to the durable record.
func (s *Jobs) Get(ctx context.Context, id uuid.UUID) (model.Job, error) {
	s.mu.Lock()
	j, ok := s.cache[id]
	s.mu.Unlock()
	if ok {
		return j, nil
	}

	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return model.Job{}, err
	}
	s.mu.Lock()
	s.cache[id] = j
	s.mu.Unlock()
	return j, nil
}

// GetOwned is Get with an ownership check.
func (s *Jobs) GetOwned(ctx context.Context, id uuid.UUID, sessionID string) (model.Job, error) {
	j, err := s.Get(ctx, id)
	if err != nil {
		return model.Job{}, err
	}
	if j.SessionID != sessionID {
		return model.Job{}, ErrJobNotFound
	}
	return j, nil
}

// List returns the session's jobs from the durable record.
func (s *Jobs) List(ctx context.Context, sessionID string) ([]model.Job, error) {
	return s.repo.ListBySession(ctx, sessionID)
}

// MarkRunning transitions the job to running.
func (s *Jobs) MarkRunning(ctx context.Context, id uuid.UUID, message string) error {
	return s.update(ctx, id, func(j *model.Job) {
		j.Status = model.StatusRunning
		j.Progress = 0
		j.Message = message
	})
}

// SetProgress updates run progress. Terminal jobs are left untouched.
func (s *Jobs) SetProgress(ctx context.Context, id uuid.UUID, progress int, message string) error {
	return s.update(ctx, id, func(j *model.Job) {
		j.Progress = progress
		j.Message = message
	})
}

// MarkDone records the result reference and moves the job to done.
func (s *Jobs) MarkDone(ctx context.Context, id uuid.UUID, resultPath string) error {
	return s.update(ctx, id, func(j *model.Job) {
		j.Status = model.StatusDone
		j.Progress = 100
		j.Message = "Done!"
		j.ResultPath = resultPath
	})
}

// MarkError records the failure message verbatim and moves the job to error.
func (s *Jobs) MarkError(ctx context.Context, id uuid.UUID, message string) error {
	return s.update(ctx, id, func(j *model.Job) {
		j.Status = model.StatusError
		j.Message = message
	})
}

// Delete removes the job from both tiers and its rendered result. Durable
// record first so a concurrent cache miss cannot resurrect it.
func (s *Jobs) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()
	return s.files.RemoveResult(id.String())
}

// update applies mutate to the current record and writes both tiers. Done and
// error are terminal: once reached, no further transition is applied.
func (s *Jobs) update(ctx context.Context, id uuid.UUID, mutate func(*model.Job)) error {
	j, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if model.IsTerminal(j.Status) {
		return nil
	}
	mutate(&j)

	if err := retry.Do(func() error {
		return s.repo.Update(ctx, j)
	}, s.retry); err != nil {
		return err
	}

	s.mu.Lock()
	s.cache[id] = j
	s.mu.Unlock()
	return nil
}
