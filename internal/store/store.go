package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/pixmo/internal/model"
	"github.com/aliskhannn/pixmo/internal/mosaic"
)

// Sentinel errors shared by every repository implementation.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTargetNotFound  = errors.New("target not found")
	ErrLibraryNotFound = errors.New("library not found")
	ErrJobNotFound     = errors.New("job not found")
)

// SessionRepo is the durable record store for sessions.
type SessionRepo interface {
	Touch(ctx context.Context, id string, now time.Time) error
	Exists(ctx context.Context, id string) (bool, error)
	ListExpired(ctx context.Context, deadline time.Time) ([]string, error)
	Delete(ctx context.Context, id string) error
}

// TargetRepo is the durable record store for targets.
type TargetRepo interface {
	Create(ctx context.Context, t model.Target) error
	Get(ctx context.Context, id uuid.UUID) (model.Target, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.Target, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// LibraryRepo is the durable record store for tile libraries.
type LibraryRepo interface {
	Create(ctx context.Context, l model.Library) error
	Get(ctx context.Context, id uuid.UUID) (model.Library, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.Library, error)
	Update(ctx context.Context, l model.Library) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// JobRepo is the durable record store for jobs.
type JobRepo interface {
	Create(ctx context.Context, j model.Job) error
	Get(ctx context.Context, id uuid.UUID) (model.Job, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.Job, error)
	Update(ctx context.Context, j model.Job) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Repos bundles the durable record stores behind the cache tier.
type Repos struct {
	Sessions  SessionRepo
	Targets   TargetRepo
	Libraries LibraryRepo
	Jobs      JobRepo
}

// FileRemover removes the backing files of deleted entities.
type FileRemover interface {
	RemoveTargetDir(id string) error
	RemoveLibraryDir(id string) error
	RemoveResult(jobID string) error
}

// Store is the two-tier state store: one mutex-guarded in-memory cache per
// entity class in front of the durable repositories. Locks guard single map
// operations only; I/O always happens outside them. Indexer, compositor and
// supervisor talk to each other exclusively through this type.
type Store struct {
	Sessions  *Sessions
	Targets   *Targets
	Libraries *Libraries
	Jobs      *Jobs
}

// New builds a store over the given repositories. quant is the bucket width
// used when rehydrating library runtimes from snapshots. Durable writes from
// asynchronous tasks are retried with the given strategy.
func New(repos Repos, files FileRemover, quant int, strategy retry.Strategy) *Store {
	if strategy.Attempts < 1 {
		strategy.Attempts = 1
	}
	return &Store{
		Sessions: &Sessions{repo: repos.Sessions},
		Targets: &Targets{
			repo:  repos.Targets,
			files: files,
			cache: make(map[uuid.UUID]model.Target),
		},
		Libraries: &Libraries{
			repo:    repos.Libraries,
			files:   files,
			cache:   make(map[uuid.UUID]model.Library),
			runtime: make(map[uuid.UUID]*mosaic.Library),
			quant:   quant,
			retry:   strategy,
		},
		Jobs: &Jobs{
			repo:  repos.Jobs,
			files: files,
			cache: make(map[uuid.UUID]model.Job),
			retry: strategy,
		},
	}
}

// PurgeSession cascades deletion of everything a session owns: jobs first,
// then libraries and targets, then the session record itself.
func (s *Store) PurgeSession(ctx context.Context, sessionID string) error {
	jobs, err := s.Jobs.List(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if err := s.Jobs.Delete(ctx, j.ID); err != nil && !errors.Is(err, ErrJobNotFound) {
			return err
		}
	}

	libs, err := s.Libraries.List(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, l := range libs {
		if err := s.Libraries.Delete(ctx, l.ID); err != nil && !errors.Is(err, ErrLibraryNotFound) {
			return err
		}
	}

	targets, err := s.Targets.List(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, t := range targets {
		if err := s.Targets.Delete(ctx, t.ID); err != nil && !errors.Is(err, ErrTargetNotFound) {
			return err
		}
	}

	if err := s.Sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	return nil
}
