// Package storetest provides in-memory repository fakes for exercising the
// state store and the asynchronous tasks on top of it without a database.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/pixmo/internal/model"
	"github.com/aliskhannn/pixmo/internal/store"
)

// SessionRepo is an in-memory store.SessionRepo.
type SessionRepo struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func NewSessionRepo() *SessionRepo {
	return &SessionRepo{lastSeen: make(map[string]time.Time)}
}

func (r *SessionRepo) Touch(_ context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSeen[id] = now
	return nil
}

func (r *SessionRepo) Exists(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.lastSeen[id]
	return ok, nil
}

func (r *SessionRepo) ListExpired(_ context.Context, deadline time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, seen := range r.lastSeen {
		if seen.Before(deadline) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *SessionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lastSeen[id]; !ok {
		return store.ErrSessionNotFound
	}
	delete(r.lastSeen, id)
	return nil
}

// TargetRepo is an in-memory store.TargetRepo.
type TargetRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]model.Target
}

func NewTargetRepo() *TargetRepo {
	return &TargetRepo{records: make(map[uuid.UUID]model.Target)}
}

// Put seeds a record directly, bypassing the cache tier.
func (r *TargetRepo) Put(t model.Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[t.ID] = t
}

// Drop removes a record directly, bypassing the cache tier.
func (r *TargetRepo) Drop(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
}

func (r *TargetRepo) Create(_ context.Context, t model.Target) error {
	r.Put(t)
	return nil
}

func (r *TargetRepo) Get(_ context.Context, id uuid.UUID) (model.Target, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.records[id]
	if !ok {
		return model.Target{}, store.ErrTargetNotFound
	}
	return t, nil
}

func (r *TargetRepo) ListBySession(_ context.Context, sessionID string) ([]model.Target, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Target
	for _, t := range r.records {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *TargetRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return store.ErrTargetNotFound
	}
	delete(r.records, id)
	return nil
}

// LibraryRepo is an in-memory store.LibraryRepo.
type LibraryRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]model.Library
}

func NewLibraryRepo() *LibraryRepo {
	return &LibraryRepo{records: make(map[uuid.UUID]model.Library)}
}

// Put seeds a record directly, bypassing the cache tier.
func (r *LibraryRepo) Put(l model.Library) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[l.ID] = l
}

func (r *LibraryRepo) Create(_ context.Context, l model.Library) error {
	r.Put(l)
	return nil
}

func (r *LibraryRepo) Get(_ context.Context, id uuid.UUID) (model.Library, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.records[id]
	if !ok {
		return model.Library{}, store.ErrLibraryNotFound
	}
	return l, nil
}

func (r *LibraryRepo) ListBySession(_ context.Context, sessionID string) ([]model.Library, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Library
	for _, l := range r.records {
		if l.SessionID == sessionID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *LibraryRepo) Update(_ context.Context, l model.Library) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[l.ID]; !ok {
		return store.ErrLibraryNotFound
	}
	r.records[l.ID] = l
	return nil
}

func (r *LibraryRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return store.ErrLibraryNotFound
	}
	delete(r.records, id)
	return nil
}

// JobRepo is an in-memory store.JobRepo.
type JobRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]model.Job
}

func NewJobRepo() *JobRepo {
	return &JobRepo{records: make(map[uuid.UUID]model.Job)}
}

// Len reports how many job records exist.
func (r *JobRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *JobRepo) Create(_ context.Context, j model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[j.ID] = j
	return nil
}

func (r *JobRepo) Get(_ context.Context, id uuid.UUID) (model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.records[id]
	if !ok {
		return model.Job{}, store.ErrJobNotFound
	}
	return j, nil
}

func (r *JobRepo) ListBySession(_ context.Context, sessionID string) ([]model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Job
	for _, j := range r.records {
		if j.SessionID == sessionID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (r *JobRepo) Update(_ context.Context, j model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[j.ID]; !ok {
		return store.ErrJobNotFound
	}
	r.records[j.ID] = j
	return nil
}

func (r *JobRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return store.ErrJobNotFound
	}
	delete(r.records, id)
	return nil
}

// Files is a store.FileRemover that records removals instead of touching disk.
type Files struct {
	mu          sync.Mutex
	TargetDirs  []string
	LibraryDirs []string
	Results     []string
}

func (f *Files) RemoveTargetDir(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TargetDirs = append(f.TargetDirs, id)
	return nil
}

func (f *Files) RemoveLibraryDir(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LibraryDirs = append(f.LibraryDirs, id)
	return nil
}

func (f *Files) RemoveResult(jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Results = append(f.Results, jobID)
	return nil
}

// Repos bundles the fakes so tests can seed and inspect records directly.
type Repos struct {
	Sessions  *SessionRepo
	Targets   *TargetRepo
	Libraries *LibraryRepo
	Jobs      *JobRepo
}

// NewStore builds a Store over fresh fakes with a single-attempt retry
// strategy and returns the fakes alongside it.
func NewStore(files store.FileRemover, quant int) (*store.Store, *Repos) {
	repos := &Repos{
		Sessions:  NewSessionRepo(),
		Targets:   NewTargetRepo(),
		Libraries: NewLibraryRepo(),
		Jobs:      NewJobRepo(),
	}
	st := store.New(store.Repos{
		Sessions:  repos.Sessions,
		Targets:   repos.Targets,
		Libraries: repos.Libraries,
		Jobs:      repos.Jobs,
	}, files, quant, retry.Strategy{Attempts: 1})
	return st, repos
}
