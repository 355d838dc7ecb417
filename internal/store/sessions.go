package store

import (
	"context"
	"time"
)

// Sessions is the session tier. Sessions carry no cached state beyond the
// durable record; every request touches the record anyway.
type Sessions struct {
	repo SessionRepo
}

// Touch refreshes the session's last-seen time, creating it if needed.
func (s *Sessions) Touch(ctx context.Context, id string) error {
	return s.repo.Touch(ctx, id, time.Now().UTC())
}

// Exists reports whether the session record is still present. The indexer
// checks this at every entry boundary to abort work for deleted sessions.
func (s *Sessions) Exists(ctx context.Context, id string) (bool, error) {
	return s.repo.Exists(ctx, id)
}

// ListExpired returns ids of sessions idle past the deadline.
func (s *Sessions) ListExpired(ctx context.Context, deadline time.Time) ([]string, error) {
	return s.repo.ListExpired(ctx, deadline)
}

// Delete removes the session record.
func (s *Sessions) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
