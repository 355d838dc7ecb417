package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/pixmo/internal/store"
)

// Sweeper expires idle sessions on a fixed interval, cascading deletion
// through jobs, libraries and targets. It races with in-flight tasks on the
// same entities by design; cleanup is best effort.
type Sweeper struct {
	store    *store.Store
	ttl      time.Duration
	interval time.Duration
}

// New creates a Sweeper with the given idle TTL and sweep interval.
func New(st *store.Store, ttl, interval time.Duration) *Sweeper {
	return &Sweeper{store: st, ttl: ttl, interval: interval}
}

// Run sweeps until the context is canceled.
func (s *Sweeper) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zlog.Logger.Info().Msg("shutdown signal received, stopping sweeper")
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				zlog.Logger.Err(err).Msg("session sweep failed")
				continue
			}
			if n > 0 {
				zlog.Logger.Info().Int("sessions", n).Msg("expired sessions removed")
			}
		}
	}
}

// Sweep removes every session idle past the TTL and returns how many were
// deleted. One session failing to purge does not stop the others.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	deadline := time.Now().UTC().Add(-s.ttl)

	ids, err := s.store.Sessions.ListExpired(ctx, deadline)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		if err := s.store.PurgeSession(ctx, id); err != nil {
			zlog.Logger.Err(err).Str("session_id", id).Msg("failed to purge session")
			continue
		}
		removed++
	}
	return removed, nil
}
