package session

import (
	"context"
	"fmt"
	"time"

	"github.com/wb-go/wbf/dbpg"

	"github.com/aliskhannn/pixmo/internal/store"
)

// Repository persists session records in PostgreSQL.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// Touch upserts the session and refreshes its last-seen time.
func (r *Repository) Touch(ctx context.Context, id string, now time.Time) error {
	query := `
		INSERT INTO sessions (id, created_at, last_seen)
		VALUES ($1, $2, $2)
		ON CONFLICT (id) DO UPDATE SET last_seen = EXCLUDED.last_seen
	`

	if _, err := r.db.ExecContext(ctx, query, id, now); err != nil {
		return fmt.Errorf("touch: failed to upsert session: %w", err)
	}
	return nil
}

// Exists reports whether the session record is present.
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	query := `
		SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists: failed to check session: %w", err)
	}
	return exists, nil
}

// ListExpired returns ids of sessions last seen before the deadline.
func (r *Repository) ListExpired(ctx context.Context, deadline time.Time) ([]string, error) {
	query := `
		SELECT id FROM sessions WHERE last_seen < $1
	`

	rows, err := r.db.QueryContext(ctx, query, deadline)
	if err != nil {
		return nil, fmt.Errorf("list expired: failed to query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list expired: failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes the session record.
func (r *Repository) Delete(ctx context.Context, id string) error {
	query := `
		DELETE FROM sessions WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete: failed to delete session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete: failed to get number of rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}
