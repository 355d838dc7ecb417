package target

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/aliskhannn/pixmo/internal/model"
	"github.com/aliskhannn/pixmo/internal/store"
)

// Repository persists target records in PostgreSQL.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new target record.
func (r *Repository) Create(ctx context.Context, t model.Target) error {
	query := `
		INSERT INTO targets (id, session_id, name, path, width, height, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query, t.ID, t.SessionID, t.Name, t.Path, t.Width, t.Height, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create: failed to save target: %w", err)
	}
	return nil
}

// Get retrieves a target record by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (model.Target, error) {
	query := `
		SELECT session_id, name, path, width, height, created_at
		FROM targets
		WHERE id = $1
	`

	t := model.Target{ID: id}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&t.SessionID, &t.Name, &t.Path, &t.Width, &t.Height, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Target{}, store.ErrTargetNotFound
		}
		return model.Target{}, fmt.Errorf("get: failed to get target: %w", err)
	}
	return t, nil
}

// ListBySession retrieves all targets owned by a session.
func (r *Repository) ListBySession(ctx context.Context, sessionID string) ([]model.Target, error) {
	query := `
		SELECT id, name, path, width, height, created_at
		FROM targets
		WHERE session_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list: failed to query targets: %w", err)
	}
	defer rows.Close()

	var targets []model.Target
	for rows.Next() {
		t := model.Target{SessionID: sessionID}
		if err := rows.Scan(&t.ID, &t.Name, &t.Path, &t.Width, &t.Height, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("list: failed to scan target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// Delete removes a target record by id.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM targets WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete: failed to delete target: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete: failed to get number of rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrTargetNotFound
	}
	return nil
}
