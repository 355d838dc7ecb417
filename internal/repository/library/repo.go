package library

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

// Repository persists tile-library records in PostgreSQL. Tile paths, colors
// and the bucket index are not stored here; they live in the snapshot file
// referenced by meta_path.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new library record.
func (r *Repository) Create(ctx context.Context, l model.Library) error {
	query := `
		INSERT INTO libraries (id, session_id, name, status, progress, message, count, zip_path, meta_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		l.ID, l.SessionID, l.Name, l.Status, l.Progress, l.Message, l.Count, l.ZipPath, l.MetaPath, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("create: failed to save library: %w", err)
	}
	return nil
}

// Get retrieves a library record by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (model.Library, error) {
	query := `
		SELECT session_id, name, status, progress, message, count, zip_path, meta_path, created_at
		FROM libraries
		WHERE id = $1
	`

	l := model.Library{ID: id}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&l.SessionID, &l.Name, &l.Status, &l.Progress, &l.Message, &l.Count, &l.ZipPath, &l.MetaPath, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Library{}, store.ErrLibraryNotFound
		}
		return model.Library{}, fmt.Errorf("get: failed to get library: %w", err)
	}
	return l, nil
}

// ListBySession retrieves all libraries owned by a session.
func (r *Repository) ListBySession(ctx context.Context, sessionID string) ([]model.Library, error) {
	query := `
		SELECT id, name, status, progress, message, count, zip_path, meta_path, created_at
		FROM libraries
		WHERE session_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list: failed to query libraries: %w", err)
	}
	defer rows.Close()

	var libs []model.Library
	for rows.Next() {
		l := model.Library{SessionID: sessionID}
		if err := rows.Scan(&l.ID, &l.Name, &l.Status, &l.Progress, &l.Message, &l.Count, &l.ZipPath, &l.MetaPath, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("list: failed to scan library: %w", err)
		}
		libs = append(libs, l)
	}
	return libs, rows.Err()
}

// Update rewrites the mutable fields of a library record.
func (r *Repository) Update(ctx context.Context, l model.Library) error {
	query := `
		UPDATE libraries
		SET status = $1, progress = $2, message = $3, count = $4, zip_path = $5, meta_path = $6
		WHERE id = $7
	`

	res, err := r.db.ExecContext(ctx, query, l.Status, l.Progress, l.Message, l.Count, l.ZipPath, l.MetaPath, l.ID)
	if err != nil {
		return fmt.Errorf("update: failed to update library: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update: failed to get number of rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrLibraryNotFound
	}
	return nil
}

// Delete removes a library record by id.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM libraries WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete: failed to delete library: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete: failed to get number of rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrLibraryNotFound
	}
	return nil
}
