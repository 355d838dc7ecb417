package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/aliskhannn/pixmo/internal/model"
	"github.com/aliskhannn/pixmo/internal/store"
)

// Repository persists job records in PostgreSQL. Compositing parameters are
// stored as a JSON column.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new job record.
func (r *Repository) Create(ctx context.Context, j model.Job) error {
	query := `
		INSERT INTO jobs (id, session_id, target_id, library_id, status, progress, message, result_path, params, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	paramsJSON, err := json.Marshal(j.Params)
	if err != nil {
		return fmt.Errorf("create: failed to marshal job params: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		j.ID, j.SessionID, j.TargetID, j.LibraryID, j.Status, j.Progress, j.Message, j.ResultPath, paramsJSON, j.CreatedAt)
	if err != nil {
		return fmt.Errorf("create: failed to save job: %w", err)
	}
	return nil
}

// Get retrieves a job record by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (model.Job, error) {
	query := `
		SELECT session_id, target_id, library_id, status, progress, message, result_path, params, created_at
		FROM jobs
		WHERE id = $1
	`

	j := model.Job{ID: id}
	var paramsBytes []byte

	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&j.SessionID, &j.TargetID, &j.LibraryID, &j.Status, &j.Progress, &j.Message, &j.ResultPath, &paramsBytes, &j.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Job{}, store.ErrJobNotFound
		}
		return model.Job{}, fmt.Errorf("get: failed to get job: %w", err)
	}

	if err := json.Unmarshal(paramsBytes, &j.Params); err != nil {
		return model.Job{}, fmt.Errorf("get: failed to unmarshal job params: %w", err)
	}
	return j, nil
}

// ListBySession retrieves all jobs owned by a session.
func (r *Repository) ListBySession(ctx context.Context, sessionID string) ([]model.Job, error) {
	query := `
		SELECT id, target_id, library_id, status, progress, message, result_path, params, created_at
		FROM jobs
		WHERE session_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list: failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j := model.Job{SessionID: sessionID}
		var paramsBytes []byte
		if err := rows.Scan(&j.ID, &j.TargetID, &j.LibraryID, &j.Status, &j.Progress, &j.Message, &j.ResultPath, &paramsBytes, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("list: failed to scan job: %w", err)
		}
		if err := json.Unmarshal(paramsBytes, &j.Params); err != nil {
			return nil, fmt.Errorf("list: failed to unmarshal job params: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Update rewrites the mutable fields of a job record.
func (r *Repository) Update(ctx context.Context, j model.Job) error {
	query := `
		UPDATE jobs
		SET status = $1, progress = $2, message = $3, result_path = $4
		WHERE id = $5
	`

	res, err := r.db.ExecContext(ctx, query, j.Status, j.Progress, j.Message, j.ResultPath, j.ID)
	if err != nil {
		return fmt.Errorf("update: failed to update job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update: failed to get number of rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrJobNotFound
	}
	return nil
}

// Delete removes a job record by id.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM jobs WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete: failed to delete job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete: failed to get number of rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrJobNotFound
	}
	return nil
}
