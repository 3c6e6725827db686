package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/knoguchi/rse/internal/repository"
)

// RunRepo implements repository.RunRepository
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new run repository
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

const runColumns = `id, method, subject, status, query_count, input_chunks, output_chunks,
	options, cache_hit, duration_ms, error_message, created_at`

// Create inserts a run record
func (r *RunRepo) Create(ctx context.Context, run *repository.Run) error {
	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		run.ID, run.Method, run.Subject, run.Status,
		run.QueryCount, run.InputChunks, run.OutputChunks,
		[]byte(run.Options), run.CacheHit, run.Duration.Milliseconds(), run.ErrorMessage, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by ID
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	run, err := scanRun(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// List returns runs newest first, optionally filtered by method, with the total count
func (r *RunRepo) List(ctx context.Context, method string, limit, offset int) ([]*repository.Run, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM runs WHERE ($1 = '' OR method = $1)`
	if err := r.db.Pool.QueryRow(ctx, countQuery, method).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE ($1 = '' OR method = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Pool.Query(ctx, query, method, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*repository.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, total, nil
}

func scanRun(row pgx.Row) (*repository.Run, error) {
	var run repository.Run
	var options []byte
	var durationMS int64

	err := row.Scan(
		&run.ID, &run.Method, &run.Subject, &run.Status,
		&run.QueryCount, &run.InputChunks, &run.OutputChunks,
		&options, &run.CacheHit, &durationMS, &run.ErrorMessage, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Options = options
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return &run, nil
}

var _ repository.RunRepository = (*RunRepo)(nil)
