package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cardotrejos/babypeek-sub000/internal/domain"
	"github.com/cardotrejos/babypeek-sub000/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobStore struct {
	pool *pgxpool.Pool
}

func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{pool: pool}
}

const jobColumns = `id, status, stage, progress, input_ref, style,
	       external_run_id, result_ref, error_message, created_at, updated_at`

func (s *JobStore) Insert(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			id, status, stage, progress, input_ref, style,
			external_run_id, result_ref, error_message, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		job.Stage,
		job.Progress,
		job.InputRef,
		job.Style,
		job.ExternalRunID,
		job.ResultRef,
		job.ErrorMessage,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return scanJob(s.pool.QueryRow(ctx, query, id))
}

// ConditionalUpdate is the guarded transition: the WHERE clause on the
// expected status makes postgres the serialization point, so two racing
// callers produce exactly one affected row between them. Progress only goes
// up while a job stays in processing.
func (s *JobStore) ConditionalUpdate(ctx context.Context, id string, expected domain.Status, patch repository.Patch) (*domain.Job, bool, error) {
	query := `
		UPDATE jobs
		SET    status          = $3,
		       stage           = CASE WHEN $4 THEN NULL ELSE COALESCE($5, stage) END,
		       progress        = CASE
		           WHEN $6::int IS NULL THEN progress
		           WHEN status = 'processing' AND $3 = 'processing' THEN GREATEST(progress, $6)
		           ELSE $6
		       END,
		       external_run_id = CASE WHEN $7 THEN NULL ELSE COALESCE($8, external_run_id) END,
		       result_ref      = COALESCE($9, result_ref),
		       error_message   = CASE WHEN $10 THEN NULL ELSE COALESCE($11, error_message) END,
		       updated_at      = $12
		WHERE id = $1 AND status = $2
		RETURNING ` + jobColumns

	row := s.pool.QueryRow(ctx, query,
		id,
		expected,
		patch.Status,
		patch.ClearStage,
		patch.Stage,
		patch.Progress,
		patch.ClearRunID,
		patch.ExternalRunID,
		patch.ResultRef,
		patch.ClearError,
		patch.ErrorMessage,
		patch.UpdatedAt,
	)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			// Zero rows matched the guard; the caller re-reads to distinguish
			// "unknown id" from "wrong status".
			return nil, false, nil
		}
		return nil, false, err
	}
	return job, true, nil
}

func (s *JobStore) ListStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE  status = 'processing'
		  AND  updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// pgx.Row and pgx.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	err := row.Scan(
		&j.ID, &j.Status, &j.Stage, &j.Progress, &j.InputRef, &j.Style,
		&j.ExternalRunID, &j.ResultRef, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}
