package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a job does not exist.
var ErrNotFound = errors.New("record not found")

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// JobRepository handles conversion job persistence.
type JobRepository struct {
	db DB
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, source_name, fingerprint, dpi, language, psm, status, stage,
	pages_done, pages_total, output_name, error_kind, error, cache_hit,
	created_at, started_at, completed_at`

// Create inserts a new job.
func (r *JobRepository) Create(ctx context.Context, job *Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = JobStatusQueued
	}

	query := `
		INSERT INTO conversion_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.SourceName, job.Fingerprint, job.DPI, job.Language, job.SegMode,
		job.Status, job.Stage, job.PagesDone, job.PagesTotal, job.OutputName,
		job.ErrorKind, job.Error, job.CacheHit,
		job.CreatedAt, nullTime(job.StartedAt), nullTime(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// MarkRunning records that a job has started.
func (r *JobRepository) MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	query := `UPDATE conversion_jobs SET status = $1, started_at = $2 WHERE id = $3`
	return r.exec(ctx, query, JobStatusRunning, startedAt.UTC(), id)
}

// UpdateProgress records pipeline progress for a running job.
func (r *JobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, stage string, done, total int) error {
	query := `UPDATE conversion_jobs SET stage = $1, pages_done = $2, pages_total = $3 WHERE id = $4`
	return r.exec(ctx, query, stage, done, total, id)
}

// Finish records the terminal state of a job.
func (r *JobRepository) Finish(ctx context.Context, job *Job) error {
	if job.CompletedAt == nil {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	query := `
		UPDATE conversion_jobs
		SET status = $1, stage = $2, pages_done = $3, pages_total = $4, output_name = $5,
			error_kind = $6, error = $7, cache_hit = $8, completed_at = $9
		WHERE id = $10
	`
	return r.exec(ctx, query,
		job.Status, job.Stage, job.PagesDone, job.PagesTotal, job.OutputName,
		job.ErrorKind, job.Error, job.CacheHit, job.CompletedAt.UTC(), job.ID,
	)
}

// GetByID retrieves a job by ID.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM conversion_jobs WHERE id = $1`
	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListRecent returns up to limit jobs, newest first.
func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + jobColumns + ` FROM conversion_jobs ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *JobRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job                    Job
		status                 string
		startedAt, completedAt sql.NullTime
	)
	err := row.Scan(
		&job.ID, &job.SourceName, &job.Fingerprint, &job.DPI, &job.Language, &job.SegMode,
		&status, &job.Stage, &job.PagesDone, &job.PagesTotal, &job.OutputName,
		&job.ErrorKind, &job.Error, &job.CacheHit,
		&job.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = JobStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
