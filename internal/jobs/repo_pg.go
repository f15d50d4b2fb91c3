package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PGStore implements Store using Postgres.
type PGStore struct {
	DB *sql.DB
}

const jobColumns = `id, type, subject_id, status, progress, error, error_code, result, retry_count,
       created_at, started_at, completed_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var errMsg sql.NullString
	var errCode sql.NullString
	var result sql.NullString
	var startedAt sql.NullTime
	var completedAt sql.NullTime
	if err := row.Scan(
		&j.ID,
		&j.Type,
		&j.SubjectID,
		&j.Status,
		&j.Progress,
		&errMsg,
		&errCode,
		&result,
		&j.RetryCount,
		&j.CreatedAt,
		&startedAt,
		&completedAt,
		&j.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	if errMsg.Valid {
		j.Error = &errMsg.String
	}
	if errCode.Valid {
		j.ErrorCode = errCode.String
	}
	if result.Valid && result.String != "" && result.String != "null" {
		var res Result
		if err := json.Unmarshal([]byte(result.String), &res); err == nil {
			j.Result = &res
		}
	}
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	return j, nil
}

func insertJob(ctx context.Context, ex execer, job Job) error {
	const query = `
INSERT INTO jobs (id, type, subject_id, status, progress, retry_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`
	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := ex.ExecContext(ctx, query,
		job.ID,
		job.Type,
		job.SubjectID,
		StatusPending,
		0,
		job.RetryCount,
		createdAt,
	)
	return err
}

// Create inserts a new PENDING job.
func (s *PGStore) Create(ctx context.Context, job Job) error {
	return insertJob(ctx, s.DB, job)
}

// Get returns a job by ID.
func (s *PGStore) Get(ctx context.Context, jobID string) (Job, error) {
	const query = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1::uuid`
	return scanJob(s.DB.QueryRowContext(ctx, query, jobID))
}

// Claim moves a PENDING job to PROCESSING. A lost race returns ErrClaimConflict.
func (s *PGStore) Claim(ctx context.Context, jobID string) (Job, error) {
	const query = `
UPDATE jobs
SET status = 'PROCESSING',
    started_at = COALESCE(started_at, now()),
    updated_at = now()
WHERE id = $1::uuid AND status = 'PENDING'
RETURNING ` + jobColumns
	job, err := scanJob(s.DB.QueryRowContext(ctx, query, jobID))
	if errors.Is(err, ErrNotFound) {
		return Job{}, s.conflictOrMissing(ctx, jobID, ErrClaimConflict)
	}
	return job, err
}

// ClaimForResume moves a FAILED job back to PROCESSING and clears its error.
func (s *PGStore) ClaimForResume(ctx context.Context, jobID string) (Job, error) {
	const query = `
UPDATE jobs
SET status = 'PROCESSING',
    error = NULL,
    error_code = NULL,
    completed_at = NULL,
    started_at = COALESCE(started_at, now()),
    updated_at = now()
WHERE id = $1::uuid AND status = 'FAILED'
RETURNING ` + jobColumns
	job, err := scanJob(s.DB.QueryRowContext(ctx, query, jobID))
	if errors.Is(err, ErrNotFound) {
		return Job{}, s.conflictOrMissing(ctx, jobID, ErrClaimConflict)
	}
	return job, err
}

// ClaimNextPending claims the oldest PENDING job, skipping rows locked by other workers.
func (s *PGStore) ClaimNextPending(ctx context.Context) (Job, error) {
	const query = `
UPDATE jobs
SET status = 'PROCESSING',
    started_at = COALESCE(started_at, now()),
    updated_at = now()
WHERE id = (
    SELECT id FROM jobs
    WHERE status = 'PENDING'
    ORDER BY created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + jobColumns
	job, err := scanJob(s.DB.QueryRowContext(ctx, query))
	if errors.Is(err, ErrNotFound) {
		return Job{}, ErrNoPendingJobs
	}
	return job, err
}

const completeJobQuery = `
UPDATE jobs
SET status = 'COMPLETED',
    result = $2::jsonb,
    progress = 100,
    error = NULL,
    error_code = NULL,
    completed_at = now(),
    updated_at = now()
WHERE id = $1::uuid AND status = 'PROCESSING'`

// Complete moves a PROCESSING job to COMPLETED with its result.
func (s *PGStore) Complete(ctx context.Context, jobID string, result Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, completeJobQuery, jobID, payload)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.conflictOrMissing(ctx, jobID, ErrInvalidTransition)
	}
	return nil
}

// Fail moves a PROCESSING job to FAILED and increments retry_count.
func (s *PGStore) Fail(ctx context.Context, jobID, code, message string) (Job, error) {
	const query = `
UPDATE jobs
SET status = 'FAILED',
    error = $2,
    error_code = NULLIF($3, ''),
    retry_count = retry_count + 1,
    updated_at = now()
WHERE id = $1::uuid AND status = 'PROCESSING'
RETURNING ` + jobColumns
	job, err := scanJob(s.DB.QueryRowContext(ctx, query, jobID, message, code))
	if errors.Is(err, ErrNotFound) {
		return Job{}, s.conflictOrMissing(ctx, jobID, ErrInvalidTransition)
	}
	return job, err
}

// UpdateProgress records advisory progress for a PROCESSING job and bumps its lease.
func (s *PGStore) UpdateProgress(ctx context.Context, jobID string, percent int) error {
	const query = `
UPDATE jobs
SET progress = $2,
    updated_at = now()
WHERE id = $1::uuid AND status = 'PROCESSING'`
	res, err := s.DB.ExecContext(ctx, query, jobID, clampProgress(percent))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.conflictOrMissing(ctx, jobID, ErrInvalidTransition)
	}
	return nil
}

// ListStale returns PROCESSING jobs whose lease (updated_at) is older than the threshold.
func (s *PGStore) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]Job, error) {
	return s.listIdle(ctx, StatusProcessing, olderThan, limit)
}

// ListPending returns PENDING jobs untouched since olderThan, oldest first.
func (s *PGStore) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]Job, error) {
	return s.listIdle(ctx, StatusPending, olderThan, limit)
}

func (s *PGStore) listIdle(ctx context.Context, status string, olderThan time.Time, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
SELECT ` + jobColumns + `
FROM jobs
WHERE status = $1 AND updated_at < $2
ORDER BY updated_at ASC
LIMIT $3`
	rows, err := s.DB.QueryContext(ctx, query, status, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// TouchPending bumps updated_at on a job that is still PENDING.
func (s *PGStore) TouchPending(ctx context.Context, jobID string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE jobs SET updated_at = now() WHERE id = $1::uuid AND status = 'PENDING'`, jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.conflictOrMissing(ctx, jobID, ErrInvalidTransition)
	}
	return nil
}

func (s *PGStore) conflictOrMissing(ctx context.Context, jobID string, conflict error) error {
	var exists bool
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1::uuid)`, jobID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return conflict
}

var _ Store = (*PGStore)(nil)
