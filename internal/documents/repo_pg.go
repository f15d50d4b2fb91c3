package documents

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const versionColumns = `id, job_id, subject_id, job_type, version, storage_key, content_type, size_bytes, checksum, created_at`

const maxVersionAttempts = 3

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (DocumentVersion, error) {
	var d DocumentVersion
	var jobID sql.NullString
	if err := row.Scan(
		&d.ID,
		&jobID,
		&d.SubjectID,
		&d.JobType,
		&d.Version,
		&d.StorageKey,
		&d.ContentType,
		&d.SizeBytes,
		&d.Checksum,
		&d.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DocumentVersion{}, ErrNotFound
		}
		return DocumentVersion{}, err
	}
	if jobID.Valid {
		d.JobID = jobID.String
	}
	return d, nil
}

// Create inserts doc with the next version number. Two writers racing on the same
// subject collide on the (subject_id, job_type, version) unique index; the loser retries.
func (r *PGRepo) Create(ctx context.Context, doc DocumentVersion) (DocumentVersion, error) {
	const query = `
INSERT INTO document_versions (
    id, job_id, subject_id, job_type, version, storage_key, content_type, size_bytes, checksum, created_at
)
SELECT $1, NULLIF($2, '')::uuid, $3, $4, COALESCE(MAX(version), 0) + 1, $5, $6, $7, $8, $9
FROM document_versions
WHERE subject_id = $3 AND job_type = $4
RETURNING version`

	var lastErr error
	for attempt := 0; attempt < maxVersionAttempts; attempt++ {
		err := r.DB.QueryRowContext(ctx, query,
			doc.ID,
			doc.JobID,
			doc.SubjectID,
			doc.JobType,
			doc.StorageKey,
			doc.ContentType,
			doc.SizeBytes,
			doc.Checksum,
			doc.CreatedAt,
		).Scan(&doc.Version)
		if err == nil {
			return doc, nil
		}
		if !isUniqueViolation(err) {
			return DocumentVersion{}, err
		}
		lastErr = err
	}
	return DocumentVersion{}, lastErr
}

// Get returns a version by ID.
func (r *PGRepo) Get(ctx context.Context, id string) (DocumentVersion, error) {
	const query = `SELECT ` + versionColumns + ` FROM document_versions WHERE id = $1::uuid`
	return scanVersion(r.DB.QueryRowContext(ctx, query, id))
}

// GetByJob returns the version produced by a job.
func (r *PGRepo) GetByJob(ctx context.Context, jobID string) (DocumentVersion, error) {
	const query = `SELECT ` + versionColumns + ` FROM document_versions WHERE job_id = $1::uuid`
	return scanVersion(r.DB.QueryRowContext(ctx, query, jobID))
}

// ListBySubject lists versions newest first.
func (r *PGRepo) ListBySubject(ctx context.Context, subjectID, jobType string, limit, offset int) ([]DocumentVersion, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT ` + versionColumns + `
FROM document_versions
WHERE subject_id = $1 AND ($2 = '' OR job_type = $2)
ORDER BY created_at DESC, version DESC
LIMIT $3 OFFSET $4`
	rows, err := r.DB.QueryContext(ctx, query, subjectID, jobType, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []DocumentVersion{}
	for rows.Next() {
		d, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Repo = (*PGRepo)(nil)
