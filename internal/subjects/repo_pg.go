package subjects

import (
	"context"
	"database/sql"
	"errors"
)

type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Upsert(ctx context.Context, subject Subject) (Subject, error) {
	const query = `
INSERT INTO subjects (id, name, industry, created_at, updated_at)
VALUES ($1, $2, $3, now(), now())
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  industry = EXCLUDED.industry,
  deleted_at = NULL,
  updated_at = now()
RETURNING created_at, updated_at`
	err := r.DB.QueryRowContext(ctx, query,
		subject.ID,
		subject.Name,
		nullableString(subject.Industry),
	).Scan(&subject.CreatedAt, &subject.UpdatedAt)
	if err != nil {
		return Subject{}, err
	}
	return subject, nil
}

func (r *PGRepo) GetByID(ctx context.Context, subjectID string) (Subject, error) {
	const query = `
SELECT id, name, industry, created_at, updated_at
FROM subjects
WHERE id = $1 AND deleted_at IS NULL
LIMIT 1`
	var subject Subject
	var industry sql.NullString
	err := r.DB.QueryRowContext(ctx, query, subjectID).Scan(
		&subject.ID,
		&subject.Name,
		&industry,
		&subject.CreatedAt,
		&subject.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Subject{}, ErrNotFound
		}
		return Subject{}, err
	}
	if industry.Valid {
		subject.Industry = industry.String
	}
	return subject, nil
}

func (r *PGRepo) Delete(ctx context.Context, subjectID string) error {
	res, err := r.DB.ExecContext(ctx, `
UPDATE subjects SET deleted_at = now(), updated_at = now()
WHERE id = $1 AND deleted_at IS NULL`, subjectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

var _ Repo = (*PGRepo)(nil)
