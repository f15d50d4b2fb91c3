package activity

import (
	"context"
	"database/sql"
)

// PGLog implements Log using the activity_log table.
type PGLog struct {
	DB *sql.DB
}

func (l *PGLog) Record(ctx context.Context, subjectID, description string) error {
	const query = `
INSERT INTO activity_log (subject_id, description, created_at)
VALUES ($1, $2, now())`
	_, err := l.DB.ExecContext(ctx, query, subjectID, description)
	return err
}

func (l *PGLog) List(ctx context.Context, subjectID string, limit int) ([]Entry, error) {
	const query = `
SELECT id, subject_id, description, created_at
FROM activity_log
WHERE subject_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`
	rows, err := l.DB.QueryContext(ctx, query, subjectID, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SubjectID, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ Log = (*PGLog)(nil)
