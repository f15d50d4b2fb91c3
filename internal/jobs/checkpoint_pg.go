package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const checkpointColumns = `job_id, job_type, subject_id, total_sections, completed_sections, current_section,
       generated_content, prompt_context, status, can_resume, error_message, created_at, updated_at`

func scanCheckpoint(row rowScanner) (Checkpoint, error) {
	var cp Checkpoint
	var content []byte
	var promptContext []byte
	var errMsg sql.NullString
	if err := row.Scan(
		&cp.JobID,
		&cp.JobType,
		&cp.SubjectID,
		&cp.TotalSections,
		&cp.CompletedSections,
		&cp.CurrentSection,
		&content,
		&promptContext,
		&cp.Status,
		&cp.CanResume,
		&errMsg,
		&cp.CreatedAt,
		&cp.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Checkpoint{}, ErrNotFound
		}
		return Checkpoint{}, err
	}
	cp.GeneratedContent = []Section{}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &cp.GeneratedContent); err != nil {
			return Checkpoint{}, fmt.Errorf("checkpoint %s: decode generated_content: %w", cp.JobID, err)
		}
	}
	cp.PromptContext = append(json.RawMessage(nil), promptContext...)
	if errMsg.Valid {
		cp.ErrorMessage = &errMsg.String
	}
	return cp, nil
}

func loadCheckpoint(ctx context.Context, q queryer, jobID string) (Checkpoint, error) {
	const query = `SELECT ` + checkpointColumns + ` FROM checkpoints WHERE job_id = $1::uuid`
	return scanCheckpoint(q.QueryRowContext(ctx, query, jobID))
}

// CreateWithCheckpoint inserts the job and its cursor-zero checkpoint in one transaction.
func (s *PGStore) CreateWithCheckpoint(ctx context.Context, job Job, cp Checkpoint) error {
	cp.JobID = job.ID
	if err := cp.Validate(); err != nil {
		return err
	}
	content, err := marshalContent(cp.GeneratedContent)
	if err != nil {
		return err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if err := insertJob(ctx, tx, job); err != nil {
		return err
	}

	const query = `
INSERT INTO checkpoints (
	job_id, job_type, subject_id, total_sections, completed_sections, current_section,
	generated_content, prompt_context, status, can_resume, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9, false, $10, $10)`
	if _, err := tx.ExecContext(ctx, query,
		job.ID,
		cp.JobType,
		cp.SubjectID,
		cp.TotalSections,
		cp.CompletedSections,
		cp.CurrentSection,
		content,
		[]byte(cp.PromptContext),
		CheckpointInProgress,
		job.CreatedAt,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadCheckpoint returns the checkpoint for a job.
func (s *PGStore) LoadCheckpoint(ctx context.Context, jobID string) (Checkpoint, error) {
	return loadCheckpoint(ctx, s.DB, jobID)
}

// AppendSection appends one section in a single guarded UPDATE so cursor and content never disagree.
func (s *PGStore) AppendSection(ctx context.Context, jobID string, cursor int, section Section) (Checkpoint, error) {
	const query = `
UPDATE checkpoints
SET generated_content = generated_content || $3::jsonb,
    completed_sections = completed_sections + 1,
    current_section = current_section + 1,
    updated_at = now()
WHERE job_id = $1::uuid
  AND current_section = $2
  AND current_section < total_sections
  AND status = 'IN_PROGRESS'
RETURNING ` + checkpointColumns
	payload, err := json.Marshal([]Section{section})
	if err != nil {
		return Checkpoint{}, err
	}
	cp, err := scanCheckpoint(s.DB.QueryRowContext(ctx, query, jobID, cursor, payload))
	if errors.Is(err, ErrNotFound) {
		return Checkpoint{}, s.checkpointConflict(ctx, jobID, ErrCursorMismatch)
	}
	return cp, err
}

const markCompletedQuery = `
UPDATE checkpoints
SET status = 'COMPLETED',
    can_resume = false,
    error_message = NULL,
    updated_at = now()
WHERE job_id = $1::uuid
  AND status = 'IN_PROGRESS'
  AND completed_sections = total_sections`

// MarkCompleted finalizes a checkpoint whose sections are all present.
func (s *PGStore) MarkCompleted(ctx context.Context, jobID string) error {
	res, err := s.DB.ExecContext(ctx, markCompletedQuery, jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.checkpointConflict(ctx, jobID, ErrIncomplete)
	}
	return nil
}

// Finish marks the checkpoint and the job COMPLETED in one transaction.
func (s *PGStore) Finish(ctx context.Context, jobID string, result Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, markCompletedQuery, jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return s.checkpointConflict(ctx, jobID, ErrIncomplete)
	}
	res, err = tx.ExecContext(ctx, completeJobQuery, jobID, payload)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return s.conflictOrMissing(ctx, jobID, ErrInvalidTransition)
	}
	return tx.Commit()
}

// MarkFailed records a failure. Completed checkpoints are immutable.
func (s *PGStore) MarkFailed(ctx context.Context, jobID, message string, canResume bool) error {
	const query = `
UPDATE checkpoints
SET status = 'FAILED',
    can_resume = $3,
    error_message = $2,
    updated_at = now()
WHERE job_id = $1::uuid AND status <> 'COMPLETED'`
	res, err := s.DB.ExecContext(ctx, query, jobID, message, canResume)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.checkpointConflict(ctx, jobID, ErrCheckpointImmutable)
	}
	return nil
}

// Reopen moves a resumable FAILED checkpoint back to IN_PROGRESS.
func (s *PGStore) Reopen(ctx context.Context, jobID string) error {
	const query = `
UPDATE checkpoints
SET status = 'IN_PROGRESS',
    can_resume = false,
    error_message = NULL,
    updated_at = now()
WHERE job_id = $1::uuid AND status = 'FAILED' AND can_resume`
	res, err := s.DB.ExecContext(ctx, query, jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.checkpointConflict(ctx, jobID, ErrNotResumable)
	}
	return nil
}

// ListResumable returns FAILED checkpoints with can_resume set, newest first.
func (s *PGStore) ListResumable(ctx context.Context, subjectID string) ([]Checkpoint, error) {
	const query = `
SELECT ` + checkpointColumns + `
FROM checkpoints
WHERE status = 'FAILED' AND can_resume AND ($1 = '' OR subject_id = $1)
ORDER BY updated_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Checkpoint{}
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// DeleteCompleted removes COMPLETED checkpoints last touched before olderThan.
func (s *PGStore) DeleteCompleted(ctx context.Context, olderThan time.Time) (int, error) {
	return s.deleteCheckpoints(ctx, CheckpointCompleted, olderThan)
}

// DeleteAbandoned removes FAILED checkpoints nobody resumed before olderThan.
func (s *PGStore) DeleteAbandoned(ctx context.Context, olderThan time.Time) (int, error) {
	return s.deleteCheckpoints(ctx, CheckpointFailed, olderThan)
}

func (s *PGStore) deleteCheckpoints(ctx context.Context, status string, olderThan time.Time) (int, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM checkpoints WHERE status = $1 AND updated_at < $2`, status, olderThan)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// checkpointConflict explains why a guarded checkpoint UPDATE matched no row.
func (s *PGStore) checkpointConflict(ctx context.Context, jobID string, fallback error) error {
	var status string
	err := s.DB.QueryRowContext(ctx, `SELECT status FROM checkpoints WHERE job_id = $1::uuid`, jobID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	switch {
	case status == CheckpointCompleted:
		return ErrCheckpointImmutable
	case fallback == ErrNotResumable:
		return ErrNotResumable
	case status != CheckpointInProgress:
		return ErrInvalidTransition
	default:
		return fallback
	}
}

func marshalContent(sections []Section) ([]byte, error) {
	if sections == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(sections)
}
