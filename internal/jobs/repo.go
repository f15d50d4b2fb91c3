package jobs

import (
	"context"
	"time"
)

// JobRepo persists the outer job lifecycle. Every status change is a compare-and-swap on status.
type JobRepo interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, jobID string) (Job, error)
	Claim(ctx context.Context, jobID string) (Job, error)
	ClaimForResume(ctx context.Context, jobID string) (Job, error)
	ClaimNextPending(ctx context.Context) (Job, error)
	Complete(ctx context.Context, jobID string, result Result) error
	Fail(ctx context.Context, jobID, code, message string) (Job, error)
	UpdateProgress(ctx context.Context, jobID string, percent int) error
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]Job, error)
	ListPending(ctx context.Context, olderThan time.Time, limit int) ([]Job, error)
	TouchPending(ctx context.Context, jobID string) error
}

// CheckpointRepo persists section level progress. Content is append-only.
type CheckpointRepo interface {
	CreateWithCheckpoint(ctx context.Context, job Job, cp Checkpoint) error
	LoadCheckpoint(ctx context.Context, jobID string) (Checkpoint, error)
	AppendSection(ctx context.Context, jobID string, cursor int, section Section) (Checkpoint, error)
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID, message string, canResume bool) error
	Reopen(ctx context.Context, jobID string) error
	ListResumable(ctx context.Context, subjectID string) ([]Checkpoint, error)
	DeleteCompleted(ctx context.Context, olderThan time.Time) (int, error)
	DeleteAbandoned(ctx context.Context, olderThan time.Time) (int, error)
}

// Store is a backend that holds both records.
type Store interface {
	JobRepo
	CheckpointRepo
	// Finish completes the checkpoint and the job together: either both are
	// COMPLETED afterwards or neither changed.
	Finish(ctx context.Context, jobID string, result Result) error
}
