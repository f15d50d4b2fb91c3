package jobs

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrClaimConflict       = errors.New("job already claimed")
	ErrNoPendingJobs       = errors.New("no pending jobs")
	ErrInvalidTransition   = errors.New("job is not in the expected state")
	ErrCursorMismatch      = errors.New("checkpoint cursor mismatch")
	ErrCheckpointImmutable = errors.New("checkpoint is completed")
	ErrIncomplete          = errors.New("checkpoint has missing sections")
	ErrNotResumable        = errors.New("checkpoint is not resumable")
)
