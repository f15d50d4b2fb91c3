package engine

import (
	"errors"

	"docgen-backend/internal/catalog"
	"docgen-backend/internal/jobs"
)

var (
	ErrNotFound       = jobs.ErrNotFound
	ErrClaimConflict  = jobs.ErrClaimConflict
	ErrNotResumable   = jobs.ErrNotResumable
	ErrNoPendingJobs  = jobs.ErrNoPendingJobs
	ErrUnknownJobType = catalog.ErrUnknownJobType
	ErrInvalidInput   = catalog.ErrInvalidContext

	ErrSubjectNotFound = errors.New("subject not found")
	// ErrCancelled is returned when the run context ends between two sections.
	ErrCancelled = errors.New("job cancelled at section boundary")
	// ErrLeaseLost means another owner (a resumer or the stale-job sweeper) took the job over.
	ErrLeaseLost = errors.New("job ownership lost")
	// ErrStaleLease is recorded on jobs whose worker stopped heartbeating.
	ErrStaleLease = errors.New("worker lease expired")
	// ErrPollTimeout is a caller-side timeout: the job is still running.
	ErrPollTimeout = errors.New("job still processing")

	errStorage  = errors.New("storage failure")
	errInternal = errors.New("internal error")
)
