package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docgen-backend/internal/activity"
	"docgen-backend/internal/catalog"
	"docgen-backend/internal/documents"
	"docgen-backend/internal/generation"
	"docgen-backend/internal/jobs"
	"docgen-backend/internal/queue"
	"docgen-backend/internal/shared/telemetry"
)

const (
	defaultMaxAttempts   = 5
	defaultCacheTTL      = 24 * time.Hour
	terminalWriteTimeout = 10 * time.Second
	staleSweepBatch      = 100
)

// DocumentSaver persists an assembled document as a new version.
type DocumentSaver interface {
	SaveVersion(ctx context.Context, jobID, subjectID, jobType, body string) (documents.DocumentVersion, error)
}

// SubjectChecker reports whether a subject still exists.
type SubjectChecker interface {
	Exists(ctx context.Context, subjectID string) (bool, error)
}

// Service is the job engine: it enqueues jobs, runs the orchestrator for
// workers and resumers, and answers status queries.
type Service struct {
	Store     jobs.Store
	Generator generation.Generator
	Documents DocumentSaver
	Activity  activity.Recorder
	Subjects  SubjectChecker
	Queue     queue.Client

	// MaxAttempts bounds how many failed runs a job may accumulate before its
	// checkpoint stops being resumable. Zero means the default of 5.
	MaxAttempts int
	CacheTTL    time.Duration
	Lookup      func(catalog.JobType) (catalog.Entry, error)
	Now         func() time.Time

	background sync.WaitGroup
}

// Status is the read model returned to pollers.
type Status struct {
	JobID             string       `json:"jobId"`
	Type              string       `json:"type"`
	SubjectID         string       `json:"subjectId"`
	Status            string       `json:"status"`
	Progress          int          `json:"progress"`
	Error             *string      `json:"error,omitempty"`
	ErrorCode         string       `json:"errorCode,omitempty"`
	Result            *jobs.Result `json:"result,omitempty"`
	RetryCount        int          `json:"retryCount"`
	CompletedSections int          `json:"completedSections"`
	TotalSections     int          `json:"totalSections"`
	CanResume         bool         `json:"canResume"`
	CreatedAt         time.Time    `json:"createdAt"`
	StartedAt         *time.Time   `json:"startedAt,omitempty"`
	CompletedAt       *time.Time   `json:"completedAt,omitempty"`
}

// Terminal reports whether polling can stop.
func (s Status) Terminal() bool {
	return s.Status == jobs.StatusCompleted || s.Status == jobs.StatusFailed
}

// Outcome is the terminal (or lease-lost) result of one orchestrator run.
type Outcome struct {
	JobID     string       `json:"jobId"`
	Status    string       `json:"status"`
	Error     *string      `json:"error,omitempty"`
	ErrorCode string       `json:"errorCode,omitempty"`
	CanResume bool         `json:"canResume"`
	Result    *jobs.Result `json:"result,omitempty"`
}

// ResumableJob summarizes a failed checkpoint for recovery tooling.
type ResumableJob struct {
	JobID             string    `json:"jobId"`
	JobType           string    `json:"jobType"`
	SubjectID         string    `json:"subjectId"`
	CompletedSections int       `json:"completedSections"`
	TotalSections     int       `json:"totalSections"`
	ErrorMessage      string    `json:"errorMessage,omitempty"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// GCReport counts checkpoints removed by CollectGarbage.
type GCReport struct {
	Completed int `json:"completed"`
	Abandoned int `json:"abandoned"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) lookup(t catalog.JobType) (catalog.Entry, error) {
	if s.Lookup != nil {
		return s.Lookup(t)
	}
	return catalog.Lookup(t)
}

func (s *Service) maxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return defaultMaxAttempts
}

func (s *Service) cacheTTL() time.Duration {
	if s.CacheTTL > 0 {
		return s.CacheTTL
	}
	return defaultCacheTTL
}

// Enqueue validates the request and creates the job with its cursor-zero
// checkpoint in one step. Publishing to the queue is best effort: pollers
// claim PENDING jobs directly, and in queue mode RepublishPending re-sends
// the ones left waiting.
func (s *Service) Enqueue(ctx context.Context, jobType, subjectID string, input json.RawMessage) (jobs.Job, error) {
	t, err := catalog.ParseJobType(jobType)
	if err != nil {
		return jobs.Job{}, err
	}
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return jobs.Job{}, fmt.Errorf("%w: subjectId is required", ErrInvalidInput)
	}
	entry, err := s.lookup(t)
	if err != nil {
		return jobs.Job{}, err
	}
	in, err := catalog.ParseInput(t, input)
	if err != nil {
		return jobs.Job{}, err
	}
	promptContext, err := catalog.EncodeContext(t, in)
	if err != nil {
		return jobs.Job{}, err
	}
	if err := s.checkSubject(ctx, subjectID); err != nil {
		return jobs.Job{}, err
	}

	now := s.now()
	job := jobs.Job{
		ID:        uuid.NewString(),
		Type:      string(t),
		SubjectID: subjectID,
		Status:    jobs.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	cp := jobs.NewCheckpoint(job.ID, job.Type, subjectID, entry.Total(), promptContext, now)
	if err := s.Store.CreateWithCheckpoint(ctx, job, cp); err != nil {
		return jobs.Job{}, fmt.Errorf("create job: %w", err)
	}

	requestID := RequestIDFromContext(ctx)
	telemetry.Info("job.status", map[string]any{
		"request_id":     requestID,
		"job_id":         job.ID,
		"job_type":       job.Type,
		"subject_id":     subjectID,
		"status":         jobs.StatusPending,
		"total_sections": entry.Total(),
	})

	if s.Queue != nil {
		msg := queue.Message{
			JobID:      job.ID,
			RequestID:  requestID,
			EnqueuedAt: now.Format(time.RFC3339),
			Version:    queue.MessageVersion,
		}
		if err := s.Queue.Send(ctx, msg); err != nil {
			telemetry.Warn("job.enqueue.publish_failed", map[string]any{
				"request_id": requestID,
				"job_id":     job.ID,
				"error":      err.Error(),
			})
		}
	}
	return job, nil
}

func (s *Service) checkSubject(ctx context.Context, subjectID string) error {
	if s.Subjects == nil {
		return nil
	}
	ok, err := s.Subjects.Exists(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("%w: subject lookup: %v", errStorage, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrSubjectNotFound, subjectID)
	}
	return nil
}

// checkJobID rejects ids Enqueue could not have issued. Job ids are
// canonical UUIDs, and the PG store casts them to uuid.
func checkJobID(jobID string) error {
	if len(jobID) != 36 {
		return fmt.Errorf("%w: malformed job id", ErrNotFound)
	}
	if _, err := uuid.Parse(jobID); err != nil {
		return fmt.Errorf("%w: malformed job id", ErrNotFound)
	}
	return nil
}

// GetStatus joins the job with its checkpoint counters. A garbage-collected
// checkpoint only zeroes the section counters.
func (s *Service) GetStatus(ctx context.Context, jobID string) (Status, error) {
	if err := checkJobID(jobID); err != nil {
		return Status{}, err
	}
	job, err := s.Store.Get(ctx, jobID)
	if err != nil {
		return Status{}, err
	}
	st := Status{
		JobID:       job.ID,
		Type:        job.Type,
		SubjectID:   job.SubjectID,
		Status:      job.Status,
		Progress:    job.Progress,
		Error:       job.Error,
		ErrorCode:   job.ErrorCode,
		Result:      job.Result,
		RetryCount:  job.RetryCount,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
	cp, err := s.Store.LoadCheckpoint(ctx, jobID)
	switch {
	case err == nil:
		st.CompletedSections = cp.CompletedSections
		st.TotalSections = cp.TotalSections
		st.CanResume = cp.CanResume
	case !errors.Is(err, jobs.ErrNotFound):
		return Status{}, err
	}
	return st, nil
}

// ListResumable returns failed checkpoints that may be resumed, newest first.
// An empty subjectID lists every subject.
func (s *Service) ListResumable(ctx context.Context, subjectID string) ([]ResumableJob, error) {
	cps, err := s.Store.ListResumable(ctx, strings.TrimSpace(subjectID))
	if err != nil {
		return nil, err
	}
	out := make([]ResumableJob, 0, len(cps))
	for _, cp := range cps {
		r := ResumableJob{
			JobID:             cp.JobID,
			JobType:           cp.JobType,
			SubjectID:         cp.SubjectID,
			CompletedSections: cp.CompletedSections,
			TotalSections:     cp.TotalSections,
			UpdatedAt:         cp.UpdatedAt,
		}
		if cp.ErrorMessage != nil {
			r.ErrorMessage = *cp.ErrorMessage
		}
		out = append(out, r)
	}
	return out, nil
}

// ProcessJob is the queue worker entry point. A lost claim returns
// ErrClaimConflict and no orchestrator is started.
func (s *Service) ProcessJob(ctx context.Context, jobID string) (Outcome, error) {
	if err := checkJobID(jobID); err != nil {
		return Outcome{}, err
	}
	job, err := s.Store.Claim(ctx, jobID)
	if err != nil {
		return Outcome{}, err
	}
	return s.run(ctx, job, "worker"), nil
}

// RunNext claims the oldest PENDING job and runs it. It returns
// ErrNoPendingJobs when the queue is empty.
func (s *Service) RunNext(ctx context.Context) (Outcome, error) {
	job, err := s.Store.ClaimNextPending(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return s.run(ctx, job, "poll"), nil
}

// CollectGarbage deletes completed checkpoints and abandoned failed ones.
func (s *Service) CollectGarbage(ctx context.Context, completedTTL, abandonedTTL time.Duration) (GCReport, error) {
	now := s.now()
	var report GCReport
	var err error
	if completedTTL > 0 {
		if report.Completed, err = s.Store.DeleteCompleted(ctx, now.Add(-completedTTL)); err != nil {
			return report, err
		}
	}
	if abandonedTTL > 0 {
		if report.Abandoned, err = s.Store.DeleteAbandoned(ctx, now.Add(-abandonedTTL)); err != nil {
			return report, err
		}
	}
	if report.Completed > 0 || report.Abandoned > 0 {
		telemetry.Info("checkpoint.gc", map[string]any{
			"completed": report.Completed,
			"abandoned": report.Abandoned,
		})
	}
	return report, nil
}

// RecoverStale fails PROCESSING jobs whose lease is older than staleAfter so
// they can be resumed. It returns how many jobs were recovered.
func (s *Service) RecoverStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	stale, err := s.Store.ListStale(ctx, s.now().Add(-staleAfter), staleSweepBatch)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, job := range stale {
		if err := ctx.Err(); err != nil {
			return recovered, err
		}
		if s.recoverStale(ctx, job) {
			recovered++
		}
	}
	return recovered, nil
}

// RepublishPending re-sends queue messages for jobs that have sat PENDING for
// longer than pendingAfter, covering a publish that failed in Enqueue or a
// message the queue lost. Each re-sent job is touched so the next sweep skips
// it until pendingAfter passes again. Duplicate deliveries lose the claim and
// are skipped by the worker.
func (s *Service) RepublishPending(ctx context.Context, pendingAfter time.Duration) (int, error) {
	if s.Queue == nil || pendingAfter <= 0 {
		return 0, nil
	}
	pending, err := s.Store.ListPending(ctx, s.now().Add(-pendingAfter), staleSweepBatch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, job := range pending {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		msg := queue.Message{
			JobID:      job.ID,
			EnqueuedAt: s.now().Format(time.RFC3339),
			Version:    queue.MessageVersion,
		}
		if err := s.Queue.Send(ctx, msg); err != nil {
			telemetry.Warn("job.republish_failed", map[string]any{"job_id": job.ID, "error": err.Error()})
			continue
		}
		sent++
		if err := s.Store.TouchPending(ctx, job.ID); err != nil && !errors.Is(err, jobs.ErrInvalidTransition) {
			telemetry.Warn("job.republish_touch_failed", map[string]any{"job_id": job.ID, "error": err.Error()})
		}
	}
	if sent > 0 {
		telemetry.Info("job.republished", map[string]any{"jobs": sent})
	}
	return sent, nil
}

// PollOptions bounds WaitForStatus.
type PollOptions struct {
	Interval time.Duration
	Window   time.Duration
	MaxPolls int
}

// WaitForStatus polls GetStatus until the job is terminal. When the window or
// poll budget runs out first it returns the latest status with ErrPollTimeout;
// the job itself keeps running.
func (s *Service) WaitForStatus(ctx context.Context, jobID string, opts PollOptions) (Status, error) {
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	var deadline <-chan time.Time
	if opts.Window > 0 {
		timer := time.NewTimer(opts.Window)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	polls := 0
	for {
		st, err := s.GetStatus(ctx, jobID)
		if err != nil {
			return Status{}, err
		}
		polls++
		if st.Terminal() {
			return st, nil
		}
		if opts.MaxPolls > 0 && polls >= opts.MaxPolls {
			return st, ErrPollTimeout
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-deadline:
			return st, ErrPollTimeout
		case <-ticker.C:
		}
	}
}
