package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"docgen-backend/internal/catalog"
	"docgen-backend/internal/generation"
	"docgen-backend/internal/jobs"
	"docgen-backend/internal/shared/metrics"
	"docgen-backend/internal/shared/telemetry"
	"docgen-backend/internal/shared/util"
)

// run executes a claimed job and records run metrics. The job must already be
// PROCESSING and owned by the caller.
func (s *Service) run(ctx context.Context, job jobs.Job, trigger string) Outcome {
	start := time.Now()
	metrics.IncJobStarted(job.Type, trigger)
	metrics.WorkerBusyInc()
	defer metrics.WorkerBusyDec()

	telemetry.Info("job.status", map[string]any{
		"request_id":  RequestIDFromContext(ctx),
		"job_id":      job.ID,
		"job_type":    job.Type,
		"status":      jobs.StatusProcessing,
		"trigger":     trigger,
		"retry_count": job.RetryCount,
	})

	out := s.execute(ctx, job)

	metrics.IncJobFinished(job.Type, out.Status)
	metrics.ObserveJobDuration(job.Type, time.Since(start))
	return out
}

func (s *Service) execute(ctx context.Context, job jobs.Job) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("job.panic", map[string]any{
				"job_id": job.ID,
				"panic":  fmt.Sprint(r),
				"stack":  string(debug.Stack()),
			})
			out = s.fail(ctx, job, fmt.Errorf("%w: panic: %v", errInternal, r))
		}
	}()

	result, err := s.generate(ctx, job)
	if err != nil {
		return s.fail(ctx, job, err)
	}
	return Outcome{
		JobID:     job.ID,
		Status:    jobs.StatusCompleted,
		CanResume: false,
		Result:    &result,
	}
}

// generate runs the section loop from the saved cursor, then assembles and
// finalizes the document.
func (s *Service) generate(ctx context.Context, job jobs.Job) (jobs.Result, error) {
	jobType := catalog.JobType(job.Type)
	entry, err := s.lookup(jobType)
	if err != nil {
		return jobs.Result{}, err
	}
	cp, err := s.Store.LoadCheckpoint(ctx, job.ID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return jobs.Result{}, fmt.Errorf("%w: checkpoint missing for job %s", errInternal, job.ID)
		}
		return jobs.Result{}, fmt.Errorf("%w: load checkpoint: %v", errStorage, err)
	}
	if cp.TotalSections != entry.Total() {
		return jobs.Result{}, fmt.Errorf("%w: %s has %d sections, checkpoint expects %d",
			catalog.ErrTemplate, jobType, entry.Total(), cp.TotalSections)
	}
	canonical, input, err := catalog.Canonical(jobType, cp.PromptContext)
	if err != nil {
		return jobs.Result{}, err
	}
	if err := s.checkSubject(ctx, job.SubjectID); err != nil {
		return jobs.Result{}, err
	}
	if s.Generator == nil {
		return jobs.Result{}, generation.ErrNotConfigured
	}

	// Writes for a section that was already paid for must land even if the
	// run is being cancelled.
	persistCtx := context.WithoutCancel(ctx)
	version := strconv.Itoa(entry.Version)

	for i := cp.CurrentSection; i < cp.TotalSections; i++ {
		if err := ctx.Err(); err != nil {
			return jobs.Result{}, fmt.Errorf("%w: before section %d: %v", ErrCancelled, i, err)
		}
		section := entry.Sections[i]
		instruction, err := entry.Render(i, input)
		if err != nil {
			return jobs.Result{}, err
		}
		content, err := s.Generator.Generate(ctx, instruction, generation.Options{
			CacheKey:  util.HashKey(job.Type, version, section.Name, string(canonical)),
			CacheTTL:  s.cacheTTL(),
			Operation: "section:" + section.Name,
		})
		if err != nil {
			return jobs.Result{}, fmt.Errorf("section %s: %w", section.Name, err)
		}

		cp, err = s.Store.AppendSection(persistCtx, job.ID, i, jobs.Section{
			Name:    section.Name,
			Title:   section.Title,
			Content: content,
		})
		if err != nil {
			return jobs.Result{}, persistError("append section", err)
		}
		metrics.IncSectionGenerated(job.Type)
		telemetry.Info("job.section.generated", map[string]any{
			"job_id":    job.ID,
			"section":   section.Name,
			"completed": cp.CompletedSections,
			"total":     cp.TotalSections,
		})
		if err := s.Store.UpdateProgress(persistCtx, job.ID, cp.CompletedSections*99/cp.TotalSections); err != nil {
			return jobs.Result{}, persistError("update progress", err)
		}
	}

	return s.finalize(persistCtx, job, entry, cp)
}

func (s *Service) finalize(ctx context.Context, job jobs.Job, entry catalog.Entry, cp jobs.Checkpoint) (jobs.Result, error) {
	body := Assemble(entry.Title, cp.GeneratedContent)

	if s.Documents == nil {
		return jobs.Result{}, fmt.Errorf("%w: document store not configured", errInternal)
	}
	doc, err := s.Documents.SaveVersion(ctx, job.ID, job.SubjectID, job.Type, body)
	if err != nil {
		return jobs.Result{}, fmt.Errorf("%w: save document: %v", errStorage, err)
	}
	result := jobs.Result{
		DocumentVersionID: doc.ID,
		Version:           doc.Version,
		Sections:          len(cp.GeneratedContent),
	}
	// A failed Finish leaves both records untouched, so the failure path can
	// still mark them FAILED and a resume reuses the saved document version.
	if err := s.Store.Finish(ctx, job.ID, result); err != nil {
		return jobs.Result{}, persistError("finish job", err)
	}

	telemetry.Info("job.status", map[string]any{
		"job_id":              job.ID,
		"job_type":            job.Type,
		"status":              jobs.StatusCompleted,
		"document_version_id": doc.ID,
		"version":             doc.Version,
	})
	s.recordActivity(ctx, job.SubjectID, fmt.Sprintf("Generated %s version %d", entry.Title, doc.Version))
	return result, nil
}

// fail writes the terminal FAILED state. The job CAS goes first so a worker
// that lost its lease never touches a checkpoint someone else now owns.
func (s *Service) fail(ctx context.Context, job jobs.Job, cause error) Outcome {
	if errors.Is(cause, ErrLeaseLost) {
		return s.leaseLost(ctx, job, cause)
	}

	code, canResume := Classify(cause)
	msg := sanitizeError(cause)
	if canResume && job.RetryCount+1 >= s.maxAttempts() {
		code, canResume = CodeRetryExhausted, false
		msg = sanitizeError(fmt.Errorf("gave up after %d attempts: %s", job.RetryCount+1, msg))
	}

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	failed, err := s.Store.Fail(bg, job.ID, code, msg)
	if err != nil {
		if errors.Is(err, jobs.ErrInvalidTransition) {
			return s.leaseLost(bg, job, cause)
		}
		telemetry.Error("job.fail.write_failed", map[string]any{
			"job_id": job.ID,
			"error":  err.Error(),
		})
	} else {
		job = failed
	}
	if err := s.Store.MarkFailed(bg, job.ID, msg, canResume); err != nil {
		telemetry.Error("checkpoint.fail.write_failed", map[string]any{
			"job_id": job.ID,
			"error":  err.Error(),
		})
	}

	telemetry.Warn("job.status", map[string]any{
		"request_id":  RequestIDFromContext(ctx),
		"job_id":      job.ID,
		"job_type":    job.Type,
		"status":      jobs.StatusFailed,
		"error_code":  code,
		"can_resume":  canResume,
		"retry_count": job.RetryCount,
		"error":       msg,
	})
	s.recordActivity(bg, job.SubjectID, fmt.Sprintf("Document generation failed (%s)", code))

	return Outcome{
		JobID:     job.ID,
		Status:    jobs.StatusFailed,
		Error:     &msg,
		ErrorCode: code,
		CanResume: canResume,
	}
}

// leaseLost reports the job as it is now; the new owner writes its terminal state.
func (s *Service) leaseLost(ctx context.Context, job jobs.Job, cause error) Outcome {
	msg := sanitizeError(cause)
	telemetry.Warn("job.lease_lost", map[string]any{
		"job_id": job.ID,
		"error":  msg,
	})
	out := Outcome{JobID: job.ID, Status: jobs.StatusFailed, Error: &msg, ErrorCode: CodeStaleWorker}
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()
	if current, err := s.Store.Get(bg, job.ID); err == nil {
		out.Status = current.Status
		out.Result = current.Result
	}
	if cp, err := s.Store.LoadCheckpoint(bg, job.ID); err == nil {
		out.CanResume = cp.CanResume
	}
	return out
}

func (s *Service) recoverStale(ctx context.Context, job jobs.Job) bool {
	code, canResume := CodeStaleWorker, true
	msg := sanitizeError(ErrStaleLease)
	if job.RetryCount+1 >= s.maxAttempts() {
		code, canResume = CodeRetryExhausted, false
		msg = sanitizeError(fmt.Errorf("gave up after %d attempts: %s", job.RetryCount+1, msg))
	}
	if _, err := s.Store.Fail(ctx, job.ID, code, msg); err != nil {
		if !errors.Is(err, jobs.ErrInvalidTransition) {
			telemetry.Error("job.recover.fail_failed", map[string]any{"job_id": job.ID, "error": err.Error()})
		}
		return false
	}
	if err := s.Store.MarkFailed(ctx, job.ID, msg, canResume); err != nil {
		telemetry.Warn("job.recover.checkpoint_failed", map[string]any{"job_id": job.ID, "error": err.Error()})
	}
	telemetry.Warn("job.status", map[string]any{
		"job_id":     job.ID,
		"job_type":   job.Type,
		"status":     jobs.StatusFailed,
		"error_code": code,
		"can_resume": canResume,
		"trigger":    "stale_sweep",
	})
	return true
}

func (s *Service) recordActivity(ctx context.Context, subjectID, description string) {
	if s.Activity == nil {
		return
	}
	if err := s.Activity.Record(ctx, subjectID, description); err != nil {
		telemetry.Warn("activity.record_failed", map[string]any{
			"subject_id": subjectID,
			"error":      err.Error(),
		})
	}
}

// persistError maps store errors seen mid-run. A rejected CAS means another
// owner holds the job now.
func persistError(op string, err error) error {
	switch {
	case errors.Is(err, jobs.ErrCursorMismatch),
		errors.Is(err, jobs.ErrInvalidTransition),
		errors.Is(err, jobs.ErrCheckpointImmutable):
		return fmt.Errorf("%w: %s: %v", ErrLeaseLost, op, err)
	default:
		return fmt.Errorf("%w: %s: %v", errStorage, op, err)
	}
}
