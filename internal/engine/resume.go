package engine

import (
	"context"
	"errors"
	"fmt"

	"docgen-backend/internal/jobs"
	"docgen-backend/internal/shared/telemetry"
)

// Resume continues a failed job from its saved cursor and blocks until the
// run reaches a terminal state. Sections already in the checkpoint are never
// generated again.
func (s *Service) Resume(ctx context.Context, jobID string) (Outcome, error) {
	job, err := s.claimForResume(ctx, jobID)
	if err != nil {
		return Outcome{}, err
	}
	return s.run(ctx, job, "resume"), nil
}

// ResumeAsync validates and claims the job like Resume, then runs it in the
// background detached from ctx. Wait blocks until such runs finish.
func (s *Service) ResumeAsync(ctx context.Context, jobID string) (jobs.Job, error) {
	job, err := s.claimForResume(ctx, jobID)
	if err != nil {
		return jobs.Job{}, err
	}
	runCtx := context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.run(runCtx, job, "resume")
	}()
	return job, nil
}

// Wait blocks until every run started by ResumeAsync has finished.
func (s *Service) Wait() {
	s.background.Wait()
}

func (s *Service) claimForResume(ctx context.Context, jobID string) (jobs.Job, error) {
	if err := checkJobID(jobID); err != nil {
		return jobs.Job{}, err
	}
	cp, err := s.Store.LoadCheckpoint(ctx, jobID)
	if err != nil {
		return jobs.Job{}, err
	}
	if cp.Status != jobs.CheckpointFailed || !cp.CanResume {
		return jobs.Job{}, ErrNotResumable
	}

	job, err := s.Store.ClaimForResume(ctx, jobID)
	if err != nil {
		return jobs.Job{}, err
	}
	if err := s.Store.Reopen(ctx, jobID); err != nil {
		// The checkpoint changed under us; hand the job back as failed
		// without touching the checkpoint.
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
		defer cancel()
		code := CodeStorageError
		if errors.Is(err, jobs.ErrNotResumable) || errors.Is(err, jobs.ErrCheckpointImmutable) {
			code = CodeNotResumable
		}
		if _, ferr := s.Store.Fail(bg, jobID, code, sanitizeError(err)); ferr != nil {
			telemetry.Error("job.resume.rollback_failed", map[string]any{"job_id": jobID, "error": ferr.Error()})
		}
		if code == CodeNotResumable {
			return jobs.Job{}, ErrNotResumable
		}
		return jobs.Job{}, fmt.Errorf("%w: reopen checkpoint: %v", errStorage, err)
	}

	telemetry.Info("job.resume", map[string]any{
		"request_id":  RequestIDFromContext(ctx),
		"job_id":      jobID,
		"cursor":      cp.CurrentSection,
		"total":       cp.TotalSections,
		"retry_count": job.RetryCount,
	})
	return job, nil
}
