package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps jobs and checkpoints in memory and is safe for concurrent use.
// A single mutex covers both maps so job+checkpoint creation and every CAS are atomic.
type MemoryStore struct {
	mu          sync.Mutex
	jobs        map[string]Job
	checkpoints map[string]Checkpoint
	now         func() time.Time
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:        make(map[string]Job),
		checkpoints: make(map[string]Checkpoint),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the store clock. Intended for tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Create(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = s.newJob(job)
	return nil
}

func (s *MemoryStore) newJob(job Job) Job {
	now := s.now()
	job.Status = StatusPending
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	return job
}

func (s *MemoryStore) Get(ctx context.Context, jobID string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

func (s *MemoryStore) Claim(ctx context.Context, jobID string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	if job.Status != StatusPending {
		return Job{}, ErrClaimConflict
	}
	return s.startLocked(job), nil
}

func (s *MemoryStore) startLocked(job Job) Job {
	now := s.now()
	job.Status = StatusProcessing
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	job.UpdatedAt = now
	s.jobs[job.ID] = job
	return job
}

func (s *MemoryStore) ClaimForResume(ctx context.Context, jobID string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	if job.Status != StatusFailed {
		return Job{}, ErrClaimConflict
	}
	job.Error = nil
	job.ErrorCode = ""
	job.CompletedAt = nil
	return s.startLocked(job), nil
}

func (s *MemoryStore) ClaimNextPending(ctx context.Context) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var next *Job
	for id := range s.jobs {
		job := s.jobs[id]
		if job.Status != StatusPending {
			continue
		}
		if next == nil || job.CreatedAt.Before(next.CreatedAt) ||
			(job.CreatedAt.Equal(next.CreatedAt) && job.ID < next.ID) {
			j := job
			next = &j
		}
	}
	if next == nil {
		return Job{}, ErrNoPendingJobs
	}
	return s.startLocked(*next), nil
}

func (s *MemoryStore) Complete(ctx context.Context, jobID string, result Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.completeJobLocked(jobID)
	if err != nil {
		return err
	}
	s.applyCompleteLocked(job, result)
	return nil
}

func (s *MemoryStore) completeJobLocked(jobID string) (Job, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	if job.Status != StatusProcessing {
		return Job{}, ErrInvalidTransition
	}
	return job, nil
}

func (s *MemoryStore) applyCompleteLocked(job Job, result Result) {
	now := s.now()
	res := result
	job.Status = StatusCompleted
	job.Result = &res
	job.Progress = 100
	job.Error = nil
	job.ErrorCode = ""
	job.CompletedAt = &now
	job.UpdatedAt = now
	s.jobs[job.ID] = job
}

// Finish checks both transitions before applying either.
func (s *MemoryStore) Finish(ctx context.Context, jobID string, result Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, err := s.completeCheckpointLocked(jobID)
	if err != nil {
		return err
	}
	job, err := s.completeJobLocked(jobID)
	if err != nil {
		return err
	}
	s.applyMarkCompletedLocked(cp)
	s.applyCompleteLocked(job, result)
	return nil
}

func (s *MemoryStore) Fail(ctx context.Context, jobID, code, message string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	if job.Status != StatusProcessing {
		return Job{}, ErrInvalidTransition
	}
	msg := message
	job.Status = StatusFailed
	job.Error = &msg
	job.ErrorCode = code
	job.RetryCount++
	job.UpdatedAt = s.now()
	s.jobs[jobID] = job
	return job, nil
}

func (s *MemoryStore) UpdateProgress(ctx context.Context, jobID string, percent int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Status != StatusProcessing {
		return ErrInvalidTransition
	}
	job.Progress = clampProgress(percent)
	job.UpdatedAt = s.now()
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryStore) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]Job, error) {
	return s.listIdle(ctx, StatusProcessing, olderThan, limit)
}

// ListPending returns PENDING jobs untouched since olderThan, oldest first.
func (s *MemoryStore) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]Job, error) {
	return s.listIdle(ctx, StatusPending, olderThan, limit)
}

func (s *MemoryStore) listIdle(ctx context.Context, status string, olderThan time.Time, limit int) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	var out []Job
	for _, job := range s.jobs {
		if job.Status == status && job.UpdatedAt.Before(olderThan) {
			out = append(out, job)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TouchPending bumps updated_at on a job that is still PENDING.
func (s *MemoryStore) TouchPending(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Status != StatusPending {
		return ErrInvalidTransition
	}
	job.UpdatedAt = s.now()
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryStore) CreateWithCheckpoint(ctx context.Context, job Job, cp Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cp.JobID != job.ID {
		cp.JobID = job.ID
	}
	if err := cp.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job = s.newJob(job)
	s.jobs[job.ID] = job
	cp = cp.clone()
	cp.Status = CheckpointInProgress
	cp.CanResume = false
	cp.CreatedAt = job.CreatedAt
	cp.UpdatedAt = job.UpdatedAt
	s.checkpoints[job.ID] = cp
	return nil
}

func (s *MemoryStore) LoadCheckpoint(ctx context.Context, jobID string) (Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return Checkpoint{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[jobID]
	if !ok {
		return Checkpoint{}, ErrNotFound
	}
	return cp.clone(), nil
}

func (s *MemoryStore) AppendSection(ctx context.Context, jobID string, cursor int, section Section) (Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return Checkpoint{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[jobID]
	if !ok {
		return Checkpoint{}, ErrNotFound
	}
	switch {
	case cp.Status == CheckpointCompleted:
		return Checkpoint{}, ErrCheckpointImmutable
	case cp.Status != CheckpointInProgress:
		return Checkpoint{}, ErrInvalidTransition
	case cp.CurrentSection != cursor || cp.CurrentSection >= cp.TotalSections:
		return Checkpoint{}, ErrCursorMismatch
	}
	cp = cp.clone()
	cp.GeneratedContent = append(cp.GeneratedContent, section)
	cp.CompletedSections++
	cp.CurrentSection++
	cp.UpdatedAt = s.now()
	s.checkpoints[jobID] = cp
	return cp.clone(), nil
}

func (s *MemoryStore) MarkCompleted(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, err := s.completeCheckpointLocked(jobID)
	if err != nil {
		return err
	}
	s.applyMarkCompletedLocked(cp)
	return nil
}

func (s *MemoryStore) completeCheckpointLocked(jobID string) (Checkpoint, error) {
	cp, ok := s.checkpoints[jobID]
	if !ok {
		return Checkpoint{}, ErrNotFound
	}
	switch {
	case cp.Status == CheckpointCompleted:
		return Checkpoint{}, ErrCheckpointImmutable
	case cp.Status != CheckpointInProgress:
		return Checkpoint{}, ErrInvalidTransition
	case cp.CompletedSections != cp.TotalSections:
		return Checkpoint{}, ErrIncomplete
	}
	return cp, nil
}

func (s *MemoryStore) applyMarkCompletedLocked(cp Checkpoint) {
	cp.Status = CheckpointCompleted
	cp.CanResume = false
	cp.ErrorMessage = nil
	cp.UpdatedAt = s.now()
	s.checkpoints[cp.JobID] = cp
}

func (s *MemoryStore) MarkFailed(ctx context.Context, jobID, message string, canResume bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[jobID]
	if !ok {
		return ErrNotFound
	}
	if cp.Status == CheckpointCompleted {
		return ErrCheckpointImmutable
	}
	msg := message
	cp.Status = CheckpointFailed
	cp.CanResume = canResume
	cp.ErrorMessage = &msg
	cp.UpdatedAt = s.now()
	s.checkpoints[jobID] = cp
	return nil
}

func (s *MemoryStore) Reopen(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[jobID]
	if !ok {
		return ErrNotFound
	}
	switch {
	case cp.Status == CheckpointCompleted:
		return ErrCheckpointImmutable
	case cp.Status != CheckpointFailed || !cp.CanResume:
		return ErrNotResumable
	}
	cp.Status = CheckpointInProgress
	cp.CanResume = false
	cp.ErrorMessage = nil
	cp.UpdatedAt = s.now()
	s.checkpoints[jobID] = cp
	return nil
}

func (s *MemoryStore) ListResumable(ctx context.Context, subjectID string) ([]Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := []Checkpoint{}
	for _, cp := range s.checkpoints {
		if cp.Status != CheckpointFailed || !cp.CanResume {
			continue
		}
		if subjectID != "" && cp.SubjectID != subjectID {
			continue
		}
		out = append(out, cp.clone())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteCompleted(ctx context.Context, olderThan time.Time) (int, error) {
	return s.deleteWhere(ctx, CheckpointCompleted, olderThan)
}

func (s *MemoryStore) DeleteAbandoned(ctx context.Context, olderThan time.Time) (int, error) {
	return s.deleteWhere(ctx, CheckpointFailed, olderThan)
}

func (s *MemoryStore) deleteWhere(ctx context.Context, status string, olderThan time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, cp := range s.checkpoints {
		if cp.Status == status && cp.UpdatedAt.Before(olderThan) {
			delete(s.checkpoints, id)
			n++
		}
	}
	return n, nil
}

var _ Store = (*MemoryStore)(nil)
