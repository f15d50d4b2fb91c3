package engine

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"docgen-backend/internal/generation"
	"docgen-backend/internal/jobs"
)

func TestResumeContinuesAfterTransientFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := h.enqueue(t)

	h.gen.setFail("three", generation.ErrUpstream)
	out, err := h.svc.ProcessJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if out.Status != jobs.StatusFailed || out.ErrorCode != CodeUpstreamError || !out.CanResume {
		t.Fatalf("unexpected first outcome %+v", out)
	}
	failed := h.job(t, job.ID)
	if failed.Status != jobs.StatusFailed || failed.RetryCount != 1 || failed.Progress != 49 {
		t.Fatalf("unexpected failed job %+v", failed)
	}
	cp := h.checkpoint(t, job.ID)
	if cp.CompletedSections != 2 || cp.CurrentSection != 2 || !cp.CanResume || cp.Status != jobs.CheckpointFailed {
		t.Fatalf("unexpected checkpoint after failure %+v", cp)
	}

	h.gen.setFail("three", nil)
	out, err = h.svc.Resume(ctx, job.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if out.Status != jobs.StatusCompleted || out.Result == nil || out.Result.Sections != 4 {
		t.Fatalf("unexpected resume outcome %+v", out)
	}

	done := h.job(t, job.ID)
	if done.Status != jobs.StatusCompleted || done.Progress != 100 || done.Error != nil || done.ErrorCode != "" {
		t.Fatalf("unexpected completed job %+v", done)
	}
	cp = h.checkpoint(t, job.ID)
	if cp.CompletedSections != 4 || cp.Status != jobs.CheckpointCompleted || cp.CanResume {
		t.Fatalf("unexpected final checkpoint %+v", cp)
	}

	for _, name := range []string{"one", "two", "four"} {
		if n := h.gen.callCount(name); n != 1 {
			t.Fatalf("section %s generated %d times", name, n)
		}
	}
	if n := h.gen.callCount("three"); n != 2 {
		t.Fatalf("section three generated %d times, want 2", n)
	}

	_, body, err := h.docs.Body(ctx, done.Result.DocumentVersionID)
	if err != nil {
		t.Fatalf("Body: %v", err)
	}
	want := "# Business Plan\n\n" +
		"## One\n\ncontent for one\n\n" +
		"## Two\n\ncontent for two\n\n" +
		"## Three\n\ncontent for three\n\n" +
		"## Four\n\ncontent for four\n"
	if body != want {
		t.Fatalf("unexpected document body:\n%q\nwant\n%q", body, want)
	}
	if body != Assemble("Business Plan", cp.GeneratedContent) {
		t.Fatalf("stored body differs from assembled checkpoint content")
	}

	entries, _ := h.activity.List(ctx, testSubject, 10)
	if len(entries) != 2 || entries[0].Description != "Generated Business Plan version 1" {
		t.Fatalf("unexpected activity %+v", entries)
	}
}

func TestResumeRejectsNonResumableCheckpoint(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := h.enqueue(t)

	h.gen.setFail("two", generation.ErrRejected)
	out, _ := h.svc.ProcessJob(ctx, job.ID)
	if out.ErrorCode != CodeUpstreamRejected || out.CanResume {
		t.Fatalf("expected permanent failure, got %+v", out)
	}

	beforeJob := h.job(t, job.ID)
	beforeCP := h.checkpoint(t, job.ID)
	calls := h.gen.callCount("two")

	if _, err := h.svc.Resume(ctx, job.ID); !errors.Is(err, ErrNotResumable) {
		t.Fatalf("expected ErrNotResumable, got %v", err)
	}
	if afterJob := h.job(t, job.ID); !reflect.DeepEqual(beforeJob, afterJob) {
		t.Fatalf("job mutated:\n%+v\n%+v", beforeJob, afterJob)
	}
	if afterCP := h.checkpoint(t, job.ID); !reflect.DeepEqual(beforeCP, afterCP) {
		t.Fatalf("checkpoint mutated:\n%+v\n%+v", beforeCP, afterCP)
	}
	if h.gen.callCount("two") != calls {
		t.Fatalf("generator called during rejected resume")
	}
}

func TestResumeUnknownJob(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.Resume(context.Background(), "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResumeCompletedJobIsNotResumable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := h.enqueue(t)
	if out, _ := h.svc.ProcessJob(ctx, job.ID); out.Status != jobs.StatusCompleted {
		t.Fatalf("expected completion, got %+v", out)
	}
	if _, err := h.svc.Resume(ctx, job.ID); !errors.Is(err, ErrNotResumable) {
		t.Fatalf("expected ErrNotResumable, got %v", err)
	}
}

func TestConcurrentProcessJobSingleWinner(t *testing.T) {
	h := newHarness(t)
	job := h.enqueue(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.ProcessJob(context.Background(), job.ID)
		}(i)
	}
	wg.Wait()

	wins, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrClaimConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Fatalf("expected one winner and one conflict, got %d/%d", wins, conflicts)
	}
	if n := h.gen.callCount("one"); n != 1 {
		t.Fatalf("section one generated %d times", n)
	}
}

func TestConcurrentResumeSingleWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := h.enqueue(t)
	h.gen.setFail("two", generation.ErrTimeout)
	h.svc.ProcessJob(ctx, job.ID)
	h.gen.setFail("two", nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.Resume(ctx, job.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrClaimConflict), errors.Is(err, ErrNotResumable):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one resume to run, got %d", ok)
	}
	if n := h.gen.callCount("one"); n != 1 {
		t.Fatalf("section one regenerated: %d calls", n)
	}
}

func TestRetryExhaustionStopsResume(t *testing.T) {
	h := newHarness(t)
	h.svc.MaxAttempts = 2
	ctx := context.Background()
	job := h.enqueue(t)

	h.gen.setFail("three", generation.ErrRateLimited)
	out, _ := h.svc.ProcessJob(ctx, job.ID)
	if out.ErrorCode != CodeRateLimited || !out.CanResume {
		t.Fatalf("expected resumable rate limit, got %+v", out)
	}
	out, err := h.svc.Resume(ctx, job.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if out.ErrorCode != CodeRetryExhausted || out.CanResume {
		t.Fatalf("expected RETRY_EXHAUSTED, got %+v", out)
	}
	if cp := h.checkpoint(t, job.ID); cp.CanResume || cp.CompletedSections != 2 {
		t.Fatalf("unexpected checkpoint %+v", cp)
	}
	if _, err := h.svc.Resume(ctx, job.ID); !errors.Is(err, ErrNotResumable) {
		t.Fatalf("expected ErrNotResumable after exhaustion, got %v", err)
	}
}

func TestCancellationStopsAtSectionBoundary(t *testing.T) {
	h := newHarness(t)
	job := h.enqueue(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.gen.hook = func(section string) {
		if section == "two" {
			cancel()
		}
	}

	out, err := h.svc.ProcessJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if out.Status != jobs.StatusFailed || out.ErrorCode != CodeCancelled || !out.CanResume {
		t.Fatalf("unexpected outcome %+v", out)
	}
	cp := h.checkpoint(t, job.ID)
	if cp.CompletedSections != 2 || cp.GeneratedContent[1].Content != "content for two" {
		t.Fatalf("section in flight at cancellation was lost: %+v", cp)
	}
	if h.gen.callCount("three") != 0 {
		t.Fatalf("generation continued past cancellation")
	}

	h.gen.hook = nil
	out, err = h.svc.Resume(context.Background(), job.ID)
	if err != nil || out.Status != jobs.StatusCompleted {
		t.Fatalf("resume after cancel: %+v %v", out, err)
	}
}

func TestLostLeaseLeavesNewOwnerState(t *testing.T) {
	h := newHarness(t)
	job := h.enqueue(t)

	h.gen.hook = func(section string) {
		if section != "two" {
			return
		}
		bg := context.Background()
		if _, err := h.store.Fail(bg, job.ID, CodeStaleWorker, "worker lease expired"); err != nil {
			t.Errorf("sweeper Fail: %v", err)
		}
		if err := h.store.MarkFailed(bg, job.ID, "worker lease expired", true); err != nil {
			t.Errorf("sweeper MarkFailed: %v", err)
		}
	}

	out, err := h.svc.ProcessJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if out.Status != jobs.StatusFailed || !out.CanResume {
		t.Fatalf("unexpected outcome %+v", out)
	}
	got := h.job(t, job.ID)
	if got.RetryCount != 1 || got.ErrorCode != CodeStaleWorker {
		t.Fatalf("stale worker overwrote terminal state: %+v", got)
	}
	if cp := h.checkpoint(t, job.ID); cp.CompletedSections != 1 || !cp.CanResume {
		t.Fatalf("unexpected checkpoint %+v", cp)
	}
}

func TestResumeAsyncRunsInBackground(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := h.enqueue(t)
	h.gen.setFail("four", generation.ErrUpstream)
	h.svc.ProcessJob(ctx, job.ID)
	h.gen.setFail("four", nil)

	reqCtx, cancel := context.WithCancel(ctx)
	claimed, err := h.svc.ResumeAsync(reqCtx, job.ID)
	cancel()
	if err != nil {
		t.Fatalf("ResumeAsync: %v", err)
	}
	if claimed.Status != jobs.StatusProcessing {
		t.Fatalf("expected PROCESSING, got %s", claimed.Status)
	}
	h.svc.Wait()
	if got := h.job(t, job.ID); got.Status != jobs.StatusCompleted {
		t.Fatalf("expected COMPLETED after background run, got %+v", got)
	}
}

// finishFailingStore rejects the first n Finish calls with a transient error.
type finishFailingStore struct {
	*jobs.MemoryStore
	mu       sync.Mutex
	failures int
}

func (s *finishFailingStore) Finish(ctx context.Context, jobID string, result jobs.Result) error {
	s.mu.Lock()
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()
	if fail {
		return errors.New("connection reset")
	}
	return s.MemoryStore.Finish(ctx, jobID, result)
}

func TestFinishFailureKeepsJobAndCheckpointConsistent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.svc.Store = &finishFailingStore{MemoryStore: h.store, failures: 1}
	job := h.enqueue(t)

	out, err := h.svc.ProcessJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if out.Status != jobs.StatusFailed || out.ErrorCode != CodeStorageError || !out.CanResume {
		t.Fatalf("unexpected outcome %+v", out)
	}
	failed := h.job(t, job.ID)
	cp := h.checkpoint(t, job.ID)
	if failed.Status != jobs.StatusFailed || cp.Status != jobs.CheckpointFailed {
		t.Fatalf("job %s and checkpoint %s must fail together", failed.Status, cp.Status)
	}
	if !cp.CanResume || cp.CompletedSections != 4 {
		t.Fatalf("expected resumable checkpoint with all sections, got %+v", cp)
	}

	out, err = h.svc.Resume(ctx, job.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if out.Status != jobs.StatusCompleted {
		t.Fatalf("unexpected resume outcome %+v", out)
	}
	if h.job(t, job.ID).Status != jobs.StatusCompleted || h.checkpoint(t, job.ID).Status != jobs.CheckpointCompleted {
		t.Fatalf("expected both records COMPLETED after resume")
	}
	for _, name := range []string{"one", "two", "three", "four"} {
		if n := h.gen.callCount(name); n != 1 {
			t.Fatalf("section %s generated %d times", name, n)
		}
	}
	versions, err := h.docs.List(ctx, testSubject, "", 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(versions) != 1 || versions[0].ID != out.Result.DocumentVersionID {
		t.Fatalf("expected the first saved version to be reused, got %+v", versions)
	}
}

// uuidColumnStore fails like a uuid-typed column would when handed text that
// does not parse as a uuid.
type uuidColumnStore struct {
	*jobs.MemoryStore
}

var errUUIDSyntax = errors.New(`invalid input syntax for type uuid: "abc" (SQLSTATE 22P02)`)

func (s uuidColumnStore) Get(ctx context.Context, jobID string) (jobs.Job, error) {
	return jobs.Job{}, errUUIDSyntax
}

func (s uuidColumnStore) Claim(ctx context.Context, jobID string) (jobs.Job, error) {
	return jobs.Job{}, errUUIDSyntax
}

func (s uuidColumnStore) ClaimForResume(ctx context.Context, jobID string) (jobs.Job, error) {
	return jobs.Job{}, errUUIDSyntax
}

func (s uuidColumnStore) LoadCheckpoint(ctx context.Context, jobID string) (jobs.Checkpoint, error) {
	return jobs.Checkpoint{}, errUUIDSyntax
}

func TestMalformedJobIDIsNotFound(t *testing.T) {
	h := newHarness(t)
	h.svc.Store = uuidColumnStore{MemoryStore: h.store}
	ctx := context.Background()

	for _, id := range []string{"abc", "", "11111111-1111-1111-1111-11111111111z", "{11111111-1111-1111-1111-111111111111}"} {
		if _, err := h.svc.GetStatus(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("GetStatus(%q): expected ErrNotFound, got %v", id, err)
		}
		if _, err := h.svc.Resume(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Resume(%q): expected ErrNotFound, got %v", id, err)
		}
		if _, err := h.svc.ResumeAsync(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("ResumeAsync(%q): expected ErrNotFound, got %v", id, err)
		}
		if _, err := h.svc.ProcessJob(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("ProcessJob(%q): expected ErrNotFound, got %v", id, err)
		}
	}
}
