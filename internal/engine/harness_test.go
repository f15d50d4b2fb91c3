package engine

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"docgen-backend/internal/activity"
	"docgen-backend/internal/catalog"
	"docgen-backend/internal/documents"
	"docgen-backend/internal/generation"
	"docgen-backend/internal/jobs"
	"docgen-backend/internal/queue"
	"docgen-backend/internal/shared/storage/object/local"
	"docgen-backend/internal/subjects"
)

const testSubject = "client-1"

type fakeGenerator struct {
	mu    sync.Mutex
	calls []string
	opts  []generation.Options
	fail  map[string]error
	hook  func(section string)
}

func (g *fakeGenerator) Generate(ctx context.Context, instruction string, opts generation.Options) (string, error) {
	name := strings.TrimPrefix(opts.Operation, "section:")
	g.mu.Lock()
	g.calls = append(g.calls, name)
	g.opts = append(g.opts, opts)
	err := g.fail[name]
	hook := g.hook
	g.mu.Unlock()
	if hook != nil {
		hook(name)
	}
	if err != nil {
		return "", err
	}
	return "content for " + name, nil
}

func (g *fakeGenerator) setFail(section string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail == nil {
		g.fail = map[string]error{}
	}
	if err == nil {
		delete(g.fail, section)
		return
	}
	g.fail[section] = err
}

func (g *fakeGenerator) callCount(section string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == section {
			n++
		}
	}
	return n
}

type recordingQueue struct {
	mu   sync.Mutex
	msgs []queue.Message
	err  error
}

func (q *recordingQueue) Send(ctx context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, msg)
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	svc      *Service
	store    *jobs.MemoryStore
	gen      *fakeGenerator
	docs     *documents.Service
	activity *activity.MemoryLog
	subjects *subjects.Service
	queue    *recordingQueue
	clock    *testClock
}

func fourSectionEntry(t *testing.T) catalog.Entry {
	t.Helper()
	entry, err := catalog.NewEntry(catalog.BusinessPlan, "Business Plan", 1, []catalog.Section{
		{Name: "one", Title: "One", Order: 1, InstructionTemplate: "Section one for {{.CompanyName}}"},
		{Name: "two", Title: "Two", Order: 2, InstructionTemplate: "Section two for {{.CompanyName}}"},
		{Name: "three", Title: "Three", Order: 3, InstructionTemplate: "Section three for {{.CompanyName}}"},
		{Name: "four", Title: "Four", Order: 4, InstructionTemplate: "Section four for {{.CompanyName}}"},
	})
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	return entry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := jobs.NewMemoryStore()
	store.SetClock(clock.Now)

	subj := subjects.NewService(subjects.NewMemoryRepo())
	if _, err := subj.Upsert(context.Background(), subjects.Subject{ID: testSubject, Name: "Acme Bakery"}); err != nil {
		t.Fatalf("seed subject: %v", err)
	}
	docs := documents.NewService(local.New(t.TempDir()), documents.NewMemoryRepo())
	entry := fourSectionEntry(t)

	h := &harness{
		store:    store,
		gen:      &fakeGenerator{},
		docs:     docs,
		activity: activity.NewMemoryLog(),
		subjects: subj,
		queue:    &recordingQueue{},
		clock:    clock,
	}
	h.svc = &Service{
		Store:     store,
		Generator: h.gen,
		Documents: docs,
		Activity:  h.activity,
		Subjects:  subj,
		Queue:     h.queue,
		Now:       clock.Now,
		Lookup: func(t catalog.JobType) (catalog.Entry, error) {
			if t != catalog.BusinessPlan {
				return catalog.Entry{}, catalog.ErrUnknownJobType
			}
			return entry, nil
		},
	}
	return h
}

func businessPlanInput() json.RawMessage {
	return json.RawMessage(`{"companyName":"Acme Bakery","industry":"food service","targetMarket":"urban commuters","productDescription":"fresh breakfast pastries"}`)
}

func (h *harness) enqueue(t *testing.T) jobs.Job {
	t.Helper()
	job, err := h.svc.Enqueue(context.Background(), "BUSINESS_PLAN", testSubject, businessPlanInput())
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return job
}

func (h *harness) checkpoint(t *testing.T, jobID string) jobs.Checkpoint {
	t.Helper()
	cp, err := h.store.LoadCheckpoint(context.Background(), jobID)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	return cp
}

func (h *harness) job(t *testing.T, jobID string) jobs.Job {
	t.Helper()
	job, err := h.store.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return job
}
