package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"docgen-backend/internal/shared/telemetry"
)

const (
	defaultPollWorkers = 4
	defaultIdleDelay   = 2 * time.Second
)

// NextRunner claims and runs the oldest pending job.
type NextRunner interface {
	RunNext(ctx context.Context) (Outcome, error)
}

// Poller runs a fixed number of workers that drain PENDING jobs in FIFO order.
// It is the fallback when no queue is configured.
type Poller struct {
	Runner    NextRunner
	Workers   int
	IdleDelay time.Duration
}

// Run blocks until ctx is cancelled and every worker has returned.
func (p *Poller) Run(ctx context.Context) {
	workers := p.Workers
	if workers <= 0 {
		workers = defaultPollWorkers
	}
	idle := p.IdleDelay
	if idle <= 0 {
		idle = defaultIdleDelay
	}

	telemetry.Info("poller.started", map[string]any{"workers": workers, "idle_delay": idle.String()})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.loop(ctx, worker, idle)
		}(i)
	}
	wg.Wait()
	telemetry.Info("poller.stopped", nil)
}

func (p *Poller) loop(ctx context.Context, worker int, idle time.Duration) {
	for ctx.Err() == nil {
		out, err := p.Runner.RunNext(ctx)
		switch {
		case err == nil:
			telemetry.Debug("poller.job.done", map[string]any{
				"worker": worker,
				"job_id": out.JobID,
				"status": out.Status,
			})
			continue
		case errors.Is(err, ErrNoPendingJobs):
		case ctx.Err() != nil:
			return
		default:
			telemetry.Error("poller.claim_failed", map[string]any{"worker": worker, "error": err.Error()})
		}
		if !sleepCtx(ctx, idle) {
			return
		}
	}
}

// Sweeper is the maintenance surface the Janitor drives.
type Sweeper interface {
	RecoverStale(ctx context.Context, staleAfter time.Duration) (int, error)
	CollectGarbage(ctx context.Context, completedTTL, abandonedTTL time.Duration) (GCReport, error)
	RepublishPending(ctx context.Context, pendingAfter time.Duration) (int, error)
}

// Janitor periodically fails expired leases and deletes old checkpoints.
// With PendingAfter set it also re-publishes jobs stuck PENDING, which only
// matters when workers are fed by a queue instead of polling the store.
type Janitor struct {
	Sweeper      Sweeper
	Interval     time.Duration
	StaleAfter   time.Duration
	PendingAfter time.Duration
	CompletedTTL time.Duration
	AbandonedTTL time.Duration
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		j.Sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs one maintenance pass. Errors are logged.
func (j *Janitor) Sweep(ctx context.Context) {
	if j.StaleAfter > 0 {
		n, err := j.Sweeper.RecoverStale(ctx, j.StaleAfter)
		if err != nil {
			telemetry.Error("janitor.recover_failed", map[string]any{"error": err.Error()})
		} else if n > 0 {
			telemetry.Info("janitor.recovered", map[string]any{"jobs": n})
		}
	}
	if j.PendingAfter > 0 {
		if _, err := j.Sweeper.RepublishPending(ctx, j.PendingAfter); err != nil {
			telemetry.Error("janitor.republish_failed", map[string]any{"error": err.Error()})
		}
	}
	if _, err := j.Sweeper.CollectGarbage(ctx, j.CompletedTTL, j.AbandonedTTL); err != nil {
		telemetry.Error("janitor.gc_failed", map[string]any{"error": err.Error()})
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
