package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"docgen-backend/internal/bootstrap"
	"docgen-backend/internal/queue"
	"docgen-backend/internal/shared/config"
	"docgen-backend/internal/shared/telemetry"
	"docgen-backend/internal/workerproc"
)

const (
	defaultVisibilitySeconds = 1200
	defaultShutdownTimeout   = 30 * time.Second
)

func main() {
	cfg := config.Load()
	telemetry.Configure(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		telemetry.Error("worker.bootstrap_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer app.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.Janitor().Run(ctx)
	}()

	queueURL := strings.TrimSpace(cfg.SQSQueueURL)
	if queueURL == "" {
		telemetry.Info("worker.started", map[string]any{"mode": "poll", "concurrency": cfg.WorkerConcurrency})
		app.Poller().Run(ctx)
	} else {
		client, err := queue.NewSQS(ctx, cfg.AWSRegion)
		if err != nil {
			telemetry.Error("worker.sqs_failed", map[string]any{"error": err.Error()})
			stop()
			wg.Wait()
			os.Exit(1)
		}
		consumer := &workerproc.Consumer{
			Client:            client,
			QueueURL:          queueURL,
			Processor:         app.Engine,
			Concurrency:       cfg.WorkerConcurrency,
			VisibilitySeconds: defaultVisibilitySeconds,
			ShutdownTimeout:   defaultShutdownTimeout,
		}
		telemetry.Info("worker.started", map[string]any{"mode": "sqs", "queue": queueURL, "concurrency": cfg.WorkerConcurrency})
		consumer.Run(ctx)
	}

	wg.Wait()
	telemetry.Info("worker.stopped", nil)
}
