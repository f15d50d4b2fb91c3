package generation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"docgen-backend/internal/cache"
	"docgen-backend/internal/ratelimit"
	"docgen-backend/internal/shared/metrics"
	"docgen-backend/internal/shared/telemetry"
)

const defaultCallTimeout = 60 * time.Second

var (
	ErrTimeout       = errors.New("generation timed out")
	ErrRateLimited   = errors.New("generation rate limited")
	ErrUpstream      = errors.New("generation service error")
	ErrRejected      = errors.New("generation request rejected")
	ErrNotConfigured = errors.New("generation provider not configured")
)

// Provider completes a single prompt against the external generation service.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Options are pass-through hints for one call.
type Options struct {
	CacheKey  string
	CacheTTL  time.Duration
	Operation string
}

// Generator is what the orchestrator depends on.
type Generator interface {
	Generate(ctx context.Context, instruction string, opts Options) (string, error)
}

// StatusError is a provider failure that carries the upstream HTTP status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generation http status %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == 429:
		return ErrRateLimited
	case e.StatusCode == 408 || e.StatusCode >= 500:
		return ErrUpstream
	default:
		return ErrRejected
	}
}

// Config wires the shared collaborators into a Client.
type Config struct {
	Provider   Provider
	Cache      cache.Store
	Limiter    ratelimit.Limiter
	LimiterKey string
	Timeout    time.Duration
}

// Client calls the provider once per Generate, behind the shared cache and rate limiter.
// It is safe for concurrent use when its collaborators are.
type Client struct {
	provider   Provider
	cache      cache.Store
	limiter    ratelimit.Limiter
	limiterKey string
	timeout    time.Duration
}

func NewClient(cfg Config) *Client {
	c := &Client{
		provider:   cfg.Provider,
		cache:      cfg.Cache,
		limiter:    cfg.Limiter,
		limiterKey: cfg.LimiterKey,
		timeout:    cfg.Timeout,
	}
	if c.cache == nil {
		c.cache = cache.Nop{}
	}
	if c.limiter == nil {
		c.limiter = ratelimit.Unlimited{}
	}
	if c.limiterKey == "" {
		c.limiterKey = "generation"
	}
	if c.timeout <= 0 {
		c.timeout = defaultCallTimeout
	}
	return c
}

func (c *Client) Generate(ctx context.Context, instruction string, opts Options) (string, error) {
	if c.provider == nil {
		return "", ErrNotConfigured
	}
	fields := map[string]any{"operation": opts.Operation}

	if opts.CacheKey != "" {
		cached, err := c.cache.Get(ctx, opts.CacheKey)
		switch {
		case err == nil && cached != "":
			metrics.IncGeneration("cache_hit")
			telemetry.Debug("generation.cache.hit", fields)
			return cached, nil
		case err != nil && !errors.Is(err, cache.ErrMiss):
			fields["error"] = err.Error()
			telemetry.Warn("generation.cache.get_failed", fields)
			delete(fields, "error")
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(callCtx, c.limiterKey); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		metrics.IncGeneration("rate_limited")
		return "", fmt.Errorf("%w: %s: %v", ErrRateLimited, opts.Operation, err)
	}

	start := time.Now()
	text, err := c.provider.Complete(callCtx, instruction)
	metrics.ObserveGenerationDuration(time.Since(start))
	if err != nil {
		err = classify(ctx, callCtx, err)
		metrics.IncGeneration(outcome(err))
		return "", fmt.Errorf("%s: %w", opts.Operation, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		metrics.IncGeneration("upstream_error")
		return "", fmt.Errorf("%s: %w: empty completion", opts.Operation, ErrUpstream)
	}
	metrics.IncGeneration("ok")

	if opts.CacheKey != "" {
		if err := c.cache.Set(ctx, opts.CacheKey, text, opts.CacheTTL); err != nil {
			fields["error"] = err.Error()
			telemetry.Warn("generation.cache.set_failed", fields)
		}
	}
	return text, nil
}

func classify(parent, call context.Context, err error) error {
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUpstream) || errors.Is(err, ErrRejected) || errors.Is(err, ErrNotConfigured) {
		return err
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(call.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	// connection resets, refused dials and unknown provider failures are all retriable
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "upstream_error"
	}
}
