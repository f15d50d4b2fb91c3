package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a fixed-window limiter shared by every process talking to the same Redis.
type Redis struct {
	Client    *redis.Client
	Limit     int
	Window    time.Duration
	KeyPrefix string
}

func NewRedis(client *redis.Client, limit int, window time.Duration) *Redis {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &Redis{Client: client, Limit: limit, Window: window, KeyPrefix: "docgen:rl:"}
}

// Allow consumes one permit from the current window and reports how long until it resets when exhausted.
func (r *Redis) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := r.KeyPrefix + key
	count, err := r.Client.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis incr: %w", err)
	}
	if count == 1 {
		if err := r.Client.Expire(ctx, k, r.Window).Err(); err != nil {
			return false, 0, fmt.Errorf("redis expire: %w", err)
		}
	}
	if count <= int64(r.Limit) {
		return true, 0, nil
	}
	ttl, err := r.Client.PTTL(ctx, k).Result()
	if err != nil || ttl <= 0 {
		ttl = r.Window
	}
	return false, ttl, nil
}

func (r *Redis) Wait(ctx context.Context, key string) error {
	for {
		ok, retryAfter, err := r.Allow(ctx, key)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		timer := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", ErrLimited, ctx.Err())
		case <-timer.C:
		}
	}
}
