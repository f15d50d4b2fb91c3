package jobsapi

import (
	"math"
	"sync"
	"time"
)

const pollLimitWindow = 1 * time.Second

// pollLimiter allows one status read per principal and job per window.
type pollLimiter struct {
	mu      sync.Mutex
	lastHit map[string]time.Time
	now     func() time.Time
	window  time.Duration
}

func newPollLimiter(window time.Duration, now func() time.Time) *pollLimiter {
	if now == nil {
		now = time.Now
	}
	if window <= 0 {
		window = pollLimitWindow
	}
	return &pollLimiter{
		lastHit: make(map[string]time.Time),
		now:     now,
		window:  window,
	}
}

func (l *pollLimiter) Allow(principal, jobID string) bool {
	if l == nil {
		return true
	}
	key := principal + "|" + jobID
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.lastHit[key]; ok && now.Sub(last) < l.window {
		return false
	}
	l.lastHit[key] = now
	if len(l.lastHit) > 10000 {
		l.evictLocked(now)
	}
	return true
}

func (l *pollLimiter) evictLocked(now time.Time) {
	for k, last := range l.lastHit {
		if now.Sub(last) >= l.window {
			delete(l.lastHit, k)
		}
	}
}

func (l *pollLimiter) RetryAfterSeconds() int {
	window := pollLimitWindow
	if l != nil {
		window = l.window
	}
	if s := int(math.Ceil(window.Seconds())); s > 0 {
		return s
	}
	return 1
}
