package guard

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRateLimitExceeded is returned when the wait for a call slot would exceed
// the configured maximum. Callers treat it as retryable on the next scheduled
// attempt, not as a fatal error.
var ErrRateLimitExceeded = errors.New("rate limit wait exceeds maximum")

// LimiterConfig holds the shared rate limiting parameters
type LimiterConfig struct {
	MinInterval time.Duration
	MaxWait     time.Duration
}

// RateLimiter enforces a minimum inter-call interval per (tenant, target)
// and honors server-supplied retry hints. Slots are reserved under the lock,
// so two goroutines sharing a key can never be granted slots closer together
// than MinInterval.
type RateLimiter struct {
	cfg   LimiterConfig
	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	mu    sync.Mutex
	slots map[string]time.Time // earliest eligible instant per key
}

// NewRateLimiter creates a keyed rate limiter
func NewRateLimiter(cfg LimiterConfig) *RateLimiter {
	return &RateLimiter{
		cfg:   cfg,
		now:   time.Now,
		sleep: sleepCtx,
		slots: make(map[string]time.Time),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Wait blocks until the (tenant, target) pair may make its next call. It
// proceeds immediately when the key is idle, sleeps until the slot otherwise,
// and fails with ErrRateLimitExceeded when the sleep would exceed MaxWait.
func (rl *RateLimiter) Wait(ctx context.Context, tenantID, target string) error {
	key := tenantID + ":" + target

	rl.mu.Lock()
	now := rl.now()
	earliest := rl.slots[key]
	if earliest.Before(now) {
		earliest = now
	}
	wait := earliest.Sub(now)
	if wait > rl.cfg.MaxWait {
		rl.mu.Unlock()
		return ErrRateLimitExceeded
	}
	rl.slots[key] = earliest.Add(rl.cfg.MinInterval)
	rl.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	return rl.sleep(ctx, wait)
}

// Hint records a server-supplied retry-after duration for a key. Subsequent
// calls wait at least that long, on top of the usual minimum interval.
func (rl *RateLimiter) Hint(tenantID, target string, retryAfter time.Duration) {
	if retryAfter <= 0 {
		return
	}
	key := tenantID + ":" + target

	rl.mu.Lock()
	defer rl.mu.Unlock()

	hinted := rl.now().Add(retryAfter)
	if hinted.After(rl.slots[key]) {
		rl.slots[key] = hinted
	}
}
