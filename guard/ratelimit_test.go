package guard

import (
	"context"
	"errors"
	"testing"
	"time"
)

// newTestLimiter wires a fake clock that jumps forward instead of sleeping
func newTestLimiter(minInterval, maxWait time.Duration) (*RateLimiter, *testClock, *[]time.Duration) {
	clock := &testClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	slept := &[]time.Duration{}
	rl := NewRateLimiter(LimiterConfig{MinInterval: minInterval, MaxWait: maxWait})
	rl.now = clock.now
	rl.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		clock.advance(d)
		return nil
	}
	return rl, clock, slept
}

func TestRateLimiterMinInterval(t *testing.T) {
	rl, _, slept := newTestLimiter(time.Second, 30*time.Second)
	ctx := context.Background()

	if err := rl.Wait(ctx, "store-1", "salla-api"); err != nil {
		t.Fatalf("first call should proceed immediately: %v", err)
	}
	if len(*slept) != 0 {
		t.Fatalf("first call should not sleep, slept %v", *slept)
	}

	// Second call reserved one interval later
	if err := rl.Wait(ctx, "store-1", "salla-api"); err != nil {
		t.Fatalf("second call should wait, not fail: %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != time.Second {
		t.Errorf("expected one sleep of 1s, got %v", *slept)
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl, _, slept := newTestLimiter(time.Second, 30*time.Second)
	ctx := context.Background()

	_ = rl.Wait(ctx, "store-1", "salla-api")
	_ = rl.Wait(ctx, "store-2", "salla-api")
	_ = rl.Wait(ctx, "store-1", "search")

	if len(*slept) != 0 {
		t.Errorf("different keys must not wait on each other, slept %v", *slept)
	}
}

func TestRateLimiterRetryAfterHint(t *testing.T) {
	rl, _, slept := newTestLimiter(time.Second, 30*time.Second)
	ctx := context.Background()

	_ = rl.Wait(ctx, "store-1", "salla-api")

	// Server said back off 5s; that dominates the 1s minimum interval
	rl.Hint("store-1", "salla-api", 5*time.Second)

	if err := rl.Wait(ctx, "store-1", "salla-api"); err != nil {
		t.Fatalf("hinted call should wait, not fail: %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != 5*time.Second {
		t.Errorf("expected a 5s wait from the retry-after hint, got %v", *slept)
	}
}

func TestRateLimiterMaxWaitExceeded(t *testing.T) {
	rl, _, _ := newTestLimiter(time.Second, 10*time.Second)
	ctx := context.Background()

	_ = rl.Wait(ctx, "store-1", "salla-api")
	rl.Hint("store-1", "salla-api", time.Minute)

	err := rl.Wait(ctx, "store-1", "salla-api")
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
}

func TestDelay(t *testing.T) {
	tests := []struct {
		name     string
		attempt  int
		expected time.Duration
	}{
		{"first attempt", 1, 500 * time.Millisecond},
		{"second attempt", 2, time.Second},
		{"third attempt", 3, 2 * time.Second},
		{"capped at ceiling", 10, 15 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Delay(tt.attempt, 500*time.Millisecond, 15*time.Second)
			if got != tt.expected {
				t.Errorf("Delay(%d) = %v, expected %v", tt.attempt, got, tt.expected)
			}
		})
	}
}
