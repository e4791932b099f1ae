// Package guard contains the safety controls wrapped around every outbound
// call: a keyed circuit breaker, a keyed minimum-interval rate limiter, and
// the retry backoff policy.
package guard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// BreakerState represents the state of a circuit breaker
type BreakerState string

const (
	// StateClosed allows requests to pass through
	StateClosed BreakerState = "closed"
	// StateOpen blocks requests
	StateOpen BreakerState = "open"
	// StateHalfOpen allows a single trial request to test if the target recovered
	StateHalfOpen BreakerState = "half_open"
)

// ErrCircuitOpen is returned when the breaker short-circuits a call
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Canonical target keys. Breaker and limiter state is keyed per
// (tenant, target) so a sick store API never blocks a healthy search
// endpoint, and vice versa.
const (
	TargetStoreAPI     = "store_api"
	TargetMarketSearch = "market_search"
	TargetOAuth        = "oauth"
)

// BreakerConfig holds the shared FSM parameters
type BreakerConfig struct {
	FailureThreshold int
	FailureWindow    time.Duration
	RecoveryTimeout  time.Duration
}

// Breaker is one circuit breaker instance. Each (tenant, target) pair owns
// its own Breaker; state transitions for one key are serialized by its mutex
// and different keys are fully independent.
type Breaker struct {
	key string
	cfg BreakerConfig
	now func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	windowStart time.Time
	openedAt    time.Time
	probing     bool
}

// Call executes fn under breaker protection. In the open state it fails fast
// with ErrCircuitOpen without touching the network. In half-open, exactly one
// caller is admitted as the trial; concurrent callers fail fast.
func (b *Breaker) Call(fn func() error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := fn()
	b.afterCall(err)
	return err
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.RecoveryTimeout {
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.probing = false
		logrus.Infof("🔌 Breaker %s: open → half-open, allowing trial call", b.key)
		fallthrough
	case StateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.onSuccess()
		return
	}
	// A rate-limit wait or caller cancellation says nothing about the
	// target's health; release the half-open probe without a transition.
	if errors.Is(err, ErrRateLimitExceeded) || errors.Is(err, context.Canceled) {
		b.probing = false
		return
	}
	b.onFailure()
}

// onFailure must be called with the mutex held
func (b *Breaker) onFailure() {
	now := b.now()

	if b.state == StateHalfOpen {
		// Trial failed: back to open with a fresh recovery window
		b.state = StateOpen
		b.openedAt = now
		b.probing = false
		logrus.Warnf("🔌 Breaker %s: trial call failed, half-open → open", b.key)
		return
	}

	// Failures only accumulate within the rolling window
	if b.failures == 0 || now.Sub(b.windowStart) > b.cfg.FailureWindow {
		b.failures = 0
		b.windowStart = now
	}
	b.failures++

	if b.failures >= b.cfg.FailureThreshold {
		b.state = StateOpen
		b.openedAt = now
		logrus.Warnf("🔌 Breaker %s: %d failures within %s, closed → open", b.key, b.failures, b.cfg.FailureWindow)
	}
}

// onSuccess must be called with the mutex held
func (b *Breaker) onSuccess() {
	if b.state == StateHalfOpen {
		logrus.Infof("🔌 Breaker %s: trial call succeeded, half-open → closed", b.key)
	}
	b.state = StateClosed
	b.failures = 0
	b.probing = false
}

// State returns the current breaker state
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerRegistry hands out one breaker per (tenant, target) key, created
// lazily and kept for the process lifetime.
type BreakerRegistry struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakerRegistry creates a breaker registry
func NewBreakerRegistry(cfg BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		cfg:      cfg,
		now:      time.Now,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for a (tenant, target) pair
func (r *BreakerRegistry) Get(tenantID, target string) *Breaker {
	key := tenantID + ":" + target

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[key]; ok {
		return b
	}
	b := &Breaker{
		key:   key,
		cfg:   r.cfg,
		now:   r.now,
		state: StateClosed,
	}
	r.breakers[key] = b
	return b
}
