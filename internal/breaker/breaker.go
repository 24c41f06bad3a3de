// Package breaker implements the circuit breaker guarding synchronous calls
// to remote services. One Breaker instance wraps one logical dependency and
// must be reused across calls to it; a fresh breaker per call never trips.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker is OPEN and the open timeout
// has not yet elapsed. The wrapped call is not invoked.
var ErrCircuitOpen = errors.New("circuit breaker is open: service unavailable")

// State of the breaker.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Config tunes the breaker thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures in CLOSED that
	// trips the breaker OPEN.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes in HALF_OPEN
	// that closes the breaker again.
	SuccessThreshold int
	// OpenTimeout is how long the breaker stays OPEN before allowing a trial
	// call through in HALF_OPEN.
	OpenTimeout time.Duration
}

// Breaker is a per-dependency CLOSED/OPEN/HALF_OPEN state machine. All state
// transitions are evaluated under a single mutex, so overlapping outbound
// calls sharing the instance are safe.
type Breaker struct {
	name   string
	cfg    Config
	logger *slog.Logger

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time

	now func() time.Time
}

// Snapshot is a point-in-time view of the breaker state.
type Snapshot struct {
	Name         string `json:"service"`
	State        State  `json:"state"`
	FailureCount int    `json:"failureCount"`
	SuccessCount int    `json:"successCount"`
}

// New creates a breaker for the named dependency. Zero config fields fall
// back to the defaults (5 failures, 2 successes, 30s open timeout).
func New(name string, cfg Config, logger *slog.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger,
		state:  StateClosed,
		now:    time.Now,
	}
}

// Do runs fn behind the breaker. The wrapped fn is invoked at most once per
// call. While OPEN (before the open timeout elapses) it returns ErrCircuitOpen
// without invoking fn. Any error from fn counts as one failure; there is no
// distinction between timeout, 5xx and network errors.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn(ctx)
	if err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

// Snapshot returns the current state for monitoring endpoints.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:         b.name,
		State:        b.state,
		FailureCount: b.failureCount,
		SuccessCount: b.successCount,
	}
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.lastFailureTime) < b.cfg.OpenTimeout {
			return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
		}
		b.logger.Info("circuit breaker half-open, testing recovery", slog.String("service", b.name))
		b.state = StateHalfOpen
		b.failureCount = 0
		b.successCount = 0
	}
	return nil
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	if b.state == StateHalfOpen {
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.logger.Info("circuit breaker closed, service recovered", slog.String("service", b.name))
			b.state = StateClosed
			b.successCount = 0
		}
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureTime = b.now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			b.logger.Warn("circuit breaker opened",
				slog.String("service", b.name),
				slog.Int("failures", b.failureCount))
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.logger.Warn("circuit breaker re-opened, recovery failed", slog.String("service", b.name))
		b.state = StateOpen
		b.successCount = 0
	}
}
