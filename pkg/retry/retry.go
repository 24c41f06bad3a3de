package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Config describes the retry behavior for start-up dial-in: how many attempts
// to make and how the pause between them grows.
type Config struct {
	Attempts int
	Base     time.Duration
	Cap      time.Duration
}

// DefaultDial is tuned for waiting on infrastructure (broker, database) to
// come up alongside the process.
func DefaultDial() Config {
	return Config{Attempts: 10, Base: time.Second, Cap: 15 * time.Second}
}

// Do runs fn until it succeeds, the attempts are exhausted, or ctx is
// cancelled. The pause doubles per attempt with a little jitter, capped at
// cfg.Cap. The last error is wrapped with the operation name.
func Do(ctx context.Context, cfg Config, op string, fn func() error) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.Base <= 0 {
		cfg.Base = 500 * time.Millisecond
	}
	if cfg.Cap <= 0 {
		cfg.Cap = 10 * time.Second
	}

	var err error
	pause := cfg.Base
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err = fn(); err == nil {
			return nil
		}
		if attempt == cfg.Attempts {
			break
		}

		timer := time.NewTimer(jitter(pause))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		pause *= 2
		if pause > cfg.Cap {
			pause = cfg.Cap
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// jitter spreads a duration by up to ±20% so restarting replicas do not dial
// in lockstep.
func jitter(d time.Duration) time.Duration {
	delta := int64(float64(d) * 0.2)
	if delta <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(2*delta)-delta)
}
