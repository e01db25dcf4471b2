package scoring

import (
	"context"
	"time"
)

// Policy is a pure retry description: bounded attempts with exponential
// backoff between them. It carries no clock so tests can drive it with a
// fake sleep.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// Delay returns the backoff after the given 1-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

// SleepFunc blocks for d or until the context is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Do invokes fn until it succeeds, attempts run out, or the context is
// cancelled. The last error is returned on exhaustion.
func (p Policy) Do(ctx context.Context, sleep SleepFunc, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt < attempts {
			if err := sleep(ctx, p.Delay(attempt)); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// SleepContext is the production SleepFunc.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
