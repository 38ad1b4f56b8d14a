package recommend

import (
	"context"
	"time"
)

// RetryPolicy bounds advisor attempts: exponential backoff between
// attempts, delays capped, the whole loop subject to the caller's
// context.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	CapDelay    time.Duration
}

// Delay returns the backoff before the given retry. attempt is zero
// based: the delay after the first failed attempt is BaseDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.CapDelay {
			return p.CapDelay
		}
	}
	if d > p.CapDelay {
		return p.CapDelay
	}
	return d
}

// Wait sleeps for the backoff of the given attempt, returning early with
// the context error if the deadline lands first.
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Delay(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
