package usecase

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy is an explicit backoff description passed to Do, instead of
// retry behavior hidden inside a queue framework.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// Delay returns the pause before the given retry (attempt is 1-based, so
// attempt 1 waits BaseDelay). Doubling, capped at MaxDelay; jitter picks a
// uniform point in the window to avoid synchronized retry storms.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	if d <= 0 {
		d = time.Second
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter {
		d = time.Duration(rand.Int63n(int64(d)) + int64(d)/2)
	}
	return d
}

// Do runs fn up to MaxAttempts times, sleeping Delay between attempts.
// Context cancellation stops the loop early.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay(attempt)):
		}
	}
	return err
}
