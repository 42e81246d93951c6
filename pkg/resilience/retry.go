// Package resilience provides retry, rate limiting, and circuit breaker
// primitives for the gateway call sites.
package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy is an explicit, testable retry schedule: a fixed attempt cap
// with exponential backoff and a capped wait ceiling.
type RetryPolicy struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
}

// DefaultRetry is the policy used for gateway calls.
var DefaultRetry = RetryPolicy{
	MaxAttempts: 3,
	InitialWait: time.Second,
	MaxWait:     30 * time.Second,
	Jitter:      true,
}

// Do runs op until it succeeds, the attempt cap is reached, or ctx is done.
// The last error is returned after exhausting attempts; it is never swallowed.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	wait := p.InitialWait
	var err error

	for attempt := 0; attempt < attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}

		sleep := wait
		if p.Jitter {
			sleep = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if p.MaxWait > 0 && sleep > p.MaxWait {
			sleep = p.MaxWait
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		wait *= 2
		if p.MaxWait > 0 && wait > p.MaxWait {
			wait = p.MaxWait
		}
	}
	return err
}
