package resilience

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a token-bucket rate limiter for outbound gateway requests.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter creates a limiter that admits r requests per second with the
// given burst capacity. Burst values below 1 are raised to 1.
func NewLimiter(r float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{lim: rate.NewLimiter(rate.Limit(r), burst)}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.lim.Wait(ctx)
}

// Allow reports whether a request may proceed right now.
func (l *Limiter) Allow() bool {
	return l.lim.Allow()
}

// CallWait waits for a token and then executes f.
func (l *Limiter) CallWait(ctx context.Context, f func(context.Context) error) error {
	if err := l.lim.Wait(ctx); err != nil {
		return err
	}
	return f(ctx)
}
