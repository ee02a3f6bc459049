package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/Tengfei-Z/AiTrader/pkg/errors"
)

// Limiter paces exchange API calls with a token bucket.
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// NewLimiter creates a rate limiter allowing requestsPerMinute requests,
// with a burst of 10% of the per-minute budget.
func NewLimiter(name string, requestsPerMinute int) *Limiter {
	rps := float64(requestsPerMinute) / 60.0

	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		name:    name,
	}
}

// Wait blocks until the rate limiter allows the request.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(err, "rate limiter %s", l.name)
	}
	return nil
}

// Allow checks if a request is allowed without blocking.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}
