package notifier

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket in front of a webhook. Chat providers reject
// bursts with 429, so every send waits for a token first.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows burst sends at once, then requestsPerSecond.
//
// Example:
//
//	limiter := NewRateLimiter(0.5, 3) // Discord: 30 per minute
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Allow blocks until a token is available or ctx is done.
func (r *RateLimiter) Allow(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
