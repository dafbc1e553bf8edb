package gmail

import (
	"context"

	"golang.org/x/time/rate"
)

// Default rate limit for Gmail API requests. Conservative for quota
// units; well below Google's actual per-user limits.
const (
	defaultRequestsPerSecond = 2.0
	defaultBurstSize         = 5
)

// RateLimiter provides token-bucket rate limiting for Gmail API requests.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a rate limiter with the default Gmail limits.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultBurstSize),
	}
}

// NewRateLimiterWithConfig creates a rate limiter with custom limits.
func NewRateLimiterWithConfig(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Wait blocks until a request can be made without exceeding the rate limit.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow checks if a request can be made immediately without blocking.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}
