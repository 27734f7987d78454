package engine

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a per-user token bucket ahead of execution dispatch.
// Clarification turns are not limited; only ready payloads pass through it.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRateLimiter creates a limiter allowing perMinute executions per user
// with the given burst.
func NewRateLimiter(perMinute float64, burst int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	if burst <= 0 {
		burst = 5
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perMinute / 60.0),
		burst:    burst,
	}
}

// Allow reports whether the user may execute now.
func (r *RateLimiter) Allow(userID string) bool {
	r.mu.Lock()
	limiter, ok := r.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(r.limit, r.burst)
		r.limiters[userID] = limiter
	}
	r.mu.Unlock()

	return limiter.Allow()
}
