package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultRequestsPerMinute = 60
	defaultMaxConcurrent     = 4
)

// ClientRateLimiter bounds the RPC traffic of one WebSocket connection. It is
// independent of the per-session send pacing in the session store: it keeps
// a single noisy socket from flooding history or maps calls.
type ClientRateLimiter struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	maxActive int
	active    int
}

// NewClientRateLimiter creates a limiter with the default limits.
func NewClientRateLimiter() *ClientRateLimiter {
	return NewClientRateLimiterWithLimits(defaultRequestsPerMinute, defaultMaxConcurrent)
}

// NewClientRateLimiterWithLimits creates a limiter allowing requestsPerMinute
// with bursts of the same size and at most maxConcurrent calls in flight.
func NewClientRateLimiterWithLimits(requestsPerMinute, maxConcurrent int) *ClientRateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = defaultRequestsPerMinute
	}
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &ClientRateLimiter{
		limiter:   rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), requestsPerMinute),
		maxActive: maxConcurrent,
	}
}

// Acquire admits one request at now. On success the caller must call Release
// when the request finishes. On rejection the returned code says which limit
// was hit.
func (r *ClientRateLimiter) Acquire(now time.Time) (ok bool, code int, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active >= r.maxActive {
		return false, TooManyConcurrent, "too many concurrent requests"
	}
	if !r.limiter.AllowN(now, 1) {
		return false, RateLimitExceeded, "rate limit exceeded"
	}
	r.active++
	return true, 0, ""
}

// Release ends a request admitted by Acquire.
func (r *ClientRateLimiter) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active > 0 {
		r.active--
	}
}

// Active returns the number of requests in flight.
func (r *ClientRateLimiter) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}
