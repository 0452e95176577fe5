package middleware

import (
	"net/http"
	"sync/atomic"

	"github.com/harliandi/go-kycimage/pkg/metrics"
	"golang.org/x/sync/semaphore"
)

// ConcurrencyLimiter limits the number of concurrent requests
type ConcurrencyLimiter struct {
	sem    *semaphore.Weighted
	active atomic.Int64
	max    int
}

// NewConcurrencyLimiter creates a new concurrency limiter
func NewConcurrencyLimiter(max int) *ConcurrencyLimiter {
	return &ConcurrencyLimiter{
		sem: semaphore.NewWeighted(int64(max)),
		max: max,
	}
}

// Acquire tries to acquire a slot. Returns false if limit is reached
func (cl *ConcurrencyLimiter) Acquire() bool {
	if !cl.sem.TryAcquire(1) {
		return false
	}
	metrics.UpdateConcurrency(int(cl.active.Add(1)))
	return true
}

// Release releases a slot
func (cl *ConcurrencyLimiter) Release() {
	metrics.UpdateConcurrency(int(cl.active.Add(-1)))
	cl.sem.Release(1)
}

// Active returns the number of held slots
func (cl *ConcurrencyLimiter) Active() int {
	return int(cl.active.Load())
}

// ConcurrencyLimit returns middleware that enforces concurrency limits
func ConcurrencyLimit(max int) func(http.Handler) http.Handler {
	cl := NewConcurrencyLimiter(max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cl.Acquire() {
				metrics.RecordConcurrencyLimitExceeded()
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"error":"Service busy, please try again"}`))
				return
			}

			defer cl.Release()
			next.ServeHTTP(w, r)
		})
	}
}
