package request

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Weight declares a request's cost in rate-limit units. Every request costs
// at least one unit.
type Weight int

var errLimiterExceedsCapacity = errors.New("request weight exceeds limiter capacity")

// RateLimiter is a token bucket over weight units. Requests consume their
// declared weight and block until capacity is available. Waiter cancellation
// returns the reserved tokens to the bucket.
type RateLimiter struct {
	limiter  *rate.Limiter
	capacity int
	disabled atomic.Bool
}

// NewRateLimiter creates a weight bucket of the given capacity replenishing
// over interval. Non-positive arguments return an unrestricted limiter.
func NewRateLimiter(interval time.Duration, capacity int) *RateLimiter {
	if capacity <= 0 || interval <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	rps := float64(capacity) / interval.Seconds()
	return &RateLimiter{
		limiter:  rate.NewLimiter(rate.Limit(rps), capacity),
		capacity: capacity,
	}
}

// Consume blocks until w units are available, then deducts them. A context
// cancellation while waiting does not consume tokens.
func (r *RateLimiter) Consume(ctx context.Context, w Weight) error {
	if r == nil || r.disabled.Load() {
		return nil
	}
	if w < 1 {
		w = 1
	}
	if r.capacity != 0 && int(w) > r.capacity {
		return fmt.Errorf("%w: %d > %d", errLimiterExceedsCapacity, w, r.capacity)
	}
	return r.limiter.WaitN(ctx, int(w))
}

// ReportUsed reconciles local accounting against a venue-reported used-weight
// figure. When the venue has accounted more weight than the local bucket,
// the difference is deducted immediately so subsequent waits reflect it.
func (r *RateLimiter) ReportUsed(used int) {
	if r == nil || r.capacity == 0 || used <= 0 || r.disabled.Load() {
		return
	}
	localUsed := float64(r.capacity) - r.limiter.Tokens()
	delta := float64(used) - localUsed
	if delta <= 0 {
		return
	}
	if delta > float64(r.capacity) {
		delta = float64(r.capacity)
	}
	r.limiter.ReserveN(time.Now(), int(delta))
}

// Disable turns the limiter off; Consume becomes a no-op
func (r *RateLimiter) Disable() {
	r.disabled.Store(true)
}

// Enable turns a disabled limiter back on
func (r *RateLimiter) Enable() {
	r.disabled.Store(false)
}
