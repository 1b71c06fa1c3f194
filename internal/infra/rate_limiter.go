package infra

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket used in front of venue endpoint classes.
// Thread-safe.
type RateLimiter struct {
	clock Clock

	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewRateLimiter creates a limiter with the given burst size and refill
// rate in requests per second.
func NewRateLimiter(clock Clock, burst int, perSecond float64) *RateLimiter {
	return &RateLimiter{
		clock:      clock,
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: perSecond,
		lastRefill: clock.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		if r.TryAcquire() {
			return nil
		}
		wait := time.Duration(float64(time.Second) / r.refillRate)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.clock.After(wait):
		}
	}
}

// TryAcquire takes a token without blocking.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// refill adds tokens for elapsed time. Caller holds the mutex.
func (r *RateLimiter) refill() {
	now := r.clock.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.tokens += elapsed * r.refillRate
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}
	r.lastRefill = now
}
