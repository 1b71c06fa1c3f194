package infra

import (
	"log/slog"
	"sync"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // normal operation
	BreakerOpen                         // failing, reject requests
	BreakerHalfOpen                     // probing recovery
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker isolates a failing venue so the engine stops hammering it
// while it is down. Thread-safe; the reconciler's dispatch goroutines share
// one breaker per adapter.
type CircuitBreaker struct {
	name  string
	clock Clock

	mu           sync.Mutex
	state        BreakerState
	failures     int
	probeSuccess int
	lastFailure  time.Time

	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
}

// NewCircuitBreaker creates a breaker with the given thresholds. Zero
// values fall back to conservative defaults.
func NewCircuitBreaker(name string, clock Clock, failureThreshold, successThreshold int, openTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 2
	}
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		name:             name,
		clock:            clock,
		state:            BreakerClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
	}
}

// Allow reports whether a request may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if cb.clock.Now().Sub(cb.lastFailure) > cb.openTimeout {
			cb.state = BreakerHalfOpen
			cb.probeSuccess = 0
			slog.Info("circuit breaker half-open", slog.String("name", cb.name))
			return true
		}
		return false
	case BreakerHalfOpen:
		return true
	default:
		return false
	}
}

// RecordSuccess notes a completed request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.failures = 0
	case BreakerHalfOpen:
		cb.probeSuccess++
		if cb.probeSuccess >= cb.successThreshold {
			cb.state = BreakerClosed
			cb.failures = 0
			slog.Info("circuit breaker closed", slog.String("name", cb.name))
		}
	}
}

// RecordFailure notes a failed request.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = cb.clock.Now()

	switch cb.state {
	case BreakerClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.state = BreakerOpen
			slog.Warn("circuit breaker open",
				slog.String("name", cb.name),
				slog.Int("failures", cb.failures))
		}
	case BreakerHalfOpen:
		cb.state = BreakerOpen
		slog.Warn("circuit breaker reopened", slog.String("name", cb.name))
	}
}

// State returns the current state for monitoring.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
