package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// StatusError carries a venue HTTP status so the retry layer can decide
// whether the failure is transient.
type StatusError struct {
	Code int
	Msg  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("venue status %d: %s", e.Code, e.Msg)
}

// RetryConfig bounds the resilient request wrapper.
type RetryConfig struct {
	MaxRetries      int           // retries after the first attempt
	BaseDelay       time.Duration // backoff base for attempt 0
	MaxDelay        time.Duration // cap on any single backoff delay
	Timeout         time.Duration // hard per-attempt timeout
	RetryableStatus map[int]bool  // HTTP statuses worth retrying
}

// DefaultRetryConfig returns the limits used for venue calls unless
// overridden by configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Timeout:    5 * time.Second,
		RetryableStatus: map[int]bool{
			418: true, 429: true, 500: true, 502: true, 503: true, 504: true,
		},
	}
}

// Retryable reports whether err is worth another attempt under cfg. A
// StatusError outside the retryable set propagates immediately; any
// transport-level failure is considered transient.
func (cfg RetryConfig) Retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return cfg.RetryableStatus[se.Code]
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// BackoffDelay returns the delay before retry attempt n:
// min(MaxDelay, BaseDelay*2^n + jitter).
func (cfg RetryConfig) BackoffDelay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > 30 {
		n = 30
	}
	d := cfg.BaseDelay << uint(n)
	if d > cfg.MaxDelay || d <= 0 {
		d = cfg.MaxDelay
	}
	jitter := time.Duration(0)
	if cfg.BaseDelay > 0 {
		jitter = time.Duration(rand.Int63n(int64(cfg.BaseDelay)))
	}
	if d+jitter > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return d + jitter
}

// Call wraps one outbound venue call with a hard per-attempt timeout and
// bounded exponential backoff. It performs at most MaxRetries+1 attempts
// and returns the first non-retryable result, or the last error once
// retries are exhausted.
func Call[T any](ctx context.Context, clock Clock, cfg RetryConfig, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := cfg.BackoffDelay(attempt - 1)
			slog.Debug("retrying venue call",
				slog.String("call", name),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-clock.After(delay):
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if cfg.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		}
		out, err := fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !cfg.Retryable(err) {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("%s: retries exhausted: %w", name, lastErr)
}

// CallErr is Call for operations with no result value.
func CallErr(ctx context.Context, clock Clock, cfg RetryConfig, name string, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, clock, cfg, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
