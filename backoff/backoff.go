// Package backoff provides pluggable retry delay strategies for storage
// connection attempts and worker polling after errors.
// All strategies are safe for concurrent use (they are stateless).
package backoff

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter (full jitter)
// ──────────────────────────────────────────────────

// ExponentialWithJitter applies full jitter to an exponential base, so
// workers that lost the storage together do not hammer it together.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(attempt-1), Max)].
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(max(attempt, 1)-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the backoff workers use after a failed
// reservation: ExponentialWithJitter with 1s initial and 1m max.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(1*time.Second, 1*time.Minute)
}

// ──────────────────────────────────────────────────
// Retry
// ──────────────────────────────────────────────────

// Retry calls fn once and then up to retries more times while it keeps
// failing, sleeping s.Delay(n) before retry n. It stops early when ctx
// ends. The last error from fn is returned wrapped.
func Retry(ctx context.Context, retries int, s Strategy, fn func(context.Context) error) error {
	return RetryIf(ctx, retries, s, nil, fn)
}

// RetryIf is Retry restricted to errors for which retryable reports true.
// Other errors are returned unwrapped straight away. A nil retryable
// retries every error.
func RetryIf(ctx context.Context, retries int, s Strategy, retryable func(error) bool, fn func(context.Context) error) error {
	err := fn(ctx)
	for attempt := 1; err != nil && attempt <= retries; attempt++ {
		if retryable != nil && !retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt, err)
		case <-time.After(s.Delay(attempt)):
		}
		err = fn(ctx)
	}
	if err != nil && retries > 0 && (retryable == nil || retryable(err)) {
		return fmt.Errorf("giving up after %d retries: %w", retries, err)
	}
	return err
}
