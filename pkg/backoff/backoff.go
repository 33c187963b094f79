// Package backoff wraps an operation against an unreliable remote endpoint
// with bounded retries, exponential delays and a per-attempt timeout.
package backoff

import (
	"context"
	"errors"
	"time"
)

// A Policy determines how often, and with what delays, Execute retries a
// failing operation. The zero value retries once with no delay.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int
	// BaseDelay is the delay after the first failed attempt. Attempt n waits
	// BaseDelay * 2^(n-1), capped at MaxDelay.
	BaseDelay time.Duration
	// MaxDelay caps the exponential delay. Zero means no cap.
	MaxDelay time.Duration
	// Timeout bounds each individual attempt. Zero means no per-attempt timeout.
	Timeout time.Duration
}

// Execute runs op, retrying on failure as prescribed by the Policy. Errors
// wrapped with Permanent stop the retry sequence immediately. Errors wrapped
// with RetryAfter override the exponential delay for the next attempt.
// Canceling ctx aborts the sequence, at the latest when the current attempt's
// timeout expires. Execute never panics: it returns the last error when all
// attempts are exhausted.
func (p Policy) Execute(ctx context.Context, op func(context.Context) error) error {
	maxAttempts := max(p.MaxAttempts, 1)

	var err error
	for attempt := 1; ; attempt++ {
		if err = p.attempt(ctx, op); err == nil {
			return nil
		}

		var permanent *permanentError
		if errors.As(err, &permanent) {
			return permanent.err
		}
		if attempt >= maxAttempts {
			return unwrapHint(err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delay(attempt, err)):
		}
	}
}

func (p Policy) attempt(ctx context.Context, op func(context.Context) error) error {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	return op(ctx)
}

func (p Policy) delay(attempt int, err error) time.Duration {
	var hint *retryAfterError
	if errors.As(err, &hint) && hint.delay > 0 {
		return hint.delay
	}
	delay := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Permanent marks err as terminal: Execute fails immediately without further
// attempts. Used for failures a retry can't fix (authentication, bad request).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetryAfter marks err as retryable with an explicit delay hint, overriding
// the exponential schedule. Used for rate-limit responses.
func RetryAfter(err error, delay time.Duration) error {
	if err == nil {
		return nil
	}
	return &retryAfterError{err: err, delay: delay}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

type retryAfterError struct {
	err   error
	delay time.Duration
}

func (e *retryAfterError) Error() string { return e.err.Error() }
func (e *retryAfterError) Unwrap() error { return e.err }

func unwrapHint(err error) error {
	var hint *retryAfterError
	if errors.As(err, &hint) {
		return hint.err
	}
	return err
}
