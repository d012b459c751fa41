// Package retry implements bounded retries with exponential backoff.
//
// It sits at the payment gateway boundary. Transient failures (timeouts,
// connection resets, processor 5xx) are worth repeating; validation and
// decline errors are wrapped Permanent so a doomed call runs exactly once.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// PermanentError marks an error that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do returns it immediately instead of retrying.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Do runs fn up to maxAttempts times. The delay doubles after each failure,
// with 25% jitter either way so concurrent retries do not sync up. Returns
// the last error, the unwrapped permanent error, or ctx.Err on cancellation.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 10 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}
		if attempt == maxAttempts {
			return err
		}

		jitter := time.Duration(rand.Int64N(int64(delay)/2+1)) - delay/4
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
}
