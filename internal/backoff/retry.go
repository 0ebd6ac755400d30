package backoff

import (
	"context"
	"errors"
	"time"
)

// ErrMaxAttemptsExhausted reports that every allowed attempt failed.
// The causing error rides in RetryResult.LastError.
var ErrMaxAttemptsExhausted = errors.New("max retry attempts exhausted")

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so RetryWithBackoff stops immediately instead of
// burning the remaining attempts. Auth and validation failures from an
// API do not get better with repetition.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// RetryResult carries what happened across the attempts, whether the
// loop succeeded or not.
type RetryResult[T any] struct {
	// Value is the successful result, zero on failure.
	Value T

	// Attempts is how many times fn ran, 1-indexed.
	Attempts int

	// LastError is the most recent failure, kept even when a later
	// attempt succeeds so callers can report what was retried past.
	LastError error
}

// RetryWithBackoff runs fn up to maxAttempts times, sleeping per the
// policy between failures. Context expiry is honored both before an
// attempt and during the sleep; errors wrapped with Permanent end the
// loop with the unwrapped error. fn receives the 1-indexed attempt
// number.
func RetryWithBackoff[T any](
	ctx context.Context,
	policy BackoffPolicy,
	maxAttempts int,
	fn func(attempt int) (T, error),
) (RetryResult[T], error) {
	var result RetryResult[T]

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		if err := ctx.Err(); err != nil {
			return result, err
		}

		value, err := fn(attempt)
		if err == nil {
			result.Value = value
			return result, nil
		}

		var pe *permanentError
		if errors.As(err, &pe) {
			result.LastError = pe.err
			return result, pe.err
		}
		result.LastError = err

		if attempt < maxAttempts {
			if err := sleepFor(ctx, ComputeBackoff(policy, attempt)); err != nil {
				return result, err
			}
		}
	}

	return result, ErrMaxAttemptsExhausted
}

// sleepFor waits out the delay unless the context expires first.
func sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
