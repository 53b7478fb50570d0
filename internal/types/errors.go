package types

import (
	"context"
	"errors"
	"fmt"
)

// RetryableError marks an error as transient: network timeouts, rate limits,
// or temporary server unavailability. Retry loops detect it with errors.As.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error: %v", e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError wraps an existing error as a RetryableError.
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err was marked transient, or is a context
// timeout (deadline exceeded counts; an explicit cancel does not).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryErr *RetryableError
	if errors.As(err, &retryErr) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}
