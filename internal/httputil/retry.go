// Package httputil holds the retry policy shared by the template fetcher and
// the submission channel, and the JSON request and response helpers of the
// HTTP API.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// RetryableError marks a transient failure (network error, 5xx response)
// that Retry should attempt again
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retry runs fn up to attempts times, doubling delay after each retryable
// failure. Non-retryable errors return immediately; a cancelled ctx returns
// ctx.Err().
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	attempts = max(attempts, 1)
	var lastErr error

	for i := range attempts {
		if err := fn(); err == nil {
			return nil
		} else if lastErr = err; !IsRetryable(err) {
			return err
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}
	return lastErr
}

// IsRetryable reports whether err is wrapped in a RetryableError
func IsRetryable(err error) bool {
	return errors.As(err, new(*RetryableError))
}

// CheckStatus classifies an HTTP status: 2xx is success, 5xx and 429 are
// retryable, everything else is a permanent failure
func CheckStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code >= 500 || code == http.StatusTooManyRequests:
		return &RetryableError{Err: fmt.Errorf("server returned status %d", code)}
	default:
		return fmt.Errorf("server returned status %d", code)
	}
}
