package fetch

import (
	"errors"
	"fmt"
)

// RetryableError marks a fetch failure worth another task attempt: the
// service rate-limited us, answered 5xx, or the transport failed.
type RetryableError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *RetryableError) Error() string {
	return fetchErrorString(e.Op, e.URL, e.StatusCode, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// TerminalError marks a failure that repeating the same request cannot fix:
// a non-transient HTTP status, an unparseable body, or a service-reported
// failure.
type TerminalError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *TerminalError) Error() string {
	return fetchErrorString(e.Op, e.URL, e.StatusCode, e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }

// IsRetryable reports whether the caller may spend another attempt on this
// error.
func IsRetryable(err error) bool {
	var retryable *RetryableError
	return errors.As(err, &retryable)
}

func fetchErrorString(op, url string, statusCode int, err error) string {
	msg := fmt.Sprintf("fetch %s %s failed", op, url)
	if statusCode > 0 {
		msg = fmt.Sprintf("%s: status %d", msg, statusCode)
	}
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return msg
}
