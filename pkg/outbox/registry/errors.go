package registry

import (
	"errors"
	"fmt"
)

// ErrUnroutable marks events whose type has no registered topic.
var ErrUnroutable = errors.New("no topic registered for event type")

// NonRetryableError tells the publisher to dead-letter the row instead of
// retrying it.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func reject(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}
