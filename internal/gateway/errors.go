package gateway

import (
	"errors"
	"time"
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type throttledError struct {
	err   error
	delay time.Duration
}

func (e *throttledError) Error() string { return e.err.Error() }
func (e *throttledError) Unwrap() error { return e.err }

// Throttled marks err as a rate-limit response asking to wait at least delay.
func Throttled(err error, delay time.Duration) error {
	if err == nil {
		return nil
	}
	return &throttledError{err: err, delay: delay}
}

func retryAfterOf(err error) time.Duration {
	var t *throttledError
	if errors.As(err, &t) {
		return t.delay
	}
	return 0
}
