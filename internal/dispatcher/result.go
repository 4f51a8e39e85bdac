package dispatcher

import (
	"errors"
	"fmt"
	"time"
)

// Outcome is the terminal state of one dispatch.
type Outcome int

const (
	OutcomeDeduplicated Outcome = iota + 1
	OutcomeNoMatch
	OutcomeSuccess
	OutcomeHandlerError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDeduplicated:
		return "deduplicated"
	case OutcomeNoMatch:
		return "no_match"
	case OutcomeSuccess:
		return "success"
	case OutcomeHandlerError:
		return "handler_error"
	default:
		return "unknown"
	}
}

// Dispatched reports whether a handler was invoked.
func (o Outcome) Dispatched() bool {
	return o == OutcomeSuccess || o == OutcomeHandlerError
}

var (
	// ErrHandlerTimeout is the cause of a HandlerError when the handler
	// overran its time budget.
	ErrHandlerTimeout = errors.New("handler timed out")
	// ErrHandlerPanic is the cause of a HandlerError when the handler panicked.
	ErrHandlerPanic = errors.New("handler panicked")
	// ErrForbidden is the cause of a HandlerError when a non-admin hits an admin route.
	ErrForbidden = errors.New("sender is not allowed to use this route")
)

// HandlerError wraps a handler failure with the route it happened on.
type HandlerError struct {
	Route string
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s: %v", e.Route, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Result describes what happened to one update.
type Result struct {
	DispatchID string
	UpdateKey  string
	Outcome    Outcome
	Route      string
	Err        *HandlerError // set only for OutcomeHandlerError
	Duration   time.Duration
}
