package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is an error raised by the engine itself, as opposed to
// compile or evaluation failures (those become log entries).
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Seq is the logical time of the event involved, if any.
	Seq int64

	// Event is the kind of event involved, if any.
	Event EventKind

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeQueueClosed means the engine no longer accepts events.
	ErrCodeQueueClosed RuntimeErrorCode = "QUEUE_CLOSED"

	// ErrCodeJournalFailed means a snapshot could not be journaled.
	ErrCodeJournalFailed RuntimeErrorCode = "JOURNAL_FAILED"

	// ErrCodeReducerPanic means a reducer panicked; the state was kept.
	ErrCodeReducerPanic RuntimeErrorCode = "REDUCER_PANIC"

	// ErrCodeUnknownEvent means an event of unknown kind was dequeued.
	ErrCodeUnknownEvent RuntimeErrorCode = "UNKNOWN_EVENT"
)

func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Event != "" {
		msg = fmt.Sprintf("%s (event=%s, seq=%d)", msg, e.Event, e.Seq)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsQueueClosed reports whether err means the engine has stopped.
func IsQueueClosed(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeQueueClosed
	}
	return false
}

// ErrQueueClosed is returned by Dispatch after Stop or once Run has exited.
var ErrQueueClosed = &RuntimeError{
	Code:    ErrCodeQueueClosed,
	Message: "engine is not accepting events",
}
