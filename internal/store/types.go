package store

import (
	"errors"

	"github.com/roach88/tinker/internal/state"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

// Session is one engine lifetime.
type Session struct {
	ID            string
	StartedAtSeq  int64
	InitialSource string
}

// EventRecord is one applied event.
type EventRecord struct {
	SessionID string
	Seq       int64
	Kind      string

	// Payload holds the event's inputs. Values are strings, bools, integers,
	// or lists and maps of those.
	Payload map[string]any

	// Entries are the log entries the event prepended, most recent first.
	Entries []state.LogEntry
}

// String returns the payload field key as a string, or "" if absent.
func (r EventRecord) String(key string) string {
	s, _ := r.Payload[key].(string)
	return s
}

// Strings returns the payload field key as a string list.
func (r EventRecord) Strings(key string) []string {
	switch v := r.Payload[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			if s, ok := elem.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
