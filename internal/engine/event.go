package engine

import (
	"fmt"

	"github.com/roach88/tinker/internal/state"
)

// EventKind distinguishes event streams.
type EventKind string

const (
	// EventSourceChanged carries new module text.
	EventSourceChanged EventKind = "source_changed"
	// EventCommandChanged carries new command line text.
	EventCommandChanged EventKind = "command_changed"
	// EventCommandSubmitted carries a submitted command.
	EventCommandSubmitted EventKind = "command_submitted"
	// EventHistoryNavigated carries a history direction.
	EventHistoryNavigated EventKind = "history_navigated"
	// EventCompileCompleted carries a compile result.
	EventCompileCompleted EventKind = "compile_completed"

	// eventBarrier changes nothing; Settle uses it to wait for the queue.
	eventBarrier EventKind = "barrier"
)

// Direction is a history navigation direction.
type Direction string

const (
	Previous Direction = "previous"
	Next     Direction = "next"
)

// Event is one input to the fold.
type Event struct {
	Kind      EventKind
	Text      string               // source or command text
	Direction Direction            // EventHistoryNavigated only
	Result    *state.CompileResult // EventCompileCompleted only

	// reply receives the snapshot this event produced (Dispatch only).
	reply chan Snapshot

	// pending marks a compile result the engine is waiting on.
	pending bool
}

// SourceChanged is a module text edit.
func SourceChanged(text string) Event {
	return Event{Kind: EventSourceChanged, Text: text}
}

// CommandChanged is a command line edit.
func CommandChanged(text string) Event {
	return Event{Kind: EventCommandChanged, Text: text}
}

// CommandSubmitted is the enter key on the command line.
func CommandSubmitted(text string) Event {
	return Event{Kind: EventCommandSubmitted, Text: text}
}

// HistoryPrevious is the up key on the command line.
func HistoryPrevious() Event {
	return Event{Kind: EventHistoryNavigated, Direction: Previous}
}

// HistoryNext is the down key on the command line.
func HistoryNext() Event {
	return Event{Kind: EventHistoryNavigated, Direction: Next}
}

// CompileCompleted carries the result of compiling source.
func CompileCompleted(result state.CompileResult, source string) Event {
	return Event{Kind: EventCompileCompleted, Text: source, Result: &result}
}

func (ev Event) String() string {
	switch ev.Kind {
	case EventHistoryNavigated:
		return fmt.Sprintf("%s(%s)", ev.Kind, ev.Direction)
	case EventCompileCompleted:
		if ev.Result != nil && ev.Result.Failed() {
			return fmt.Sprintf("%s(error)", ev.Kind)
		}
		return fmt.Sprintf("%s(ok)", ev.Kind)
	default:
		return fmt.Sprintf("%s(%q)", ev.Kind, ev.Text)
	}
}

// reducer maps an event to its state transition.
func (ev Event) reducer(eval state.EvalFunc) (state.Reducer, error) {
	switch ev.Kind {
	case EventSourceChanged:
		return state.UpdateSource(ev.Text), nil
	case EventCommandChanged:
		return state.UpdateCommand(ev.Text), nil
	case EventCommandSubmitted:
		return state.SubmitCommand(ev.Text, eval), nil
	case EventHistoryNavigated:
		switch ev.Direction {
		case Previous:
			return state.HistoryPrevious(), nil
		case Next:
			return state.HistoryNext(), nil
		}
		return nil, fmt.Errorf("unknown history direction %q", ev.Direction)
	case EventCompileCompleted:
		if ev.Result == nil {
			return nil, fmt.Errorf("compile event missing result")
		}
		return state.CompileCompleted(*ev.Result), nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

// Snapshot is the committed state after one event.
type Snapshot struct {
	Seq   int64
	Event Event
	State state.State

	// Added holds the log entries this event prepended, most recent first.
	Added []state.LogEntry
}
