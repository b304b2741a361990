package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/tinker/internal/state"
	"github.com/roach88/tinker/internal/store"
)

// SyncCompiler compiles synchronously. Implemented by compiler.Adapter.
type SyncCompiler interface {
	Compile(ctx context.Context, source string) state.CompileResult
}

// ReplayMismatch is one journaled event whose re-applied log entries differ
// from the recorded ones.
type ReplayMismatch struct {
	Seq      int64
	Kind     string
	Recorded []state.LogEntry
	Replayed []state.LogEntry
}

// ReplayResult summarizes a replay.
type ReplayResult struct {
	Events     int
	Mismatches []ReplayMismatch
	Final      state.State
}

// OK reports whether every event reproduced its recorded entries.
func (r ReplayResult) OK() bool {
	return len(r.Mismatches) == 0
}

// Replay re-folds a journaled session in seq order.
//
// Replay is synchronous and deterministic: compile results are not taken
// from the journal but recomputed by compiling the journaled source at the
// point where the original result was applied, so exports are live again for
// later submitted commands. Each event's new log entries are compared with
// the recorded ones.
func Replay(ctx context.Context, sess store.Session, records []store.EventRecord, c SyncCompiler, eval state.EvalFunc) (ReplayResult, error) {
	result := ReplayResult{Final: state.Initial(sess.InitialSource)}

	var lastSeq int64
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if rec.Seq <= lastSeq {
			return result, fmt.Errorf("replay: seq %d out of order after %d", rec.Seq, lastSeq)
		}
		lastSeq = rec.Seq

		ev, err := EventFromRecord(rec)
		if err != nil {
			return result, fmt.Errorf("replay seq=%d: %w", rec.Seq, err)
		}
		if ev.Kind == EventCompileCompleted {
			var compiled state.CompileResult
			if c == nil {
				compiled = state.CompileFailure(fmt.Errorf("no compiler configured"))
			} else {
				compiled = c.Compile(ctx, ev.Text)
			}
			ev.Result = &compiled
		}

		reducer, err := ev.reducer(eval)
		if err != nil {
			return result, fmt.Errorf("replay seq=%d: %w", rec.Seq, err)
		}
		next, err := applyReducer(reducer, result.Final)
		if err != nil {
			return result, fmt.Errorf("replay seq=%d: reducer panicked: %w", rec.Seq, err)
		}

		replayed := added(result.Final, next)
		if !slices.Equal(replayed, rec.Entries) {
			result.Mismatches = append(result.Mismatches, ReplayMismatch{
				Seq:      rec.Seq,
				Kind:     rec.Kind,
				Recorded: rec.Entries,
				Replayed: replayed,
			})
		}

		result.Final = next
		result.Events++
	}

	return result, nil
}

// EventFromRecord rebuilds the input event of a journal row. Compile results
// carry only their outcome (names or error), not live export values.
func EventFromRecord(rec store.EventRecord) (Event, error) {
	switch EventKind(rec.Kind) {
	case EventSourceChanged:
		return SourceChanged(rec.String("text")), nil
	case EventCommandChanged:
		return CommandChanged(rec.String("text")), nil
	case EventCommandSubmitted:
		return CommandSubmitted(rec.String("text")), nil
	case EventHistoryNavigated:
		switch Direction(rec.String("direction")) {
		case Previous:
			return HistoryPrevious(), nil
		case Next:
			return HistoryNext(), nil
		}
		return Event{}, fmt.Errorf("unknown history direction %q", rec.String("direction"))
	case EventCompileCompleted:
		var result state.CompileResult
		if msg, ok := rec.Payload["error"].(string); ok {
			result = state.CompileFailure(recordedError(msg))
		} else {
			result = state.CompileResult{Names: rec.Strings("names")}
		}
		return CompileCompleted(result, rec.String("source")), nil
	default:
		return Event{}, fmt.Errorf("unknown event kind %q", rec.Kind)
	}
}

// recordedError is a compile error read back from the journal.
type recordedError string

func (e recordedError) Error() string { return string(e) }
