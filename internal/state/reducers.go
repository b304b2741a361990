package state

import (
	"errors"
	"fmt"
	"strings"
)

// Reducer maps the current state to the next one.
type Reducer func(State) State

// UpdateSource replaces the module text.
func UpdateSource(text string) Reducer {
	return func(s State) State {
		s.Source = text
		return s
	}
}

// CompileCompleted folds a compile result into the state.
// A failure only adds an error entry; the environment keeps its bindings.
func CompileCompleted(result CompileResult) Reducer {
	return func(s State) State {
		if result.Failed() {
			s.Log = prepend(s.Log, LogEntry{
				Kind: KindError,
				Text: "Error compiling source: " + result.Err.Error(),
			})
			return s
		}
		s.Env = s.Env.Merge(result.Values)
		s.Log = prepend(s.Log, LogEntry{
			Kind: KindInfo,
			Text: "Compiled, exported: " + strings.Join(result.Names, ", "),
		})
		return s
	}
}

// UpdateCommand replaces the command line text.
func UpdateCommand(text string) Reducer {
	return func(s State) State {
		s.Command = text
		return s
	}
}

// HistoryPrevious steps back to an older command.
// The cursor is advanced first and clamped afterwards.
func HistoryPrevious() Reducer {
	return func(s State) State {
		cursor := s.Cursor
		if cursor.Browsing() {
			cursor++
		} else {
			cursor = 0
		}
		if last := Cursor(len(s.History) - 1); cursor > last {
			cursor = last
		}
		// empty history clamps to -1, which is NoCursor
		s.Cursor = cursor
		s.Command = commandAt(s.History, cursor)
		return s
	}
}

// HistoryNext steps forward to a newer command, back to live input after
// the newest one. The cursor is decremented first and floored afterwards.
func HistoryNext() Reducer {
	return func(s State) State {
		cursor := s.Cursor
		if cursor.Browsing() {
			cursor--
		}
		if cursor < 0 {
			cursor = NoCursor
		}
		s.Cursor = cursor
		s.Command = commandAt(s.History, cursor)
		return s
	}
}

// SubmitCommand records text in history (unless blank), evaluates it and
// logs the outcome. The command line is always cleared.
func SubmitCommand(text string, eval EvalFunc) Reducer {
	return func(s State) State {
		if strings.TrimSpace(text) != "" {
			s.History = prepend(s.History, text)
		}
		s.Cursor = NoCursor

		result := safeEval(eval, text, s.Env)
		echo := LogEntry{Kind: KindPlain, Text: "> " + text}
		if result.Failed() {
			s.Log = prepend(s.Log,
				LogEntry{Kind: KindError, Text: "Error: " + result.Err.Error()},
				echo,
			)
		} else {
			s.Log = prepend(s.Log,
				LogEntry{Kind: KindResult, Text: result.Text},
				echo,
			)
		}
		s.Command = ""
		return s
	}
}

// safeEval keeps SubmitCommand total even if the evaluator misbehaves.
func safeEval(eval EvalFunc, text string, env Environment) (result EvalResult) {
	if eval == nil {
		return EvalResult{Err: errors.New("no evaluator configured")}
	}
	defer func() {
		if r := recover(); r != nil {
			result = EvalResult{Err: fmt.Errorf("evaluator panic: %v", r)}
		}
	}()
	return eval(text, env)
}

func commandAt(history []string, cursor Cursor) string {
	if !cursor.Browsing() || int(cursor) >= len(history) {
		return ""
	}
	return history[cursor]
}

// prepend returns a new slice with items (already most-recent-first) in
// front of list. list itself is not modified.
func prepend[T any](list []T, items ...T) []T {
	out := make([]T, 0, len(items)+len(list))
	out = append(out, items...)
	return append(out, list...)
}
