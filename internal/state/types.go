package state

import (
	"fmt"
	"maps"
	"slices"
)

// Kind tags a log entry for rendering.
type Kind string

const (
	// KindPlain is an echoed command line.
	KindPlain Kind = "plain"
	// KindError is a compile or evaluation failure.
	KindError Kind = "error"
	// KindResult is a serialized evaluation result.
	KindResult Kind = "result"
	// KindInfo is a compile notice.
	KindInfo Kind = "info"
)

// LogEntry is one line of the session log. Immutable once created.
type LogEntry struct {
	Kind Kind   `json:"kind" yaml:"kind"`
	Text string `json:"text" yaml:"text"`
}

func (e LogEntry) String() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Text)
}

// Environment maps exported names to values visible to evaluation.
// Treat it as immutable: Merge returns a copy.
type Environment map[string]any

// Merge returns a new environment holding env's bindings overlaid with
// values. Same-named bindings from values win.
func (env Environment) Merge(values map[string]any) Environment {
	merged := make(Environment, len(env)+len(values))
	maps.Copy(merged, env)
	maps.Copy(merged, values)
	return merged
}

// Names returns the bound names in sorted order.
func (env Environment) Names() []string {
	return slices.Sorted(maps.Keys(env))
}

// Cursor indexes into History while browsing.
type Cursor int

// NoCursor means the user is not browsing history and sees live input.
const NoCursor Cursor = -1

// Browsing reports whether the cursor points into history.
func (c Cursor) Browsing() bool {
	return c >= 0
}

func (c Cursor) String() string {
	if !c.Browsing() {
		return "none"
	}
	return fmt.Sprintf("%d", int(c))
}

// State is the complete session state.
//
// INVARIANTS:
//   - Cursor is NoCursor or a valid index into History
//   - History never holds a blank command
//   - Env only changes on a successful compile
type State struct {
	Source  string
	Log     []LogEntry  // most recent first
	Env     Environment
	Command string
	History []string // most recent first
	Cursor  Cursor
}

// Initial returns the startup state for the given module text.
func Initial(source string) State {
	return State{
		Source: source,
		Env:    Environment{},
		Cursor: NoCursor,
	}
}

// CompileResult is the outcome of compiling and instantiating module text.
// It is a failure when Err is set; Names and Values are then empty.
type CompileResult struct {
	Names  []string       // exports in declaration order
	Values map[string]any // export name -> value or callable
	Err    error
}

// Failed reports whether the compile failed.
func (r CompileResult) Failed() bool {
	return r.Err != nil
}

// CompileFailure builds a failed CompileResult.
func CompileFailure(err error) CompileResult {
	return CompileResult{Err: err}
}

// EvalResult is the outcome of evaluating one expression.
type EvalResult struct {
	Value any    // raw value, for callers that need it
	Text  string // textual serialization of Value
	Err   error
}

// Failed reports whether evaluation failed.
func (r EvalResult) Failed() bool {
	return r.Err != nil
}

// EvalFunc evaluates an expression against an environment.
type EvalFunc func(expr string, env Environment) EvalResult
