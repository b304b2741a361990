// Package evaluator evaluates REPL expressions against the session
// environment.
//
// Expressions are Starlark. Every call builds a new thread and a new set of
// predeclared names from the environment it is given, so bindings merged by
// a later compile are visible immediately and no state leaks between calls.
package evaluator

import (
	"fmt"
	"log/slog"

	"go.starlark.net/lib/json"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/roach88/tinker/internal/state"
)

// Undefined is the text logged for values that have no JSON form.
const Undefined = "undefined"

// ExportsName is the predeclared dict holding every binding by its raw
// name, for export names that are not valid identifiers.
const ExportsName = "exports"

// Callable is an environment value that can be invoked from an expression.
// *compiler.Function satisfies it.
type Callable interface {
	Name() string
	Call(args []any) (any, error)
}

// Evaluator evaluates expressions. The zero value is not usable; call New.
type Evaluator struct {
	maxSteps uint64
	options  *syntax.FileOptions
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithMaxSteps cancels evaluations that execute more than n Starlark
// steps. Zero means unlimited.
func WithMaxSteps(n uint64) Option {
	return func(e *Evaluator) {
		e.maxSteps = n
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		options: &syntax.FileOptions{Set: true},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Func adapts e to state.EvalFunc.
func (e *Evaluator) Func() state.EvalFunc {
	return e.Evaluate
}

// Evaluate evaluates expr against env. It never panics; every failure is
// returned in the result.
func (e *Evaluator) Evaluate(expr string, env state.Environment) (result state.EvalResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("evaluation panicked", "expr", expr, "panic", r)
			result = state.EvalResult{Err: fmt.Errorf("evaluation panicked: %v", r)}
		}
	}()

	thread := &starlark.Thread{
		Name: "repl",
		Print: func(_ *starlark.Thread, msg string) {
			slog.Info("print", "msg", msg)
		},
	}
	if e.maxSteps > 0 {
		thread.SetMaxExecutionSteps(e.maxSteps)
	}

	value, err := starlark.EvalOptions(e.options, thread, "<repl>", expr, predeclared(env))
	if err != nil {
		return state.EvalResult{Err: err}
	}
	return state.EvalResult{
		Value: value,
		Text:  Serialize(thread, value),
	}
}

// predeclared builds the global names for one evaluation.
func predeclared(env state.Environment) starlark.StringDict {
	globals := make(starlark.StringDict, len(env)+1)
	all := starlark.NewDict(len(env))
	for _, name := range env.Names() {
		v := toStarlarkValue(name, env[name])
		globals[name] = v
		_ = all.SetKey(starlark.String(name), v)
	}
	if _, shadowed := globals[ExportsName]; !shadowed {
		globals[ExportsName] = all
	}
	return globals
}

// Serialize renders v as JSON text, or Undefined if it has no JSON form.
func Serialize(thread *starlark.Thread, v starlark.Value) string {
	if thread == nil {
		thread = &starlark.Thread{Name: "serialize"}
	}
	out, err := starlark.Call(thread, json.Module.Members["encode"], starlark.Tuple{v}, nil)
	if err != nil {
		return Undefined
	}
	s, ok := starlark.AsString(out)
	if !ok {
		return Undefined
	}
	return s
}
