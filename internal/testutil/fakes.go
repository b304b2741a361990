package testutil

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"github.com/roach88/tinker/internal/state"
)

// ScriptedCompiler resolves each source text to a fixed result.
//
// Unknown sources fail with "unexpected source". Results are delivered
// immediately. Implements engine.Compiler and engine.SyncCompiler.
type ScriptedCompiler struct {
	mu      sync.Mutex
	results map[string]state.CompileResult
	calls   []string
}

// NewScriptedCompiler creates a compiler with no scripted sources.
func NewScriptedCompiler() *ScriptedCompiler {
	return &ScriptedCompiler{results: make(map[string]state.CompileResult)}
}

// Exports scripts source to succeed with the given exports, in order.
// Values are the export names themselves unless set with Values.
func (c *ScriptedCompiler) Exports(source string, names ...string) *ScriptedCompiler {
	values := make(map[string]any, len(names))
	for _, n := range names {
		values[n] = n
	}
	return c.Result(source, state.CompileResult{Names: names, Values: values})
}

// Fails scripts source to fail with msg.
func (c *ScriptedCompiler) Fails(source, msg string) *ScriptedCompiler {
	return c.Result(source, state.CompileFailure(errors.New(msg)))
}

// Result scripts an arbitrary result for source.
func (c *ScriptedCompiler) Result(source string, r state.CompileResult) *ScriptedCompiler {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[source] = r
	return c
}

// Compile returns the scripted result for source.
func (c *ScriptedCompiler) Compile(_ context.Context, source string) state.CompileResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, source)
	if r, ok := c.results[source]; ok {
		return r
	}
	return state.CompileFailure(fmt.Errorf("unexpected source %q", source))
}

// CompileAsync resolves immediately with Compile's result.
func (c *ScriptedCompiler) CompileAsync(ctx context.Context, source string) <-chan state.CompileResult {
	out := make(chan state.CompileResult, 1)
	out <- c.Compile(ctx, source)
	return out
}

// Calls returns the sources compiled so far, in order.
func (c *ScriptedCompiler) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// GatedCompiler holds every compile until the test releases it, so tests
// control the order in which compile results arrive.
type GatedCompiler struct {
	script *ScriptedCompiler

	mu      sync.Mutex
	pending []gated
	started chan string
}

type gated struct {
	source string
	out    chan state.CompileResult
}

// NewGatedCompiler wraps script. Released compiles resolve to script's
// results.
func NewGatedCompiler(script *ScriptedCompiler) *GatedCompiler {
	return &GatedCompiler{script: script, started: make(chan string, 64)}
}

// CompileAsync parks the compile until Release.
func (c *GatedCompiler) CompileAsync(_ context.Context, source string) <-chan state.CompileResult {
	out := make(chan state.CompileResult, 1)
	c.mu.Lock()
	c.pending = append(c.pending, gated{source: source, out: out})
	c.mu.Unlock()
	c.started <- source
	return out
}

// Started delivers the source of each compile as it begins.
func (c *GatedCompiler) Started() <-chan string {
	return c.started
}

// Pending returns the sources of unreleased compiles, oldest first.
func (c *GatedCompiler) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.pending))
	for i, g := range c.pending {
		out[i] = g.source
	}
	return out
}

// Release resolves the oldest pending compile of source. It reports false if
// no such compile is pending.
func (c *GatedCompiler) Release(source string) bool {
	c.mu.Lock()
	idx := -1
	for i, g := range c.pending {
		if g.source == source {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return false
	}
	g := c.pending[idx]
	c.pending = append(c.pending[:idx], c.pending[idx+1:]...)
	c.mu.Unlock()

	g.out <- c.script.Compile(context.Background(), g.source)
	return true
}

var sumExpr = regexp.MustCompile(`^\s*(-?\d+)\s*\+\s*(-?\d+)\s*$`)
var callExpr = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\(\)\s*$`)
var nameExpr = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*$`)

// SumEval is a tiny evaluator for engine tests. It understands integer
// sums ("1+1"), bare names bound in the environment, and zero-argument
// calls of environment values of type func() int. Anything else fails.
func SumEval(expr string, env state.Environment) state.EvalResult {
	if m := sumExpr.FindStringSubmatch(expr); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		return state.EvalResult{Value: a + b, Text: strconv.Itoa(a + b)}
	}
	if m := callExpr.FindStringSubmatch(expr); m != nil {
		v, ok := env[m[1]]
		if !ok {
			return state.EvalResult{Err: fmt.Errorf("%s is not defined", m[1])}
		}
		fn, ok := v.(func() int)
		if !ok {
			return state.EvalResult{Err: fmt.Errorf("%s is not a function", m[1])}
		}
		n := fn()
		return state.EvalResult{Value: n, Text: strconv.Itoa(n)}
	}
	if m := nameExpr.FindStringSubmatch(expr); m != nil {
		v, ok := env[m[1]]
		if !ok {
			return state.EvalResult{Err: fmt.Errorf("%s is not defined", m[1])}
		}
		return state.EvalResult{Value: v, Text: fmt.Sprintf("%q", fmt.Sprint(v))}
	}
	return state.EvalResult{Err: fmt.Errorf("cannot evaluate %q", expr)}
}
