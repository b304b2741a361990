package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/tinker/internal/compiler"
	"github.com/roach88/tinker/internal/engine"
	"github.com/roach88/tinker/internal/evaluator"
	"github.com/roach88/tinker/internal/state"
	"github.com/roach88/tinker/internal/store"
	"github.com/roach88/tinker/internal/testutil"
)

// DefaultTimeout bounds a whole scenario run.
const DefaultTimeout = 30 * time.Second

// Harness executes one scenario against a live engine.
type Harness struct {
	engine *engine.Engine
	result *Result
}

// Option configures a run.
type Option func(*runConfig)

type runConfig struct {
	timeout  time.Duration
	compiler engine.Compiler
	eval     state.EvalFunc
}

// WithTimeout replaces DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		c.timeout = d
	}
}

// WithCompiler overrides the compiler chosen from the scenario.
func WithCompiler(c engine.Compiler) Option {
	return func(c2 *runConfig) {
		c2.compiler = c
	}
}

// WithEval overrides the Starlark evaluator.
func WithEval(eval state.EvalFunc) Option {
	return func(c *runConfig) {
		c.eval = eval
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh engine with an in-memory journal.
// Deterministic helpers ensure reproducible traces.
//
// Execution flow:
//  1. Create the engine and wait for the initial compile
//  2. Apply steps in order, checking step expectations
//  3. Settle and check the final expectation
//  4. Read the journal back as the trace
//
// An error is returned only when the run itself cannot proceed. Unmet
// expectations are reported in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	st, err := store.Open(store.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	c := cfg.compiler
	if c == nil {
		c = scenarioCompiler(scenario)
	}
	eval := cfg.eval
	if eval == nil {
		eval = evaluator.New(evaluator.WithMaxSteps(1_000_000)).Func()
	}

	source := compiler.DefaultModule
	if scenario.Source != nil {
		source = *scenario.Source
	}

	eng := engine.New(c, eval, source,
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithSessionGenerator(testutil.NewFixedSessionGenerator(scenario.Session)),
		engine.WithJournal(st),
	)

	runCtx, stopRun := context.WithCancel(ctx)
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := eng.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Debug("harness engine stopped", "error", err)
		}
	}()
	defer func() {
		stopRun()
		<-runDone
	}()

	h := &Harness{engine: eng, result: NewResult()}
	h.result.Session = eng.SessionID()

	if _, err := eng.Settle(ctx); err != nil {
		return nil, fmt.Errorf("initial compile: %w", err)
	}

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step); err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, step.Kinds()[0], err)
		}
	}

	final, err := eng.Settle(ctx)
	if err != nil {
		return nil, fmt.Errorf("final settle: %w", err)
	}
	h.result.Final = final.State
	for _, e := range Check(scenario.Expect, final.State) {
		h.result.AddError("expect: " + e.Error())
	}

	// Stop and wait so every journal write has landed.
	eng.Stop()
	<-runDone

	records, err := st.ReadEvents(context.Background(), eng.SessionID())
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	for _, rec := range records {
		h.result.Trace = append(h.result.Trace, TraceEvent{
			Seq:     rec.Seq,
			Kind:    rec.Kind,
			Payload: rec.Payload,
			Entries: rec.Entries,
		})
	}

	return h.result, nil
}

// executeStep applies one step.
func (h *Harness) executeStep(ctx context.Context, i int, step Step) error {
	var err error
	switch {
	case step.Source != nil:
		if !h.engine.Enqueue(engine.SourceChanged(*step.Source)) {
			return engine.ErrQueueClosed
		}
		if !step.Async {
			_, err = h.engine.Settle(ctx)
		}
	case step.Input != nil:
		_, err = h.engine.Dispatch(ctx, engine.CommandChanged(*step.Input))
	case step.Submit != nil:
		_, err = h.engine.Dispatch(ctx, engine.CommandSubmitted(*step.Submit))
	case step.Previous:
		_, err = h.engine.Dispatch(ctx, engine.HistoryPrevious())
	case step.Next:
		_, err = h.engine.Dispatch(ctx, engine.HistoryNext())
	case step.Settle:
		_, err = h.engine.Settle(ctx)
	case step.Expect != nil:
		for _, e := range Check(step.Expect, h.engine.State().State) {
			h.result.AddError(fmt.Sprintf("steps[%d].expect: %s", i, e.Error()))
		}
	}
	return err
}

// scenarioCompiler scripts the compiler from scenario.Modules, or returns
// the wasmtime adapter when none are listed.
func scenarioCompiler(s *Scenario) engine.Compiler {
	if len(s.Modules) == 0 {
		return compiler.New(compiler.WithCallTimeout(5 * time.Second))
	}
	c := testutil.NewScriptedCompiler()
	for _, m := range s.Modules {
		if m.Error != "" {
			c.Fails(m.Source, m.Error)
		} else {
			c.Exports(m.Source, m.Exports...)
		}
	}
	return c
}
