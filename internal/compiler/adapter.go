package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bytecodealliance/wasmtime-go/v25"

	"github.com/roach88/tinker/internal/state"
)

// Adapter compiles module text and instantiates it.
//
// Thread-safety: Compile may run concurrently from several goroutines; each
// call builds its own store. Calls on the returned exports must not overlap
// with each other (the engine's single loop guarantees this).
//
// With a call timeout every compile also gets its own wasmtime engine, so a
// timeout only interrupts calls into that compile's exports.
type Adapter struct {
	engine      *wasmtime.Engine // nil when each compile builds its own
	callTimeout time.Duration
}

// sandbox is the engine and store one compile's exports run in.
type sandbox struct {
	engine      *wasmtime.Engine
	store       *wasmtime.Store
	callTimeout time.Duration
}

// Option configures an Adapter.
type Option func(*adapterConfig)

type adapterConfig struct {
	callTimeout time.Duration
}

// WithCallTimeout interrupts exported function calls (and start functions)
// that run longer than d. Zero disables interruption.
func WithCallTimeout(d time.Duration) Option {
	return func(c *adapterConfig) {
		c.callTimeout = d
	}
}

// New creates an Adapter with its own wasmtime engine.
func New(opts ...Option) *Adapter {
	cfg := adapterConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	a := &Adapter{callTimeout: cfg.callTimeout}
	if a.callTimeout <= 0 {
		a.engine = wasmtime.NewEngine()
	}
	return a
}

// newSandbox returns a fresh store on the shared engine, or on an engine of
// its own when calls are interruptible.
func (a *Adapter) newSandbox() *sandbox {
	engine := a.engine
	if engine == nil {
		wcfg := wasmtime.NewConfig()
		wcfg.SetEpochInterruption(true)
		engine = wasmtime.NewEngineWithConfig(wcfg)
	}
	return &sandbox{
		engine:      engine,
		store:       wasmtime.NewStore(engine),
		callTimeout: a.callTimeout,
	}
}

// Compile converts source to a binary module, instantiates it with an empty
// import table and returns its exports. All failures are reported in the
// result.
func (a *Adapter) Compile(ctx context.Context, source string) (result state.CompileResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("compile panicked", "panic", r)
			result = state.CompileFailure(&CompileError{
				Stage:   StageInstantiate,
				Message: fmt.Sprintf("internal compiler failure: %v", r),
			})
		}
	}()

	if err := ctx.Err(); err != nil {
		return state.CompileFailure(err)
	}

	start := time.Now()
	wasm, err := wasmtime.Wat2Wasm(source)
	if err != nil {
		return state.CompileFailure(newCompileError(StageParse, err))
	}

	sb := a.newSandbox()
	module, err := wasmtime.NewModule(sb.engine, wasm)
	if err != nil {
		return state.CompileFailure(newCompileError(StageValidate, err))
	}

	if err := ctx.Err(); err != nil {
		return state.CompileFailure(err)
	}

	var instance *wasmtime.Instance
	err = sb.guard(func() error {
		var err error
		instance, err = wasmtime.NewInstance(sb.store, module, []wasmtime.AsExtern{})
		return err
	})
	if err != nil {
		return state.CompileFailure(newCompileError(StageInstantiate, err))
	}

	result = collectExports(sb, module, instance)
	slog.Debug("module compiled",
		"bytes", len(wasm),
		"exports", len(result.Names),
		"elapsed", time.Since(start),
	)
	return result
}

// CompileAsync runs Compile on its own goroutine. The returned channel
// receives exactly one result and is never closed before that.
func (a *Adapter) CompileAsync(ctx context.Context, source string) <-chan state.CompileResult {
	ch := make(chan state.CompileResult, 1)
	go func() {
		ch <- a.Compile(ctx, source)
	}()
	return ch
}

// guard runs fn with an epoch deadline when a call timeout is configured.
// The epoch only advances on this sandbox's engine.
func (sb *sandbox) guard(fn func() error) error {
	if sb.callTimeout <= 0 {
		return fn()
	}
	sb.store.SetEpochDeadline(1)
	timer := time.AfterFunc(sb.callTimeout, sb.engine.IncrementEpoch)
	defer timer.Stop()
	return fn()
}

func collectExports(sb *sandbox, module *wasmtime.Module, instance *wasmtime.Instance) state.CompileResult {
	store := sb.store
	exportTypes := module.Exports()
	result := state.CompileResult{
		Names:  make([]string, 0, len(exportTypes)),
		Values: make(map[string]any, len(exportTypes)),
	}

	for _, et := range exportTypes {
		name := et.Name()
		ext := instance.GetExport(store, name)
		if ext == nil {
			continue
		}
		result.Names = append(result.Names, name)
		result.Values[name] = exportValue(sb, name, ext)
	}
	return result
}

func exportValue(sb *sandbox, name string, ext *wasmtime.Extern) any {
	store := sb.store
	switch {
	case ext.Func() != nil:
		return newFunction(sb, name, ext.Func())
	case ext.Global() != nil:
		return ext.Global().Get(store).Get()
	case ext.Memory() != nil:
		return &Opaque{
			Kind:   "memory",
			Name:   name,
			Detail: fmt.Sprintf("%d pages", ext.Memory().Size(store)),
		}
	case ext.Table() != nil:
		return &Opaque{
			Kind:   "table",
			Name:   name,
			Detail: fmt.Sprintf("%d elements", ext.Table().Size(store)),
		}
	default:
		return &Opaque{Kind: "extern", Name: name}
	}
}
