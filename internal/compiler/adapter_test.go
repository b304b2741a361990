package compiler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, src string, opts ...Option) (names []string, values map[string]any, err error) {
	t.Helper()
	r := New(opts...).Compile(context.Background(), src)
	return r.Names, r.Values, r.Err
}

func TestCompile_DefaultModule(t *testing.T) {
	names, values, err := compile(t, DefaultModule)
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, names)

	fn, ok := values["main"].(*Function)
	require.True(t, ok, "main should be a *Function, got %T", values["main"])
	assert.Empty(t, fn.Params())
	assert.Equal(t, []ValueKind{KindI32}, fn.Results())

	got, err := fn.Call(nil)
	require.NoError(t, err)
	assert.Equal(t, int32(15), got)
}

func TestCompile_ExportOrderFollowsDeclaration(t *testing.T) {
	src := `(module
  (func (export "zeta") (result i32) i32.const 1)
  (func (export "alpha") (result i32) i32.const 2)
  (global (export "mid") i32 (i32.const 7)))`

	names, values, err := compile(t, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)
	assert.Equal(t, int32(7), values["mid"])
}

func TestCompile_ParseFailure(t *testing.T) {
	_, _, err := compile(t, "(module (func (export \"f\") i32.bogus))")
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, StageParse, ce.Stage)
	assert.NotEmpty(t, ce.Message)
	assert.Equal(t, ce.Message, err.Error(), "message must be passed through unmodified")
}

func TestCompile_ValidationFailure(t *testing.T) {
	// well-formed text, but the body leaves an i64 where i32 is expected
	_, _, err := compile(t, `(module (func (export "f") (result i32) i64.const 1))`)
	require.Error(t, err)
	assert.Equal(t, StageValidate, StageOf(err))
}

func TestCompile_InstantiateFailureWithEmptyImports(t *testing.T) {
	src := `(module
  (import "env" "log" (func $log (param i32)))
  (func (export "main") i32.const 1 call $log))`

	_, _, err := compile(t, src)
	require.Error(t, err)
	assert.Equal(t, StageInstantiate, StageOf(err))
}

func TestCompile_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New().Compile(ctx, DefaultModule)
	assert.True(t, r.Failed())
	assert.ErrorIs(t, r.Err, context.Canceled)
}

func TestCompile_MemoryIsOpaque(t *testing.T) {
	_, values, err := compile(t, `(module (memory (export "mem") 1))`)
	require.NoError(t, err)

	mem, ok := values["mem"].(*Opaque)
	require.True(t, ok)
	assert.Equal(t, "memory", mem.Kind)
	assert.Equal(t, "<memory mem: 1 pages>", mem.String())
}

func TestCompileAsync_DeliversOnce(t *testing.T) {
	ch := New().CompileAsync(context.Background(), DefaultModule)

	select {
	case r := <-ch:
		require.NoError(t, r.Err)
		assert.Equal(t, []string{"main"}, r.Names)
	case <-time.After(10 * time.Second):
		t.Fatal("compile did not resolve")
	}
}

func TestCompile_OldExportsSurviveNewCompile(t *testing.T) {
	a := New()
	first := a.Compile(context.Background(), DefaultModule)
	require.NoError(t, first.Err)
	second := a.Compile(context.Background(), `(module (func (export "two") (result i32) i32.const 2))`)
	require.NoError(t, second.Err)

	got, err := first.Values["main"].(*Function).Call(nil)
	require.NoError(t, err)
	assert.Equal(t, int32(15), got)
}

func TestFunction_ArgumentConversion(t *testing.T) {
	src := `(module
  (func (export "add") (param i32 i32) (result i32)
    local.get 0 local.get 1 i32.add)
  (func (export "half") (param f64) (result f64)
    local.get 0 f64.const 2 f64.div)
  (func (export "pair") (result i32 i64)
    i32.const 1 i64.const 2))`

	_, values, err := compile(t, src)
	require.NoError(t, err)

	add := values["add"].(*Function)
	got, err := add.Call([]any{int64(2), int64(3)})
	require.NoError(t, err)
	assert.Equal(t, int32(5), got)

	half := values["half"].(*Function)
	got, err = half.Call([]any{int64(5)})
	require.NoError(t, err)
	assert.Equal(t, 2.5, got)

	pair := values["pair"].(*Function)
	got, err = pair.Call(nil)
	require.NoError(t, err)
	assert.Equal(t, []any{int32(1), int64(2)}, got)
}

func TestFunction_ArityMismatch(t *testing.T) {
	_, values, err := compile(t, DefaultModule)
	require.NoError(t, err)

	_, err = values["main"].(*Function).Call([]any{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 0 argument(s), got 1")
}

func TestFunction_FloatForIntegerParam(t *testing.T) {
	_, values, err := compile(t, `(module (func (export "id") (param i32) (result i32) local.get 0))`)
	require.NoError(t, err)

	_, err = values["id"].(*Function).Call([]any{1.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected integer for i32")
}

func TestFunction_TrapIsError(t *testing.T) {
	_, values, err := compile(t, `(module (func (export "boom") unreachable))`)
	require.NoError(t, err)

	_, err = values["boom"].(*Function).Call(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestFunction_CallTimeoutInterruptsLoop(t *testing.T) {
	src := `(module (func (export "spin") (loop $l (br $l))))`
	_, values, err := compile(t, src, WithCallTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = values["spin"].(*Function).Call(nil)
	require.Error(t, err)
}

func TestFunction_CallTimeoutIsPerCompile(t *testing.T) {
	const timeout = 200 * time.Millisecond
	src := `(module (func (export "spin") (loop $l (br $l))))`
	a := New(WithCallTimeout(timeout))

	first := a.Compile(context.Background(), src)
	require.NoError(t, first.Err)
	second := a.Compile(context.Background(), src)
	require.NoError(t, second.Err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = first.Values["spin"].(*Function).Call(nil)
	}()

	// Start the second call while the first one's timer is pending. Its
	// own deadline must not be cut short when the first one fires.
	time.Sleep(timeout / 2)
	start := time.Now()
	_, err := second.Values["spin"].(*Function).Call(nil)
	elapsed := time.Since(start)
	<-done

	require.Error(t, err)
	assert.GreaterOrEqual(t, elapsed, timeout)
}
