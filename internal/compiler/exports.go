package compiler

import (
	"fmt"

	"github.com/bytecodealliance/wasmtime-go/v25"
)

// ValueKind names a WebAssembly value type.
type ValueKind string

const (
	KindI32 ValueKind = "i32"
	KindI64 ValueKind = "i64"
	KindF32 ValueKind = "f32"
	KindF64 ValueKind = "f64"
)

func valueKind(k wasmtime.ValKind) ValueKind {
	switch k {
	case wasmtime.KindI32:
		return KindI32
	case wasmtime.KindI64:
		return KindI64
	case wasmtime.KindF32:
		return KindF32
	case wasmtime.KindF64:
		return KindF64
	default:
		return ValueKind(k.String())
	}
}

// Function is an exported WebAssembly function bound to the store of the
// compile that produced it.
type Function struct {
	sandbox *sandbox
	fn      *wasmtime.Func
	name    string
	params  []ValueKind
	results []ValueKind
}

func newFunction(sb *sandbox, name string, fn *wasmtime.Func) *Function {
	ft := fn.Type(sb.store)
	f := &Function{sandbox: sb, fn: fn, name: name}
	for _, p := range ft.Params() {
		f.params = append(f.params, valueKind(p.Kind()))
	}
	for _, r := range ft.Results() {
		f.results = append(f.results, valueKind(r.Kind()))
	}
	return f
}

// Name returns the export name.
func (f *Function) Name() string { return f.name }

// Params returns the parameter kinds.
func (f *Function) Params() []ValueKind { return f.params }

// Results returns the result kinds.
func (f *Function) Results() []ValueKind { return f.results }

func (f *Function) String() string {
	return fmt.Sprintf("<func %s%v -> %v>", f.name, f.params, f.results)
}

// Call invokes the function. Arguments may be any Go integer, float or
// bool; they are converted to the declared parameter kinds. The result is
// nil for no results, a single Go value, or a []any for several.
func (f *Function) Call(args []any) (result any, err error) {
	if len(args) != len(f.params) {
		return nil, fmt.Errorf("%s: expected %d argument(s), got %d", f.name, len(f.params), len(args))
	}

	converted := make([]interface{}, len(args))
	for i, arg := range args {
		v, err := convertArg(f.params[i], arg)
		if err != nil {
			return nil, fmt.Errorf("%s: argument %d: %w", f.name, i+1, err)
		}
		converted[i] = v
	}

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("%s: call panicked: %v", f.name, r)
		}
	}()

	var out interface{}
	err = f.sandbox.guard(func() error {
		var callErr error
		out, callErr = f.fn.Call(f.sandbox.store, converted...)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	if vals, ok := out.([]wasmtime.Val); ok {
		list := make([]any, len(vals))
		for i, v := range vals {
			list[i] = v.Get()
		}
		return list, nil
	}
	return out, nil
}

func convertArg(kind ValueKind, arg any) (interface{}, error) {
	var (
		i     int64
		fl    float64
		isInt bool
	)
	switch v := arg.(type) {
	case int:
		i, isInt = int64(v), true
	case int32:
		i, isInt = int64(v), true
	case int64:
		i, isInt = v, true
	case uint32:
		i, isInt = int64(v), true
	case bool:
		if v {
			i = 1
		}
		isInt = true
	case float32:
		fl = float64(v)
	case float64:
		fl = v
	default:
		return nil, fmt.Errorf("unsupported argument type %T", arg)
	}

	switch kind {
	case KindI32:
		if !isInt {
			return nil, fmt.Errorf("expected integer for i32, got %v", arg)
		}
		return int32(i), nil
	case KindI64:
		if !isInt {
			return nil, fmt.Errorf("expected integer for i64, got %v", arg)
		}
		return i, nil
	case KindF32:
		if isInt {
			return float32(i), nil
		}
		return float32(fl), nil
	case KindF64:
		if isInt {
			return float64(i), nil
		}
		return fl, nil
	default:
		return nil, fmt.Errorf("parameter kind %s is not supported", kind)
	}
}

// Opaque stands in for exports that have no plain value, such as memories
// and tables.
type Opaque struct {
	Kind   string
	Name   string
	Detail string
}

func (o *Opaque) String() string {
	if o.Detail == "" {
		return fmt.Sprintf("<%s %s>", o.Kind, o.Name)
	}
	return fmt.Sprintf("<%s %s: %s>", o.Kind, o.Name, o.Detail)
}
