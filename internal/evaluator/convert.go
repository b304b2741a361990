package evaluator

import (
	"fmt"
	"reflect"

	"github.com/reusee/starlarkutil"
	"go.starlark.net/starlark"
)

// toStarlarkValue converts an environment value for use in expressions.
func toStarlarkValue(name string, v any) starlark.Value {
	switch v := v.(type) {

	case nil:
		return starlark.None

	case starlark.Value:
		return v

	case Callable:
		return callableBuiltin(name, v)

	case bool:
		return starlark.Bool(v)
	case string:
		return starlark.String(v)
	case []byte:
		return starlark.Bytes(v)

	case int:
		return starlark.MakeInt(v)
	case int32:
		return starlark.MakeInt(int(v))
	case int64:
		return starlark.MakeInt64(v)
	case uint32:
		return starlark.MakeUint(uint(v))
	case uint64:
		return starlark.MakeUint64(v)

	case float32:
		return starlark.Float(v)
	case float64:
		return starlark.Float(v)

	case []any:
		elems := make([]starlark.Value, len(v))
		for i, e := range v {
			elems[i] = toStarlarkValue(name, e)
		}
		return starlark.Tuple(elems)

	case map[string]any:
		d := starlark.NewDict(len(v))
		for k, val := range v {
			_ = d.SetKey(starlark.String(k), toStarlarkValue(k, val))
		}
		return d

	case fmt.Stringer:
		return opaque{desc: v.String()}
	}

	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Func {
		return starlarkutil.MakeFunc(name, v)
	}
	return opaque{desc: fmt.Sprintf("<%T>", v)}
}

// fromStarlarkValue converts a call argument to a Go value.
func fromStarlarkValue(v starlark.Value) (any, error) {
	switch v := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i, nil
		}
		return nil, fmt.Errorf("integer %s out of range", v.BigInt().Text(10))
	case starlark.Float:
		return float64(v), nil
	case starlark.String:
		return string(v), nil
	case starlark.Tuple:
		return fromIterable(v)
	case *starlark.List:
		return fromIterable(v)
	default:
		return nil, fmt.Errorf("cannot pass %s to a module function", v.Type())
	}
}

func fromIterable(it starlark.Iterable) ([]any, error) {
	var out []any
	iter := it.Iterate()
	defer iter.Done()
	var elem starlark.Value
	for iter.Next(&elem) {
		g, err := fromStarlarkValue(elem)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// callableBuiltin exposes a Callable as a Starlark builtin.
func callableBuiltin(name string, c Callable) *starlark.Builtin {
	if name == "" {
		name = c.Name()
	}
	return starlark.NewBuiltin(name, func(
		thread *starlark.Thread,
		b *starlark.Builtin,
		args starlark.Tuple,
		kwargs []starlark.Tuple,
	) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("%s: keyword arguments are not supported", b.Name())
		}
		goArgs := make([]any, len(args))
		for i, a := range args {
			g, err := fromStarlarkValue(a)
			if err != nil {
				return nil, fmt.Errorf("%s: argument %d: %w", b.Name(), i+1, err)
			}
			goArgs[i] = g
		}
		out, err := c.Call(goArgs)
		if err != nil {
			return nil, err
		}
		return toStarlarkValue(name, out), nil
	})
}

// opaque is a value with a description and no JSON form.
type opaque struct {
	desc string
}

var _ starlark.Value = opaque{}

func (o opaque) String() string        { return o.desc }
func (o opaque) Type() string          { return "opaque" }
func (o opaque) Freeze()               {}
func (o opaque) Truth() starlark.Bool  { return starlark.True }
func (o opaque) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: %s", o.Type()) }
