package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sort"

	starlarkjson "go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// maxConvertDepth stops conversion of self-referencing containers.
const maxConvertDepth = 32

var starlarkFileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// StarlarkRunner executes scripts in the Starlark dialect of Python.
type StarlarkRunner struct {
	maxSteps       uint64
	maxOutputBytes int
}

// NewStarlarkRunner creates a runner bounded by cfg.
func NewStarlarkRunner(cfg Config) *StarlarkRunner {
	cfg = cfg.withDefaults()
	return &StarlarkRunner{
		maxSteps:       cfg.MaxSteps,
		maxOutputBytes: cfg.MaxOutputBytes,
	}
}

func starlarkPredeclared() starlark.StringDict {
	return starlark.StringDict{
		"math": starlarkmath.Module,
		"json": starlarkjson.Module,
		"time": starlarktime.Module,
	}
}

func (r *StarlarkRunner) newThread(ctx context.Context, name string, out *capture) (*starlark.Thread, func() bool) {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			out.Line(msg)
		},
		Load: func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
			return nil, fmt.Errorf("load(%q): modules are not available", module)
		},
	}
	thread.SetMaxExecutionSteps(r.maxSteps)
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(ctx.Err().Error())
	})
	return thread, stop
}

// Execute runs script and converts its globals into Bindings.
func (r *StarlarkRunner) Execute(ctx context.Context, script string) Execution {
	out := newCapture(r.maxOutputBytes)
	thread, stop := r.newThread(ctx, "main", out)
	defer stop()

	globals, err := starlark.ExecFileOptions(starlarkFileOptions, thread, "main.star", script, starlarkPredeclared())

	exec := Execution{
		Bindings: starlarkBindings(globals),
		Stdout:   out.String(),
	}
	exec.Truncated = out.Truncated()
	if err != nil {
		exec.Err = starlarkError(err)
	}
	return exec
}

// EvalPredicate runs src, which must define check(bindings, stdout), and
// reports the truth of its result.
func EvalPredicate(ctx context.Context, src string, b Bindings, stdout string) (bool, error) {
	r := NewStarlarkRunner(Config{})
	out := newCapture(defaultMaxOutputBytes)
	thread, stop := r.newThread(ctx, "predicate", out)
	defer stop()

	globals, err := starlark.ExecFileOptions(starlarkFileOptions, thread, "predicate.star", src, starlarkPredeclared())
	if err != nil {
		return false, fmt.Errorf("load predicate: %s", starlarkError(err))
	}
	fn, ok := globals["check"].(starlark.Callable)
	if !ok {
		return false, errors.New("predicate does not define check(bindings, stdout)")
	}

	arg, err := toStarlark(map[string]any(b))
	if err != nil {
		return false, fmt.Errorf("convert bindings: %w", err)
	}
	res, err := starlark.Call(thread, fn, starlark.Tuple{arg, starlark.String(stdout)}, nil)
	if err != nil {
		return false, fmt.Errorf("run predicate: %s", starlarkError(err))
	}
	return bool(res.Truth()), nil
}

func starlarkError(err error) string {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Backtrace()
	}
	return err.Error()
}

func starlarkBindings(globals starlark.StringDict) Bindings {
	b := make(Bindings, len(globals))
	for name, v := range globals {
		b[name] = fromStarlark(v, 0)
	}
	return b
}

func fromStarlark(v starlark.Value, depth int) any {
	if depth > maxConvertDepth {
		return Opaque{Type: v.Type(), Repr: "..."}
	}
	switch v := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(v)
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i
		}
		return float64(v.Float())
	case starlark.Float:
		return float64(v)
	case starlark.String:
		return string(v)
	case starlark.Bytes:
		return string(v)
	case *starlark.List:
		elems := make([]any, v.Len())
		for i := range v.Len() {
			elems[i] = fromStarlark(v.Index(i), depth+1)
		}
		return elems
	case starlark.Tuple:
		elems := make([]any, len(v))
		for i, e := range v {
			elems[i] = fromStarlark(e, depth+1)
		}
		return elems
	case *starlark.Dict:
		m := make(map[string]any, v.Len())
		for _, item := range v.Items() {
			key := item[0].String()
			if s, ok := item[0].(starlark.String); ok {
				key = string(s)
			}
			m[key] = fromStarlark(item[1], depth+1)
		}
		return m
	case *starlark.Set:
		var elems []any
		iter := v.Iterate()
		defer iter.Done()
		var e starlark.Value
		for iter.Next(&e) {
			elems = append(elems, fromStarlark(e, depth+1))
		}
		return elems
	}
	return Opaque{Type: v.Type(), Repr: v.String()}
}

func toStarlark(v any) (starlark.Value, error) {
	switch v := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case float64:
		return starlark.Float(v), nil
	case string:
		return starlark.String(v), nil
	case Opaque:
		return starlark.String(v.Repr), nil
	case []any:
		elems := make([]starlark.Value, len(v))
		for i, e := range v {
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := starlark.NewDict(len(v))
		for _, k := range keys {
			sv, err := toStarlark(v[k])
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	}
	return nil, fmt.Errorf("unsupported type for starlark: %T", v)
}
