package sandbox

import (
	"fmt"
	"math"
	"sort"
)

// Bindings maps every top-level name a script assigned to its Go value.
//
// Values are one of int64, float64, string, bool, nil, []any,
// map[string]any or Opaque.
type Bindings map[string]any

// Opaque stands in for values that have no plain Go form, such as
// functions or modules.
type Opaque struct {
	Type string `json:"type"`
	Repr string `json:"repr"`
}

func (o Opaque) String() string {
	return o.Repr
}

// Has reports whether name was bound.
func (b Bindings) Has(name string) bool {
	_, ok := b[name]
	return ok
}

// Int returns name as an integer. Floats are never coerced.
func (b Bindings) Int(name string) (int64, bool) {
	v, ok := b[name].(int64)
	return v, ok
}

// Number returns name as a float64 when it holds an int or a float.
func (b Bindings) Number(name string) (float64, bool) {
	switch v := b[name].(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// String returns name as a string.
func (b Bindings) String(name string) (string, bool) {
	v, ok := b[name].(string)
	return v, ok
}

// Bool returns name as a bool.
func (b Bindings) Bool(name string) (bool, bool) {
	v, ok := b[name].(bool)
	return v, ok
}

// Names returns the bound names in sorted order.
func (b Bindings) Names() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TypeOf names the value type of v as used by verification rules.
func TypeOf(v any) string {
	switch x := v.(type) {
	case nil:
		return "none"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "string"
	case bool:
		return "bool"
	case []any:
		return "list"
	case map[string]any:
		return "dict"
	case Opaque:
		return x.Type
	default:
		return fmt.Sprintf("%T", v)
	}
}

// normalizeNumber folds whole floats that fit into int64. Lua has a single
// number type, so 50 and 50.0 are indistinguishable there. 2^63 rounds up
// from MaxInt64 and stays a float.
func normalizeNumber(f float64) any {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return f
}
