package content

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/p-n-ai/ledger/internal/sandbox"
)

// predicateTimeout bounds a single Starlark predicate evaluation.
const predicateTimeout = 2 * time.Second

// Rule decides whether a challenge script produced the expected state.
// An error means the rule could not be evaluated and is graded as a wrong
// answer.
type Rule interface {
	Verify(b sandbox.Bindings, stdout string) (bool, error)
}

// RuleFunc adapts a function to Rule.
type RuleFunc func(b sandbox.Bindings, stdout string) (bool, error)

func (f RuleFunc) Verify(b sandbox.Bindings, stdout string) (bool, error) {
	return f(b, stdout)
}

// AllOf passes when every rule passes. An empty AllOf passes.
type AllOf []Rule

func (a AllOf) Verify(b sandbox.Bindings, stdout string) (bool, error) {
	for _, r := range a {
		ok, err := r.Verify(b, stdout)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// BindingRule requires a top-level name with a given value type and,
// optionally, a given value.
type BindingRule struct {
	Name   string
	Type   string
	Equals any
}

// Binding value types understood by BindingRule.
var bindingTypes = map[string]func(v any) bool{
	"any":    func(any) bool { return true },
	"int":    func(v any) bool { _, ok := v.(int64); return ok },
	"float":  func(v any) bool { _, ok := v.(float64); return ok },
	"number": func(v any) bool { _, ok := toFloat(v); return ok },
	"string": func(v any) bool { _, ok := v.(string); return ok },
	"bool":   func(v any) bool { _, ok := v.(bool); return ok },
	"list":   func(v any) bool { _, ok := v.([]any); return ok },
	"dict":   func(v any) bool { _, ok := v.(map[string]any); return ok },
}

func (r BindingRule) Verify(b sandbox.Bindings, _ string) (bool, error) {
	v, ok := b[r.Name]
	if !ok {
		return false, nil
	}
	typ := r.Type
	if typ == "" {
		typ = "any"
	}
	match, known := bindingTypes[typ]
	if !known {
		return false, fmt.Errorf("binding %q: unknown type %q", r.Name, r.Type)
	}
	if !match(v) {
		return false, nil
	}
	if r.Equals == nil {
		return true, nil
	}
	return valuesEqual(v, r.Equals), nil
}

// StdoutRule compares the script's normalised output.
type StdoutRule struct {
	Equals   *string
	Contains []string
}

func (r StdoutRule) Verify(_ sandbox.Bindings, stdout string) (bool, error) {
	out := NormalizeOutput(stdout)
	if r.Equals != nil && out != NormalizeOutput(*r.Equals) {
		return false, nil
	}
	for _, want := range r.Contains {
		if !strings.Contains(out, NormalizeOutput(want)) {
			return false, nil
		}
	}
	return true, nil
}

// PredicateRule evaluates a Starlark check(bindings, stdout) function.
type PredicateRule struct {
	Source string
}

func (r PredicateRule) Verify(b sandbox.Bindings, stdout string) (bool, error) {
	if strings.TrimSpace(r.Source) == "" {
		return false, errors.New("empty predicate")
	}
	ctx, cancel := context.WithTimeout(context.Background(), predicateTimeout)
	defer cancel()
	return sandbox.EvalPredicate(ctx, r.Source, b, stdout)
}

// NormalizeOutput makes printed output comparable: line endings become
// LF, surrounding whitespace is dropped and text is NFC-normalised.
func NormalizeOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return norm.NFC.String(strings.TrimSpace(strings.Join(lines, "\n")))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// valuesEqual compares a binding with an authored value. Numbers compare
// by value so 100 and 100.0 are equal.
func valuesEqual(got, want any) bool {
	if g, ok := toFloat(got); ok {
		w, ok := toFloat(want)
		return ok && g == w
	}
	switch g := got.(type) {
	case []any:
		w, ok := want.([]any)
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range g {
			if !valuesEqual(g[i], w[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		w, ok := want.(map[string]any)
		if !ok || len(g) != len(w) {
			return false
		}
		for k, gv := range g {
			wv, ok := w[k]
			if !ok || !valuesEqual(gv, wv) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(got, want)
}
