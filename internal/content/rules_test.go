package content_test

import (
	"testing"

	"github.com/p-n-ai/ledger/internal/content"
	"github.com/p-n-ai/ledger/internal/sandbox"
)

func TestBindingRule(t *testing.T) {
	b := sandbox.Bindings{
		"count":  int64(36),
		"ratio":  2.5,
		"name":   "Hermes",
		"ready":  true,
		"jars":   []any{int64(1), int64(2)},
		"cargo":  map[string]any{"water": int64(3)},
		"weight": 100.0,
	}

	tests := []struct {
		name    string
		rule    content.BindingRule
		want    bool
		wantErr bool
	}{
		{"exists", content.BindingRule{Name: "count"}, true, false},
		{"missing", content.BindingRule{Name: "nope"}, false, false},
		{"int", content.BindingRule{Name: "count", Type: "int"}, true, false},
		{"float is not int", content.BindingRule{Name: "ratio", Type: "int"}, false, false},
		{"int is number", content.BindingRule{Name: "count", Type: "number"}, true, false},
		{"float is number", content.BindingRule{Name: "ratio", Type: "number"}, true, false},
		{"string", content.BindingRule{Name: "name", Type: "string", Equals: "Hermes"}, true, false},
		{"string mismatch", content.BindingRule{Name: "name", Type: "string", Equals: "Zeus"}, false, false},
		{"bool", content.BindingRule{Name: "ready", Type: "bool", Equals: true}, true, false},
		{"int equals yaml int", content.BindingRule{Name: "count", Equals: 36}, true, false},
		{"float equals whole int", content.BindingRule{Name: "weight", Equals: 100}, true, false},
		{"list", content.BindingRule{Name: "jars", Type: "list", Equals: []any{1, 2}}, true, false},
		{"list mismatch", content.BindingRule{Name: "jars", Equals: []any{1}}, false, false},
		{"dict", content.BindingRule{Name: "cargo", Type: "dict", Equals: map[string]any{"water": 3}}, true, false},
		{"unknown type", content.BindingRule{Name: "count", Type: "complex"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.rule.Verify(b, "")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStdoutRule(t *testing.T) {
	eq := func(s string) *string { return &s }

	tests := []struct {
		name   string
		rule   content.StdoutRule
		stdout string
		want   bool
	}{
		{"equals", content.StdoutRule{Equals: eq("36")}, "36\n", true},
		{"crlf", content.StdoutRule{Equals: eq("a\nb")}, "a\r\nb\r\n", true},
		{"trailing spaces", content.StdoutRule{Equals: eq("a\nb")}, "a  \nb\t\n", true},
		{"nfc", content.StdoutRule{Equals: eq("caf\u00e9")}, "cafe\u0301\n", true},
		{"mismatch", content.StdoutRule{Equals: eq("37")}, "36\n", false},
		{"contains", content.StdoutRule{Contains: []string{"enough", "gate"}}, "the gate says enough\n", true},
		{"contains missing", content.StdoutRule{Contains: []string{"thirsty"}}, "enough\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.rule.Verify(nil, tt.stdout)
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPredicateRule(t *testing.T) {
	b := sandbox.Bindings{"status": "enough"}

	pass := content.PredicateRule{Source: "def check(b, out):\n    return b['status'] == 'enough' and 'enough' in out"}
	if ok, err := pass.Verify(b, "enough\n"); err != nil || !ok {
		t.Errorf("Verify() = %v, %v; want true, nil", ok, err)
	}

	if _, err := (content.PredicateRule{}).Verify(b, ""); err == nil {
		t.Error("empty predicate should return an error")
	}
}

func TestAllOf(t *testing.T) {
	pass := content.RuleFunc(func(sandbox.Bindings, string) (bool, error) { return true, nil })
	fail := content.RuleFunc(func(sandbox.Bindings, string) (bool, error) { return false, nil })

	if ok, _ := (content.AllOf{}).Verify(nil, ""); !ok {
		t.Error("empty AllOf should pass")
	}
	if ok, _ := (content.AllOf{pass, pass}).Verify(nil, ""); !ok {
		t.Error("AllOf of passing rules should pass")
	}
	if ok, _ := (content.AllOf{pass, fail}).Verify(nil, ""); ok {
		t.Error("AllOf with a failing rule should fail")
	}
}

func TestNormalizeOutput(t *testing.T) {
	if got := content.NormalizeOutput("  hi\r\nthere  \r\n\n"); got != "hi\nthere" {
		t.Errorf("NormalizeOutput() = %q, want %q", got, "hi\nthere")
	}
}
