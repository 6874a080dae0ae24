package content

import (
	"sort"

	"github.com/p-n-ai/ledger/internal/sandbox"
)

var builtinRules = map[string]Rule{
	"caravan_loader": CaravanLoader,
}

// CaravanLoader checks the supplies registered in "The Caravan Loader":
// water_liters must be an integer, food_kgs a number and messenger_name a
// string.
var CaravanLoader Rule = RuleFunc(func(b sandbox.Bindings, _ string) (bool, error) {
	if _, ok := b.Int("water_liters"); !ok {
		return false, nil
	}
	if _, ok := b.Number("food_kgs"); !ok {
		return false, nil
	}
	if _, ok := b.String("messenger_name"); !ok {
		return false, nil
	}
	return true, nil
})

// Builtin returns the named Go rule.
func Builtin(name string) (Rule, bool) {
	r, ok := builtinRules[name]
	return r, ok
}

// BuiltinNames lists the registered Go rules.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtinRules))
	for name := range builtinRules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
