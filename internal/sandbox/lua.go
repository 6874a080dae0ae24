package sandbox

import (
	"context"
	"strconv"
	"strings"

	"github.com/Shopify/go-lua"
)

// luaHookInterval is how many VM instructions run between checks for
// cancellation and the step budget.
const luaHookInterval = 1000

// luaBaselineKey names the registry table holding the globals a fresh state
// starts with.
const luaBaselineKey = "ledger.baseline"

// LuaRunner executes Lua 5.2 scripts. A count hook stops the script once
// its context is done or it exceeds the step budget.
type LuaRunner struct {
	maxSteps       uint64
	maxOutputBytes int
}

// NewLuaRunner creates a runner bounded by cfg.
func NewLuaRunner(cfg Config) *LuaRunner {
	cfg = cfg.withDefaults()
	return &LuaRunner{maxSteps: cfg.MaxSteps, maxOutputBytes: cfg.MaxOutputBytes}
}

var luaLibraries = []struct {
	name string
	open lua.Function
}{
	{"_G", lua.BaseOpen},
	{"string", lua.StringOpen},
	{"table", lua.TableOpen},
	{"math", lua.MathOpen},
	{"bit32", lua.Bit32Open},
}

// Execute runs script and collects the globals it defined or reassigned.
func (r *LuaRunner) Execute(ctx context.Context, script string) Execution {
	out := newCapture(r.maxOutputBytes)
	l := newLuaState(out)
	snapshotLuaGlobals(l)

	exec := Execution{Bindings: Bindings{}}
	if err := lua.LoadString(l, script); err != nil {
		exec.Err = luaError(err)
		exec.Stdout = out.String()
		return exec
	}
	if ctx.Err() != nil {
		exec.Err = "execution cancelled: " + ctx.Err().Error()
		return exec
	}

	r.limit(ctx, l)
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		exec.Err = luaError(err)
	}
	lua.SetDebugHook(l, nil, 0, 0)

	exec.Bindings = luaBindings(l)
	exec.Stdout = out.String()
	exec.Truncated = out.Truncated()
	return exec
}

// limit installs the count hook. Once tripped, the hook fires on every
// instruction so a script that swallows the error with pcall is stopped at
// the first instruction outside it.
func (r *LuaRunner) limit(ctx context.Context, l *lua.State) {
	var steps uint64
	var fault string
	var hook lua.Hook
	hook = func(l *lua.State, _ lua.Debug) {
		if fault == "" {
			steps += luaHookInterval
			switch {
			case ctx.Err() != nil:
				fault = "execution cancelled: " + ctx.Err().Error()
			case steps > r.maxSteps:
				fault = "too many steps (limit " + strconv.FormatUint(r.maxSteps, 10) + ")"
			default:
				return
			}
			lua.SetDebugHook(l, hook, lua.MaskCount, 1)
		}
		lua.Errorf(l, "%s", fault)
	}
	lua.SetDebugHook(l, hook, lua.MaskCount, luaHookInterval)
}

func newLuaState(out *capture) *lua.State {
	l := lua.NewState()
	for _, lib := range luaLibraries {
		lua.Require(l, lib.name, lib.open, true)
		l.Pop(1)
	}
	for _, name := range []string{"dofile", "loadfile", "require"} {
		l.PushNil()
		l.SetGlobal(name)
	}
	l.Register("print", func(l *lua.State) int {
		n := l.Top()
		parts := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			s, _ := lua.ToStringMeta(l, i)
			parts = append(parts, s)
			l.Pop(1)
		}
		out.Line(strings.Join(parts, "\t"))
		return 0
	})
	return l
}

func luaError(err error) string {
	return strings.TrimSpace(err.Error())
}

// snapshotLuaGlobals copies the fresh global table into the registry so
// reassigned builtins can be told apart from untouched ones.
func snapshotLuaGlobals(l *lua.State) {
	l.NewTable()
	snap := l.Top()
	l.PushGlobalTable()
	g := l.Top()
	l.PushNil()
	for l.Next(g) {
		l.PushValue(-2)
		l.Insert(-2)
		l.RawSet(snap)
	}
	l.Pop(1)
	l.SetField(lua.RegistryIndex, luaBaselineKey)
}

// luaBindings returns every string-keyed global that is new or no longer
// holds its baseline value.
func luaBindings(l *lua.State) Bindings {
	b := Bindings{}
	l.Field(lua.RegistryIndex, luaBaselineKey)
	base := l.Top()
	l.PushGlobalTable()
	g := l.Top()
	l.PushNil()
	for l.Next(g) {
		if l.TypeOf(-2) == lua.TypeString {
			l.PushValue(-2)
			l.RawGet(base)
			same := l.RawEqual(-1, -2)
			l.Pop(1)
			if !same {
				name, _ := l.ToString(-2)
				b[name] = luaToGo(l, -1, 0)
			}
		}
		l.Pop(1)
	}
	l.Pop(2)
	return b
}

func luaToGo(l *lua.State, index, depth int) any {
	switch t := l.TypeOf(index); t {
	case lua.TypeNil:
		return nil
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s
	case lua.TypeNumber:
		f, _ := l.ToNumber(index)
		return normalizeNumber(f)
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeTable:
		if depth > maxConvertDepth {
			return Opaque{Type: "table", Repr: "..."}
		}
		return luaTableToGo(l, index, depth)
	default:
		name := luaTypeName(t)
		return Opaque{Type: name, Repr: name}
	}
}

// luaTableToGo returns a []any for sequences 1..n and a map otherwise.
func luaTableToGo(l *lua.State, index, depth int) any {
	index = l.AbsIndex(index)

	isArray := true
	maxIndex, count := 0, 0
	l.PushNil()
	for l.Next(index) {
		count++
		if isArray {
			if l.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := l.ToInteger(-2); ok && idx > 0 {
				maxIndex = max(maxIndex, idx)
			} else {
				isArray = false
			}
		}
		l.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		elems := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			l.RawGetInt(index, i)
			elems = append(elems, luaToGo(l, -1, depth+1))
			l.Pop(1)
		}
		return elems
	}

	m := make(map[string]any, count)
	l.PushNil()
	for l.Next(index) {
		m[luaKey(l, -2)] = luaToGo(l, -1, depth+1)
		l.Pop(1)
	}
	return m
}

// luaKey formats a table key without converting it in place, which would
// confuse Next.
func luaKey(l *lua.State, index int) string {
	switch l.TypeOf(index) {
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s
	case lua.TypeNumber:
		f, _ := l.ToNumber(index)
		if v, ok := normalizeNumber(f).(int64); ok {
			return strconv.FormatInt(v, 10)
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	case lua.TypeBoolean:
		return strconv.FormatBool(l.ToBoolean(index))
	default:
		return luaTypeName(l.TypeOf(index))
	}
}

func luaTypeName(t lua.Type) string {
	switch t {
	case lua.TypeFunction:
		return "function"
	case lua.TypeUserData, lua.TypeLightUserData:
		return "userdata"
	case lua.TypeThread:
		return "thread"
	case lua.TypeTable:
		return "table"
	default:
		return "unknown"
	}
}
