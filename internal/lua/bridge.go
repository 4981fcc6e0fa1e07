package lua

import (
	"errors"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luadebug/internal/debugger"
)

// Bridge converts between Go and Lua values.
type Bridge struct {
	L *lua.LState
}

// NewBridge creates a new Bridge for the given Lua state.
func NewBridge(L *lua.LState) *Bridge {
	return &Bridge{L: L}
}

// Classify decides the debugger kind of a Lua value. Tables are converted
// with ToGoValue and rendered as JSON.
func (b *Bridge) Classify(lv lua.LValue) debugger.Value {
	switch v := lv.(type) {
	case nil, *lua.LNilType:
		return debugger.Absent()
	case lua.LBool:
		return debugger.Bool(bool(v))
	case lua.LNumber:
		return debugger.Number(float64(v))
	case lua.LString:
		return debugger.String(string(v))
	case *lua.LFunction:
		return debugger.Function()
	case *lua.LUserData, *lua.LState, lua.LChannel:
		return debugger.Native()
	case *lua.LTable:
		return debugger.Structured(b.ToGoValue(v))
	default:
		return debugger.Null()
	}
}

// errCycle fails JSON encoding of a table that contains itself.
var errCycle = errors.New("table contains a reference to itself")

// cycle stands in for a table already being converted.
type cycle struct{}

func (cycle) MarshalJSON() ([]byte, error) {
	return nil, errCycle
}

// ToGoValue converts a Lua value to a Go value. A table that contains itself
// converts to a value that cannot be encoded as JSON.
func (b *Bridge) ToGoValue(lv lua.LValue) any {
	return b.toGoValue(lv, make(map[*lua.LTable]bool))
}

func (b *Bridge) toGoValue(lv lua.LValue, visiting map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if debugger.IsExactInt(f) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visiting[v] {
			return cycle{}
		}
		visiting[v] = true
		defer delete(visiting, v)
		return b.tableToGo(v, visiting)
	case *lua.LUserData:
		return v.Value
	default:
		return nil
	}
}

// tableToGo converts a Lua table to a slice when its keys are exactly 1..n,
// and to a map otherwise.
func (b *Bridge) tableToGo(t *lua.LTable, visiting map[*lua.LTable]bool) any {
	isArray := true
	maxN, count := 0, 0
	t.ForEach(func(k, _ lua.LValue) {
		count++
		if kn, ok := k.(lua.LNumber); ok {
			n := int(kn)
			if float64(n) == float64(kn) && n > 0 {
				if n > maxN {
					maxN = n
				}
				return
			}
		}
		isArray = false
	})

	if isArray && maxN > 0 && count == maxN {
		arr := make([]any, maxN)
		for i := 1; i <= maxN; i++ {
			arr[i-1] = b.toGoValue(t.RawGetInt(i), visiting)
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = debugger.FormatNumber(float64(kv))
		default:
			key = k.String()
		}
		m[key] = b.toGoValue(v, visiting)
	})
	return m
}

// ToLuaValue converts a decoded JSON value to a Lua value: nil, bool,
// float64, string, []any and map[string]any. Other values convert to nil.
func (b *Bridge) ToLuaValue(v any) lua.LValue {
	switch val := v.(type) {
	case bool:
		return lua.LBool(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		t := b.L.NewTable()
		for i, e := range val {
			t.RawSetInt(i+1, b.ToLuaValue(e))
		}
		return t
	case map[string]any:
		t := b.L.NewTable()
		for k, e := range val {
			t.RawSetString(k, b.ToLuaValue(e))
		}
		return t
	default:
		return lua.LNil
	}
}
