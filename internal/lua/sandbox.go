package lua

import (
	"io"
	"strings"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// Sandbox restricts what debugged scripts can reach.
type Sandbox struct {
	L *lua.LState

	statementLimit int64
	statementCount int64

	output io.Writer
}

// NewSandbox creates a new sandbox for the Lua state. A statementLimit of
// zero or less disables the limit.
func NewSandbox(L *lua.LState, statementLimit int64) *Sandbox {
	return &Sandbox{
		L:              L,
		statementLimit: statementLimit,
		output:         io.Discard,
	}
}

// SetOutput sets where print writes.
func (s *Sandbox) SetOutput(w io.Writer) {
	s.output = w
}

// Install sets up the sandbox restrictions.
func (s *Sandbox) Install() {
	// Loading code from outside the program would run it uninstrumented.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		s.L.SetGlobal(name, lua.LNil)
	}

	s.installPrint()
	s.installSafeRequire()
}

// installPrint replaces print with a version writing to the sandbox output.
func (s *Sandbox) installPrint() {
	s.L.SetGlobal("print", s.L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		parts := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		io.WriteString(s.output, strings.Join(parts, "\t")+"\n")
		return 0
	}))
}

// installSafeRequire replaces require with a version that only returns the
// built-in libraries and modules preloaded from Go.
func (s *Sandbox) installSafeRequire() {
	pkg, ok := s.L.GetGlobal("package").(*lua.LTable)
	if !ok {
		s.L.SetGlobal("require", lua.LNil)
		return
	}
	s.L.SetField(pkg, "path", lua.LString(""))
	s.L.SetField(pkg, "cpath", lua.LString(""))

	safeModules := map[string]bool{
		"string":    true,
		"table":     true,
		"math":      true,
		"coroutine": true,
	}

	originalRequire := s.L.GetGlobal("require")
	s.L.SetGlobal("require", s.L.NewFunction(func(L *lua.LState) int {
		modName := L.CheckString(1)

		preload, _ := L.GetField(pkg, "preload").(*lua.LTable)
		preloaded := preload != nil && preload.RawGetString(modName) != lua.LNil
		if !safeModules[modName] && !preloaded {
			L.RaiseError("module %q is not available", modName)
			return 0
		}

		L.Push(originalRequire)
		L.Push(lua.LString(modName))
		L.Call(1, 1)
		return 1
	}))
}

// ResetStatementCount resets the statement counter.
func (s *Sandbox) ResetStatementCount() {
	atomic.StoreInt64(&s.statementCount, 0)
}

// StatementCount returns the number of statements counted since the last
// reset.
func (s *Sandbox) StatementCount() int64 {
	return atomic.LoadInt64(&s.statementCount)
}

// CountStatement counts one executed statement and reports whether the limit
// was exceeded.
func (s *Sandbox) CountStatement() bool {
	count := atomic.AddInt64(&s.statementCount, 1)
	return s.statementLimit > 0 && count > s.statementLimit
}
