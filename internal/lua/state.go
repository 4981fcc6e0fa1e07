package lua

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// Default limits for Lua state.
const (
	DefaultStatementLimit = 0 // unlimited
	DefaultCallStackSize  = 256
)

// State wraps gopher-lua with the sandbox and output redirection used for
// debugged scripts.
//
// gopher-lua's LState is not goroutine-safe. A run holds the state mutex from
// start to end, so a State executes one script at a time.
type State struct {
	L *lua.LState

	mu sync.Mutex

	executionTimeout time.Duration
	statementLimit   int64
	callStackSize    int
	output           io.Writer

	sandbox *Sandbox
	bridge  *Bridge

	closed bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithExecutionTimeout bounds the wall time of a run, pauses included.
// Zero disables the timeout.
func WithExecutionTimeout(d time.Duration) StateOption {
	return func(s *State) {
		s.executionTimeout = d
	}
}

// WithStatementLimit sets the maximum number of statements a run may execute.
// Zero means unlimited.
func WithStatementLimit(limit int64) StateOption {
	return func(s *State) {
		s.statementLimit = limit
	}
}

// WithCallStackSize sets the Lua call stack size.
func WithCallStackSize(n int) StateOption {
	return func(s *State) {
		if n > 0 {
			s.callStackSize = n
		}
	}
}

// WithOutput sets where print writes. The default is os.Stdout.
func WithOutput(w io.Writer) StateOption {
	return func(s *State) {
		if w != nil {
			s.output = w
		}
	}
}

// NewState creates a new sandboxed Lua state.
func NewState(opts ...StateOption) (*State, error) {
	state := &State{
		statementLimit: DefaultStatementLimit,
		callStackSize:  DefaultCallStackSize,
		output:         os.Stdout,
	}
	for _, opt := range opts {
		opt(state)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: state.callStackSize,
	})
	state.L = L

	openSafeLibraries(L)

	state.sandbox = NewSandbox(L, state.statementLimit)
	state.sandbox.SetOutput(state.output)
	state.sandbox.Install()
	state.bridge = NewBridge(L)

	return state, nil
}

// openSafeLibraries opens only safe Lua standard libraries.
func openSafeLibraries(L *lua.LState) {
	lua.OpenPackage(L)
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	lua.OpenCoroutine(L)

	// Not opened: io, os, debug and channel.
}

// DoString executes a Lua chunk without instrumentation. It prepares the
// globals a script expects before the debugged run.
func (s *State) DoString(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}
	s.sandbox.ResetStatementCount()

	return s.doWithRecovery(func() error {
		return s.L.DoString(code)
	})
}

// call runs fn with no arguments in protected mode.
func (s *State) call(fn *lua.LFunction) error {
	top := s.L.GetTop()
	defer s.L.SetTop(top)

	return s.doWithRecovery(func() error {
		s.L.Push(fn)
		return s.L.PCall(0, lua.MultRet, nil)
	})
}

// doWithRecovery executes a function with panic recovery.
func (s *State) doWithRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// SetGlobal sets a global variable.
func (s *State) SetGlobal(name string, value lua.LValue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.L.SetGlobal(name, value)
}

// SetArgs exposes script arguments as the global table arg. Arguments may
// be any value ToLuaValue converts.
func (s *State) SetArgs(args []any) {
	s.SetGlobal("arg", s.bridge.ToLuaValue(args))
}

// Close releases all resources associated with the Lua state.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}
