package lua

import (
	"bytes"
	"testing"
	"time"

	glua "github.com/yuin/gopher-lua"
)

func TestNewState(t *testing.T) {
	state, err := NewState()
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	defer state.Close()

	if state.closed {
		t.Error("NewState() returned closed state")
	}
	if state.L == nil {
		t.Error("NewState() L is nil")
	}
}

func TestStateWithOptions(t *testing.T) {
	state, err := NewState(
		WithExecutionTimeout(2*time.Second),
		WithStatementLimit(500000),
		WithCallStackSize(64),
	)
	if err != nil {
		t.Fatalf("NewState() with options error = %v", err)
	}
	defer state.Close()

	if state.executionTimeout != 2*time.Second {
		t.Errorf("executionTimeout = %v, want 2s", state.executionTimeout)
	}
	if state.statementLimit != 500000 {
		t.Errorf("statementLimit = %d, want 500000", state.statementLimit)
	}
	if state.callStackSize != 64 {
		t.Errorf("callStackSize = %d, want 64", state.callStackSize)
	}
}

func TestStateDoString(t *testing.T) {
	state, err := NewState()
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	defer state.Close()

	if err := state.DoString(`x = 1 + 1`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if v := state.L.GetGlobal("x"); v != glua.LNumber(2) {
		t.Errorf("x = %v, want 2", v)
	}

	if err := state.DoString(`this is not lua`); err == nil {
		t.Error("DoString() with syntax error should fail")
	}
}

func TestStateOutput(t *testing.T) {
	var out bytes.Buffer
	state, err := NewState(WithOutput(&out))
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	defer state.Close()

	if err := state.DoString(`print("a", 1, true, nil)`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if got, want := out.String(), "a\t1\ttrue\tnil\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestStateSetArgs(t *testing.T) {
	state, err := NewState()
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	defer state.Close()

	state.SetArgs([]any{"one", 2.0, map[string]any{"debug": true}})
	if err := state.DoString(`n = #arg; first = arg[1]; second = arg[2] * 2; debug = arg[3].debug`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	tests := []struct {
		name string
		want glua.LValue
	}{
		{"n", glua.LNumber(3)},
		{"first", glua.LString("one")},
		{"second", glua.LNumber(4)},
		{"debug", glua.LTrue},
	}
	for _, tt := range tests {
		if v := state.L.GetGlobal(tt.name); v != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, v, tt.want)
		}
	}
}

func TestStateClose(t *testing.T) {
	state, err := NewState()
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}

	if err := state.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if !state.closed {
		t.Error("closed = false after Close()")
	}
	if err := state.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := state.DoString(`x = 1`); err != ErrStateClosed {
		t.Errorf("DoString() after Close() error = %v, want ErrStateClosed", err)
	}
	state.SetArgs([]any{"x"})
}
