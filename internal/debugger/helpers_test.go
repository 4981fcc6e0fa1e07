package debugger

import (
	"sync"
	"testing"
	"time"
)

// fakeScope is a Scope backed by a map. Names missing from the map are not
// active.
type fakeScope struct {
	mu   sync.Mutex
	vars map[string]Value
	line int
}

func newFakeScope(vars map[string]Value) *fakeScope {
	return &fakeScope{vars: vars}
}

func (f *fakeScope) Lookup(name string) (Value, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vars[name]
	return v, ok
}

func (f *fakeScope) CurrentLine() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.line
}

func (f *fakeScope) set(name string, v Value) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vars[name] = v
}

// recorder is an Observer that records notifications.
type recorder struct {
	lines chan LineBreak

	mu         sync.Mutex
	registered int
	variables  int
	finished   int
}

func newRecorder() *recorder {
	return &recorder{lines: make(chan LineBreak, 16)}
}

func (r *recorder) Register(*Session) {
	r.mu.Lock()
	r.registered++
	r.mu.Unlock()
}

func (r *recorder) VariablesChanged(*Session) {
	r.mu.Lock()
	r.variables++
	r.mu.Unlock()
}

func (r *recorder) LineChanged(lb LineBreak, _ *Session) {
	r.lines <- lb
}

func (r *recorder) SessionFinished(*Session) {
	r.mu.Lock()
	r.finished++
	r.mu.Unlock()
}

func (r *recorder) counts() (variables, finished int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.variables, r.finished
}

func (r *recorder) waitLine(t *testing.T) LineBreak {
	t.Helper()
	select {
	case lb := <-r.lines:
		return lb
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a pause")
		return LineBreak{}
	}
}

func (r *recorder) expectNoLine(t *testing.T) {
	t.Helper()
	select {
	case lb := <-r.lines:
		t.Fatalf("unexpected pause at line %d (%s)", lb.Line, lb.Reason)
	default:
	}
}

func newTestSession(rec *recorder, reg *Registry, opts ...AttachOption) *Session {
	cfg := sessionConfig{
		observer:     rec,
		breakpoints:  reg,
		pollInterval: 5 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return newSession(Identity{SessionID: "s1", UserID: "alice"}, "exec-1", cfg)
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the execution goroutine")
		return nil
	}
}
