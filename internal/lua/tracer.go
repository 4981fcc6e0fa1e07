package lua

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luadebug/internal/debugger"
)

// Hooks receives execution events from a Tracer. *debugger.Session
// implements it.
type Hooks interface {
	OnEnter(unit *debugger.Unit, scope debugger.Scope)
	OnExit(byError bool)
	OnLineChange(line int) error
	OnDebuggerStatement(line int) error
	OnUncapturedError(err error)
	Terminate()
	Terminated() bool
	Done() <-chan struct{}
	Close()
}

var _ Hooks = (*debugger.Session)(nil)

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithLogger sets the tracer logger.
func WithLogger(log logr.Logger) TracerOption {
	return func(t *Tracer) {
		t.log = log
	}
}

// Tracer runs a compiled program on a State and reports its execution to
// Hooks.
//
// Frames are tracked by function identity. Entering a function is reported
// by the function itself; leaving it is noticed at the next hook that runs
// in a caller, or when the run ends.
type Tracer struct {
	state *State
	hooks Hooks
	prog  *Program
	log   logr.Logger

	frames   []*lua.LFunction
	abortErr error
}

// NewTracer creates a tracer for one run of prog.
func NewTracer(state *State, hooks Hooks, prog *Program, opts ...TracerOption) *Tracer {
	t := &Tracer{
		state: state,
		hooks: hooks,
		prog:  prog,
		log:   logr.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run executes the program to completion. It returns nil when the script
// finishes normally, debugger.ErrSessionTerminated when the session was
// terminated, ErrExecutionTimeout when the state's timeout expired, the
// context error when ctx was canceled, and the script error otherwise.
// The hooks are closed when Run returns.
func (t *Tracer) Run(ctx context.Context) error {
	s := t.state
	s.mu.Lock()
	defer s.mu.Unlock()

	defer t.hooks.Close()
	if s.closed {
		return ErrStateClosed
	}

	outer := ctx
	var cancel context.CancelFunc
	if s.executionTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.executionTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	// A paused script only notices cancellation through its session, and a
	// loop without statements only notices termination through ctx.
	runDone := make(chan struct{})
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		select {
		case <-ctx.Done():
			t.hooks.Terminate()
		case <-t.hooks.Done():
			cancel()
		case <-runDone:
		}
	}()
	defer func() {
		close(runDone)
		<-watchDone
	}()

	s.sandbox.ResetStatementCount()
	t.frames = t.frames[:0]
	t.abortErr = nil
	t.install()

	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	t.log.V(1).Info("running script", "source", t.prog.Source)
	fn := s.L.NewFunctionFromProto(t.prog.Proto)
	runErr := s.call(fn)

	err := t.classify(outer, ctx, runErr)
	if err != nil && t.reportable(err) {
		t.hooks.OnUncapturedError(err)
	}
	for len(t.frames) > 0 {
		t.pop(runErr != nil)
	}

	t.log.V(1).Info("script ended", "source", t.prog.Source, "statements", s.sandbox.StatementCount(), "error", err)
	return err
}

func (t *Tracer) classify(outer, ctx context.Context, runErr error) error {
	switch {
	case runErr == nil:
		return nil
	case errors.Is(t.abortErr, ErrStatementLimit):
		return fmt.Errorf("%w: %v", ErrStatementLimit, runErr)
	case outer.Err() != nil:
		return outer.Err()
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrExecutionTimeout
	case t.hooks.Terminated():
		return debugger.ErrSessionTerminated
	default:
		return runErr
	}
}

func (t *Tracer) reportable(err error) bool {
	return !errors.Is(err, debugger.ErrSessionTerminated) &&
		!errors.Is(err, ErrExecutionTimeout) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func (t *Tracer) install() {
	L := t.state.L
	L.SetGlobal(hookLine, L.NewFunction(t.lineHook))
	L.SetGlobal(hookEnter, L.NewFunction(t.enterHook))
	L.SetGlobal(hookPass, L.NewFunction(passHook))
	L.SetGlobal(hookDebugger, L.NewFunction(t.debuggerHook))
}

func (t *Tracer) lineHook(L *lua.LState) int {
	line := L.CheckInt(1)
	if t.state.sandbox.CountStatement() {
		t.abort(L, ErrStatementLimit)
	}
	// Coroutines run on their own LState and are not traced.
	if L != t.state.L {
		return 0
	}

	t.sync(t.luaFrames(L))
	if err := t.hooks.OnLineChange(line); err != nil {
		t.abort(L, err)
	}
	return 0
}

func (t *Tracer) enterHook(L *lua.LState) int {
	idx := L.CheckInt(1)
	if L != t.state.L {
		return 0
	}
	if idx < 0 || idx >= len(t.prog.Units) {
		t.abort(L, fmt.Errorf("%w: %d", ErrUnknownUnit, idx))
	}

	frames := t.luaFrames(L)
	if len(frames) == 0 {
		return 0
	}
	t.sync(frames[:len(frames)-1])
	t.frames = append(t.frames, frames[len(frames)-1].fn)
	t.hooks.OnEnter(t.prog.Units[idx], &frameScope{t: t, pos: len(t.frames) - 1})
	return 0
}

func (t *Tracer) debuggerHook(L *lua.LState) int {
	if L != t.state.L {
		return 0
	}
	dbg, ok := L.GetStack(1)
	if !ok {
		return 0
	}
	if _, err := L.GetInfo("l", dbg, lua.LNil); err != nil {
		return 0
	}

	t.sync(t.luaFrames(L))
	if err := t.hooks.OnDebuggerStatement(dbg.CurrentLine); err != nil {
		t.abort(L, err)
	}
	return 0
}

// passHook returns its arguments. Wrapping a returned call in it keeps the
// returning function on the stack while the callee runs.
func passHook(L *lua.LState) int {
	return L.GetTop()
}

// abort stops the script with a Lua error. Scripts that catch it with pcall
// are stopped again at their next statement.
func (t *Tracer) abort(L *lua.LState, err error) {
	t.abortErr = err
	L.RaiseError("%s", err.Error())
}

type luaFrame struct {
	fn    *lua.LFunction
	level int
}

// luaFrames returns the Lua function frames on the stack, outermost first.
// Go functions are skipped.
func (t *Tracer) luaFrames(L *lua.LState) []luaFrame {
	var frames []luaFrame
	for level := 1; level <= t.state.callStackSize; level++ {
		dbg, ok := L.GetStack(level)
		if !ok {
			break
		}
		lv, err := L.GetInfo("f", dbg, lua.LNil)
		if err != nil {
			continue
		}
		fn, ok := lv.(*lua.LFunction)
		if !ok || fn.IsG {
			continue
		}
		frames = append(frames, luaFrame{fn: fn, level: level})
	}
	for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
		frames[i], frames[j] = frames[j], frames[i]
	}
	return frames
}

// sync pops tracked frames that are no longer on the stack.
func (t *Tracer) sync(frames []luaFrame) {
	keep := 0
	for keep < len(t.frames) && keep < len(frames) && t.frames[keep] == frames[keep].fn {
		keep++
	}
	for len(t.frames) > keep {
		t.pop(false)
	}
}

func (t *Tracer) pop(byError bool) {
	t.frames = t.frames[:len(t.frames)-1]
	t.hooks.OnExit(byError)
}

// frameScope resolves names in one tracked frame. It is only meaningful
// while the script is stopped in a hook.
type frameScope struct {
	t   *Tracer
	pos int
}

var (
	_ debugger.Scope       = (*frameScope)(nil)
	_ debugger.LineLocator = (*frameScope)(nil)
)

func (f *frameScope) debug() (*lua.Debug, bool) {
	L := f.t.state.L
	frames := f.t.luaFrames(L)
	if f.pos >= len(frames) {
		return nil, false
	}
	return L.GetStack(frames[f.pos].level)
}

// Lookup returns the value of the innermost active local called name.
func (f *frameScope) Lookup(name string) (debugger.Value, bool) {
	dbg, ok := f.debug()
	if !ok {
		return debugger.Value{}, false
	}
	L := f.t.state.L

	var found lua.LValue
	for i := 1; ; i++ {
		local, lv := L.GetLocal(dbg, i)
		if local == "" {
			break
		}
		if local == name {
			found = lv
		}
	}
	if found == nil {
		return debugger.Value{}, false
	}
	return f.t.state.bridge.Classify(found), true
}

// CurrentLine returns the line the frame is executing.
func (f *frameScope) CurrentLine() int {
	dbg, ok := f.debug()
	if !ok {
		return 0
	}
	if _, err := f.t.state.L.GetInfo("l", dbg, lua.LNil); err != nil {
		return 0
	}
	return dbg.CurrentLine
}
