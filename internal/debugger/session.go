package debugger

import (
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// State is the lifecycle state of a session.
type State int

const (
	// StateRunning means the script is executing.
	StateRunning State = iota
	// StatePaused means the execution goroutine is parked.
	StatePaused
	// StateTerminated means the controller terminated the session and the
	// script is unwinding.
	StateTerminated
	// StateFinished means the outermost frame exited.
	StateFinished
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateTerminated:
		return "terminated"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// sessionConfig holds what a session takes from its manager.
type sessionConfig struct {
	log          logr.Logger
	observer     Observer
	breakpoints  *Registry
	pollInterval time.Duration
	stopOnEntry  bool
	stepOver     StepOverMode
}

// AttachOption overrides manager defaults for one session.
type AttachOption func(*sessionConfig)

// StopOnEntry parks the session before its first line.
func StopOnEntry(stop bool) AttachOption {
	return func(c *sessionConfig) {
		c.stopOnEntry = stop
	}
}

// StepOver selects the step-over mode of the session.
func StepOver(mode StepOverMode) AttachOption {
	return func(c *sessionConfig) {
		c.stepOver = mode
	}
}

// Session is one debugging attachment to a script execution.
//
// The On* hooks must be called from the execution goroutine only. Every other
// method is safe for concurrent use.
type Session struct {
	identity    Identity
	executionID string
	log         logr.Logger
	observer    Observer
	breakpoints *Registry

	commands *CommandChannel
	gate     *Gate
	frames   FrameStack
	stepper  stepOver

	// Owned by the execution goroutine.
	prev    position
	started bool

	mu        sync.RWMutex
	state     State
	lineBreak *LineBreak
	snapshot  *Snapshot
	stack     []StackEntry

	terminateOnce sync.Once
	finishOnce    sync.Once
	finished      chan struct{}
}

func newSession(id Identity, executionID string, cfg sessionConfig) *Session {
	initial := CommandContinue
	if cfg.stopOnEntry {
		initial = CommandPause
	}
	if cfg.observer == nil {
		cfg.observer = NopObserver{}
	}
	if cfg.breakpoints == nil {
		cfg.breakpoints = NewRegistry()
	}
	return &Session{
		identity:    id,
		executionID: executionID,
		log:         cfg.log.WithValues("session", id.SessionID, "execution", executionID),
		observer:    cfg.observer,
		breakpoints: cfg.breakpoints,
		commands:    NewCommandChannel(initial),
		gate:        NewGate(!cfg.stopOnEntry, cfg.pollInterval),
		stepper:     stepOver{mode: cfg.stepOver},
		finished:    make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.identity.SessionID }

// UserID returns the id of the user the session belongs to.
func (s *Session) UserID() string { return s.identity.UserID }

// Identity returns the session identity.
func (s *Session) Identity() Identity { return s.identity }

// ExecutionID returns the id of this attachment.
func (s *Session) ExecutionID() string { return s.executionID }

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Command returns the pending command.
func (s *Session) Command() Command {
	return s.commands.Get()
}

// LineBreak returns the location of the current pause. It reports false when
// the session has not paused yet or has finished.
func (s *Session) LineBreak() (LineBreak, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lineBreak == nil {
		return LineBreak{}, false
	}
	return *s.lineBreak, true
}

// Snapshot returns the variables captured at the latest pause. It is empty
// before the first pause and after the session finished.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return Snapshot{Session: s.identity, ExecutionID: s.executionID}
	}
	snap := *s.snapshot
	snap.Variables = append([]Variable(nil), s.snapshot.Variables...)
	return snap
}

// Stack returns the call stack captured at the latest pause, top first.
func (s *Session) Stack() []StackEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]StackEntry(nil), s.stack...)
}

// Depth returns the number of active frames.
func (s *Session) Depth() int {
	return s.frames.Depth()
}

// Finished is closed when the session has finished.
func (s *Session) Finished() <-chan struct{} {
	return s.finished
}

// Terminated reports whether the session was terminated.
func (s *Session) Terminated() bool {
	return s.gate.Terminated()
}

// SetCommand replaces the pending command. Any command other than
// CommandPause resumes a parked session; CommandPause parks a running one at
// its next line.
func (s *Session) SetCommand(cmd Command) {
	s.commands.Set(cmd)
	if cmd == CommandPause {
		s.gate.Hold()
	} else {
		s.gate.Resume()
	}
	s.log.V(1).Info("command set", "command", cmd)
}

// Terminate releases a parked execution goroutine and makes every following
// hook return ErrSessionTerminated. It is idempotent.
func (s *Session) Terminate() {
	s.terminateOnce.Do(func() {
		s.gate.Terminate()
		s.mu.Lock()
		if s.state != StateFinished {
			s.state = StateTerminated
		}
		s.mu.Unlock()
		s.log.Info("session terminated")
	})
}

// Done is closed once the session is terminated or closed.
func (s *Session) Done() <-chan struct{} {
	return s.gate.Done()
}

// Close finishes the session if the engine did not, and terminates it.
func (s *Session) Close() {
	s.finish()
	s.gate.Terminate()
}

// OnEnter records that the engine entered a unit.
func (s *Session) OnEnter(unit *Unit, scope Scope) {
	depth := s.frames.Push(Frame{Unit: unit, Scope: scope})
	s.log.V(1).Info("enter", "function", unit.Name, "source", unit.Source, "depth", depth)
}

// OnExit records that the engine left the top unit. Leaving the outermost
// unit finishes the session.
func (s *Session) OnExit(byError bool) {
	f, ok := s.frames.Pop()
	if !ok {
		s.log.V(1).Info("exit with empty frame stack")
		return
	}
	depth := s.frames.Depth()
	s.log.V(1).Info("exit", "function", f.Unit.Name, "byError", byError, "depth", depth)
	if depth == 0 {
		s.finish()
	}
}

// OnUncapturedError reports a script error. It does not pause.
func (s *Session) OnUncapturedError(err error) {
	s.log.Error(err, "uncaptured script error")
}

// OnLineChange is called before the engine executes line in the top frame.
// It returns once the session may run the line, or ErrSessionTerminated.
func (s *Session) OnLineChange(line int) error {
	if s.gate.Terminated() {
		return ErrSessionTerminated
	}
	cur := position{line: line, depth: s.frames.Depth()}

	if !s.proceeding() {
		// Parked before dispatch: the line counts as handled.
		reason := ReasonPause
		if !s.started {
			reason = ReasonEntry
		}
		s.started = true
		s.prev = cur
		return s.park(cur.line, reason)
	}
	s.started = true

	err := s.process(cur)
	s.prev = cur
	return err
}

// OnDebuggerStatement stops at line like a breakpoint unless breakpoints are
// skipped.
func (s *Session) OnDebuggerStatement(line int) error {
	if s.gate.Terminated() {
		return ErrSessionTerminated
	}
	if s.commands.Get() == CommandSkipAllBreakpoints {
		return nil
	}
	s.commands.Set(CommandStepOver)
	s.stepper.reset()
	return s.pause(line, ReasonPause)
}

func (s *Session) proceeding() bool {
	return s.gate.Executing() || s.commandProceeds()
}

func (s *Session) commandProceeds() bool {
	return s.commands.Get().proceeds()
}

func (s *Session) process(cur position) error {
	cmd, gen := s.commands.Load()
	if cmd == CommandSkipAllBreakpoints {
		return nil
	}

	if s.atBreakpoint(cur.line) {
		s.commands.Set(CommandStepOver)
		s.stepper.reset()
		return s.pause(cur.line, ReasonBreakpoint)
	}

	switch cmd {
	case CommandStepInto:
		return s.pause(cur.line, ReasonStep)
	case CommandStepOver:
		if s.stepper.observe(cur, s.prev, gen) {
			return s.pause(cur.line, ReasonStep)
		}
	}
	return nil
}

func (s *Session) atBreakpoint(line int) bool {
	top, ok := s.frames.Top()
	if !ok {
		return false
	}
	return s.breakpoints.Contains(s.identity.UserID, top.Unit.Source, line)
}

// pause marks the session as not executing, then reports and parks.
func (s *Session) pause(line int, reason Reason) error {
	s.gate.Hold()
	return s.park(line, reason)
}

func (s *Session) park(line int, reason Reason) error {
	s.setState(StatePaused)
	s.report(line, reason)

	err := s.gate.Wait(s.commandProceeds)
	if err != nil {
		return err
	}
	s.setState(StateRunning)
	return nil
}

// report captures the snapshot and notifies the observer.
func (s *Session) report(line int, reason Reason) {
	lb := LineBreak{
		Session:     s.identity,
		ExecutionID: s.executionID,
		Line:        line,
		Reason:      reason,
	}
	snap := Snapshot{Session: s.identity, ExecutionID: s.executionID}

	top, ok := s.frames.Top()
	if ok {
		lb.Path = top.Unit.Source
		snap.Variables = captureVariables(top)
	}
	stack := s.captureStack(line)

	s.mu.Lock()
	s.lineBreak = &lb
	s.snapshot = &snap
	s.stack = stack
	s.mu.Unlock()

	s.log.V(1).Info("paused", "path", lb.Path, "line", line, "reason", reason, "variables", len(snap.Variables))
	s.observer.VariablesChanged(s)
	s.observer.LineChanged(lb, s)
}

func (s *Session) captureStack(line int) []StackEntry {
	frames := s.frames.Frames()
	stack := make([]StackEntry, 0, len(frames))
	for i, f := range frames {
		entry := StackEntry{
			Name:        f.Unit.Name,
			Source:      f.Unit.Source,
			LineDefined: f.Unit.LineDefined,
		}
		if i == 0 {
			entry.Line = line
		} else if loc, ok := f.Scope.(LineLocator); ok {
			entry.Line = loc.CurrentLine()
		}
		stack = append(stack, entry)
	}
	return stack
}

func captureVariables(f Frame) []Variable {
	if f.Unit == nil || f.Scope == nil {
		return nil
	}
	vars := make([]Variable, 0, len(f.Unit.Names))
	for _, name := range f.Unit.Names {
		v, ok := f.Scope.Lookup(name)
		if !ok {
			continue
		}
		vars = append(vars, Variable{Name: name, Value: v.Stringify(), Kind: v.Kind()})
	}
	return vars
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateFinished || s.state == StateTerminated {
		return
	}
	s.state = state
}

// finish clears the published state and tells the observer, once.
func (s *Session) finish() {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		hadSnapshot := s.snapshot != nil
		s.snapshot = nil
		s.lineBreak = nil
		s.stack = nil
		s.state = StateFinished
		s.mu.Unlock()

		if hadSnapshot {
			s.observer.VariablesChanged(s)
		}
		s.observer.SessionFinished(s)
		s.log.V(1).Info("session finished")
		close(s.finished)
	})
}
