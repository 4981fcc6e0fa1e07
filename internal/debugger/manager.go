package debugger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/dshills/luadebug/internal/event"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Sessions log through a child named "session".
func WithLogger(log logr.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// WithBus sets the bus notifications are published on.
func WithBus(bus *event.Bus) Option {
	return func(m *Manager) {
		m.bus = bus
	}
}

// WithRegistry shares a breakpoint registry with the manager.
func WithRegistry(r *Registry) Option {
	return func(m *Manager) {
		if r != nil {
			m.breakpoints = r
		}
	}
}

// WithPollInterval sets the gate poll interval of new sessions.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.defaults.pollInterval = d
	}
}

// WithStopOnEntry makes new sessions park before their first line.
func WithStopOnEntry(stop bool) Option {
	return func(m *Manager) {
		m.defaults.stopOnEntry = stop
	}
}

// WithStepOverMode sets the step-over mode of new sessions.
func WithStepOverMode(mode StepOverMode) Option {
	return func(m *Manager) {
		m.defaults.stepOver = mode
	}
}

// Manager keeps the live sessions and the breakpoints of all users. It is the
// Observer of every session it attaches and republishes their notifications
// on the event bus.
type Manager struct {
	log         logr.Logger
	bus         *event.Bus
	breakpoints *Registry
	defaults    sessionConfig

	mu       sync.RWMutex
	sessions map[string]*Session
}

var _ Observer = (*Manager)(nil)

// NewManager creates a manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		log:         logr.Discard(),
		breakpoints: NewRegistry(),
		defaults:    sessionConfig{pollInterval: DefaultPollInterval},
		sessions:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the breakpoint registry.
func (m *Manager) Registry() *Registry {
	return m.breakpoints
}

// Attach creates and registers a session for id.
func (m *Manager) Attach(id Identity, opts ...AttachOption) (*Session, error) {
	if id.SessionID == "" {
		id.SessionID = uuid.NewString()
	}

	cfg := m.defaults
	cfg.log = m.log.WithName("session")
	cfg.observer = m
	cfg.breakpoints = m.breakpoints
	for _, opt := range opts {
		opt(&cfg)
	}

	s := newSession(id, uuid.NewString(), cfg)
	if err := m.register(s); err != nil {
		return nil, err
	}
	m.log.Info("session attached", "session", id.SessionID, "user", id.UserID, "execution", s.executionID)
	return s, nil
}

// Session returns the live session with the given id.
func (m *Manager) Session(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s, nil
}

// Sessions returns the live sessions ordered by id.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	result := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, s)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID() < result[j].ID()
	})
	return result
}

// SetCommand sets the pending command of a session.
func (m *Manager) SetCommand(sessionID string, cmd Command) error {
	s, err := m.Session(sessionID)
	if err != nil {
		return err
	}
	s.SetCommand(cmd)
	return nil
}

// AddBreakpoint adds a breakpoint for the user of a session.
func (m *Manager) AddBreakpoint(sessionID, path string, line int) (Breakpoint, error) {
	s, err := m.Session(sessionID)
	if err != nil {
		return Breakpoint{}, err
	}
	bp, added, err := m.breakpoints.Add(s.UserID(), path, line)
	if err != nil {
		return Breakpoint{}, err
	}
	if added {
		publish(m, TopicBreakpointAdded, BreakpointChange{SessionID: sessionID, Breakpoint: bp})
	}
	return bp, nil
}

// RemoveBreakpoint removes a breakpoint of the user of a session. It reports
// whether the breakpoint existed.
func (m *Manager) RemoveBreakpoint(sessionID, path string, line int) (bool, error) {
	s, err := m.Session(sessionID)
	if err != nil {
		return false, err
	}
	bp, removed := m.breakpoints.Remove(s.UserID(), path, line)
	if removed {
		publish(m, TopicBreakpointRemoved, BreakpointChange{SessionID: sessionID, Breakpoint: bp})
	}
	return removed, nil
}

// SetBreakpoints replaces the breakpoints of the session's user in one file.
func (m *Manager) SetBreakpoints(sessionID, path string, lines []int) ([]Breakpoint, error) {
	s, err := m.Session(sessionID)
	if err != nil {
		return nil, err
	}
	path = NormalizePath(path)

	before := make(map[Breakpoint]bool)
	for _, bp := range m.breakpoints.List(s.UserID()) {
		if bp.Path == path {
			before[bp] = true
		}
	}
	after := m.breakpoints.Replace(s.UserID(), path, lines)

	for _, bp := range after {
		if before[bp] {
			delete(before, bp)
			continue
		}
		publish(m, TopicBreakpointAdded, BreakpointChange{SessionID: sessionID, Breakpoint: bp})
	}
	for bp := range before {
		publish(m, TopicBreakpointRemoved, BreakpointChange{SessionID: sessionID, Breakpoint: bp})
	}
	return after, nil
}

// Breakpoints returns the breakpoints of a user.
func (m *Manager) Breakpoints(userID string) []Breakpoint {
	return m.breakpoints.List(userID)
}

// Terminate terminates a session.
func (m *Manager) Terminate(sessionID string) error {
	s, err := m.Session(sessionID)
	if err != nil {
		return err
	}
	s.Terminate()
	return nil
}

// TerminateAll terminates every live session.
func (m *Manager) TerminateAll() {
	for _, s := range m.Sessions() {
		s.Terminate()
	}
}

// Register adds a session to the table.
func (m *Manager) Register(s *Session) {
	if err := m.register(s); err != nil {
		m.log.Error(err, "register session", "session", s.ID())
	}
}

func (m *Manager) register(s *Session) error {
	m.mu.Lock()
	if _, ok := m.sessions[s.ID()]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionExists, s.ID())
	}
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	publish(m, TopicSessionRegistered, SessionInfo{Session: s.Identity(), ExecutionID: s.ExecutionID()})
	return nil
}

// VariablesChanged publishes the session snapshot.
func (m *Manager) VariablesChanged(s *Session) {
	publish(m, TopicVariablesUpdated, s.Snapshot())
}

// LineChanged publishes the pause location.
func (m *Manager) LineChanged(lb LineBreak, s *Session) {
	publish(m, TopicLineChanged, lb)
}

// SessionFinished removes the session from the table and publishes it.
func (m *Manager) SessionFinished(s *Session) {
	m.mu.Lock()
	if cur, ok := m.sessions[s.ID()]; ok && cur == s {
		delete(m.sessions, s.ID())
	}
	m.mu.Unlock()

	m.log.Info("session finished", "session", s.ID(), "execution", s.ExecutionID())
	publish(m, TopicSessionFinished, SessionInfo{Session: s.Identity(), ExecutionID: s.ExecutionID()})
}

// publish sends payload on the bus, if one is running.
func publish[T any](m *Manager, topic event.Topic, payload T) {
	if m.bus == nil || !m.bus.IsRunning() {
		return
	}
	if err := m.bus.Publish(context.Background(), event.NewEvent(topic, payload, eventSource)); err != nil {
		m.log.V(1).Info("publish failed", "topic", topic, "error", err.Error())
	}
}
