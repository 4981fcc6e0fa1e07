package dap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/luadebug/internal/debugger"
	"github.com/dshills/luadebug/internal/event"
	"github.com/dshills/luadebug/internal/lua"
)

// threadID is the id of the only thread a program runs on.
const threadID = 1

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(log logr.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithUser sets the user id of sessions whose launch request names none.
func WithUser(user string) Option {
	return func(s *Server) {
		s.user = user
	}
}

// WithStateOptions sets options applied to every Lua state the server
// creates.
func WithStateOptions(opts ...lua.StateOption) Option {
	return func(s *Server) {
		s.stateOpts = append(s.stateOpts, opts...)
	}
}

// launch is a program prepared by a launch request.
type launch struct {
	session *debugger.Session
	program *lua.Program
	state   *lua.State
}

// Server serves one DAP client.
type Server struct {
	transport Transport
	manager   *debugger.Manager
	bus       *event.Bus
	log       logr.Logger

	user      string
	stateOpts []lua.StateOption

	seqMu sync.Mutex
	seq   int

	mu       sync.Mutex
	launched *launch
	running  bool
	group    *errgroup.Group
	ctx      context.Context
}

// NewServer creates a server for one client connection. Sessions are attached
// to manager; bus must be the bus manager publishes to.
func NewServer(transport Transport, manager *debugger.Manager, bus *event.Bus, opts ...Option) *Server {
	s := &Server{
		transport: transport,
		manager:   manager,
		bus:       bus,
		log:       logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve handles requests until the client disconnects, the connection fails
// or ctx is done. A running program is terminated before Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	sub, err := s.bus.Subscribe(debugger.TopicLineChanged, s.onLineChanged)
	if err != nil {
		return fmt.Errorf("subscribe to pauses: %w", err)
	}
	defer s.bus.Unsubscribe(sub)

	g, gctx := errgroup.WithContext(ctx)
	s.mu.Lock()
	s.group = g
	s.ctx = gctx
	s.mu.Unlock()

	stop := context.AfterFunc(gctx, func() { s.transport.Close() })
	defer stop()

	g.Go(func() error {
		defer s.terminate()
		return s.readLoop(gctx)
	})

	err = g.Wait()
	s.transport.Close()
	return err
}

func (s *Server) readLoop(ctx context.Context) error {
	for {
		msg, err := s.transport.ReadMessage()
		if err != nil {
			var fieldErr *dap.DecodeProtocolMessageFieldError
			if errors.As(err, &fieldErr) {
				s.log.V(1).Info("undecodable request", "error", err.Error())
				req := &dap.Request{
					ProtocolMessage: dap.ProtocolMessage{Seq: fieldErr.Seq, Type: "request"},
					Command:         fieldErr.FieldValue,
				}
				s.sendError(req, fmt.Errorf("%w: %s", ErrUnsupportedRequest, fieldErr.FieldValue))
				continue
			}
			if ctx.Err() != nil || closedConn(err) {
				return nil
			}
			return err
		}
		if s.dispatch(msg) {
			return nil
		}
	}
}

func closedConn(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, ErrTransportClosed)
}

// dispatch handles one message. It reports true when the client disconnected.
func (s *Server) dispatch(msg dap.Message) bool {
	switch req := msg.(type) {
	case *dap.InitializeRequest:
		s.onInitialize(req)
	case *dap.LaunchRequest:
		s.onLaunch(req)
	case *dap.SetBreakpointsRequest:
		s.onSetBreakpoints(req)
	case *dap.SetExceptionBreakpointsRequest:
		s.send(&dap.SetExceptionBreakpointsResponse{Response: newResponse(&req.Request)})
	case *dap.ConfigurationDoneRequest:
		s.onConfigurationDone(req)
	case *dap.ThreadsRequest:
		s.onThreads(req)
	case *dap.StackTraceRequest:
		s.onStackTrace(req)
	case *dap.ScopesRequest:
		s.onScopes(req)
	case *dap.VariablesRequest:
		s.onVariables(req)
	case *dap.EvaluateRequest:
		s.onEvaluate(req)
	case *dap.ContinueRequest:
		s.command(&req.Request, &dap.ContinueResponse{
			Response: newResponse(&req.Request),
			Body:     dap.ContinueResponseBody{AllThreadsContinued: true},
		}, debugger.CommandContinue)
	case *dap.NextRequest:
		s.command(&req.Request, &dap.NextResponse{Response: newResponse(&req.Request)}, debugger.CommandStepOver)
	case *dap.StepInRequest:
		s.command(&req.Request, &dap.StepInResponse{Response: newResponse(&req.Request)}, debugger.CommandStepInto)
	case *dap.PauseRequest:
		s.command(&req.Request, &dap.PauseResponse{Response: newResponse(&req.Request)}, debugger.CommandPause)
	case *dap.TerminateRequest:
		s.onTerminate(req)
	case *dap.DisconnectRequest:
		s.send(&dap.DisconnectResponse{Response: newResponse(&req.Request)})
		return true
	case dap.RequestMessage:
		r := req.GetRequest()
		s.sendError(r, fmt.Errorf("%w: %s", ErrUnsupportedRequest, r.Command))
	default:
		s.log.V(1).Info("ignoring message", "type", fmt.Sprintf("%T", msg))
	}
	return false
}

// current returns the launched program.
func (s *Server) current() (*launch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.launched == nil {
		return nil, ErrNotLaunched
	}
	return s.launched, nil
}

// owns reports whether sessionID belongs to this connection.
func (s *Server) owns(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launched != nil && s.launched.session.ID() == sessionID
}

// start runs the launched program once.
func (s *Server) start() error {
	s.mu.Lock()
	l := s.launched
	if l == nil {
		s.mu.Unlock()
		return ErrNotLaunched
	}
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	g, ctx := s.group, s.ctx
	s.mu.Unlock()

	g.Go(func() error {
		s.run(ctx, l)
		return nil
	})
	return nil
}

func (s *Server) run(ctx context.Context, l *launch) {
	defer l.state.Close()

	log := s.log.WithValues("session", l.session.ID(), "program", l.program.Source)
	log.Info("running program")

	code := 0
	err := lua.NewTracer(l.state, l.session, l.program, lua.WithLogger(s.log)).Run(ctx)
	if err != nil {
		code = 1
		if !errors.Is(err, debugger.ErrSessionTerminated) && !errors.Is(err, context.Canceled) {
			s.output("stderr", err.Error()+"\n")
		}
	}
	log.Info("program exited", "code", code)

	s.send(&dap.ExitedEvent{Event: newEvent("exited"), Body: dap.ExitedEventBody{ExitCode: code}})
	s.send(&dap.TerminatedEvent{Event: newEvent("terminated")})
}

// terminate stops the launched program. A program that never ran is
// released here; a running one cleans up when its run returns.
func (s *Server) terminate() (running bool) {
	s.mu.Lock()
	l, running := s.launched, s.running
	s.mu.Unlock()
	if l == nil {
		return false
	}
	l.session.Terminate()
	if !running {
		l.session.Close()
		l.state.Close()
	}
	return running
}

func (s *Server) onLineChanged(_ context.Context, ev any) {
	lb, ok := event.PayloadOf[debugger.LineBreak](ev)
	if !ok || !s.owns(lb.Session.SessionID) {
		return
	}
	s.send(&dap.StoppedEvent{
		Event: newEvent("stopped"),
		Body: dap.StoppedEventBody{
			Reason:            lb.Reason.String(),
			ThreadId:          threadID,
			AllThreadsStopped: true,
		},
	})
}

// output sends text to the client's debug console.
func (s *Server) output(category, text string) {
	s.send(&dap.OutputEvent{
		Event: newEvent("output"),
		Body:  dap.OutputEventBody{Category: category, Output: text},
	})
}

// outputWriter forwards script output as output events.
type outputWriter struct {
	s        *Server
	category string
}

func (w *outputWriter) Write(p []byte) (int, error) {
	w.s.output(w.category, string(p))
	return len(p), nil
}

// send numbers and writes msg. Numbering and writing happen under one lock
// so sequence numbers reach the client in order.
func (s *Server) send(msg dap.Message) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	s.seq++
	switch m := msg.(type) {
	case dap.ResponseMessage:
		m.GetResponse().Seq = s.seq
	case dap.EventMessage:
		m.GetEvent().Seq = s.seq
	}
	if err := s.transport.WriteMessage(msg); err != nil {
		s.log.V(1).Info("message not sent", "error", err.Error())
	}
}

func (s *Server) sendError(req *dap.Request, err error) {
	resp := newResponse(req)
	resp.Success = false
	resp.Message = err.Error()
	s.send(&dap.ErrorResponse{Response: resp})
}

func newResponse(req *dap.Request) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Type: "response"},
		Command:         req.Command,
		RequestSeq:      req.Seq,
		Success:         true,
	}
}

func newEvent(name string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Type: "event"},
		Event:           name,
	}
}
