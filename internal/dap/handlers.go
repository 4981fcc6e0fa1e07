package dap

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/go-dap"
	"github.com/tidwall/gjson"

	"github.com/dshills/luadebug/internal/debugger"
	"github.com/dshills/luadebug/internal/lua"
)

// localsReference is the variables reference of the top frame's locals.
const localsReference = 1

func (s *Server) onInitialize(req *dap.InitializeRequest) {
	s.log.V(1).Info("initialize", "client", req.Arguments.ClientID, "adapter", req.Arguments.AdapterID)
	s.send(&dap.InitializeResponse{
		Response: newResponse(&req.Request),
		Body: dap.Capabilities{
			SupportsConfigurationDoneRequest: true,
			SupportsTerminateRequest:         true,
			SupportsEvaluateForHovers:        true,
		},
	})
}

// onLaunch prepares the program. It runs on configurationDone, after the
// client has sent its breakpoints.
//
// Launch arguments: program (required), args (any JSON values), setup (a
// chunk run undebugged before the program), stopOnEntry, stepOver
// ("sequential" or "depth") and userId.
func (s *Server) onLaunch(req *dap.LaunchRequest) {
	l, err := s.launch(req.Arguments)
	if err != nil {
		s.sendError(&req.Request, err)
		return
	}
	s.log.Info("launched", "session", l.session.ID(), "user", l.session.UserID(), "program", l.program.Source)
	s.send(&dap.LaunchResponse{Response: newResponse(&req.Request)})
	s.send(&dap.InitializedEvent{Event: newEvent("initialized")})
}

func (s *Server) launch(raw json.RawMessage) (*launch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.launched != nil {
		return nil, ErrAlreadyLaunched
	}

	args := gjson.ParseBytes(raw)
	program := args.Get("program").String()
	if program == "" {
		return nil, errors.New("launch: program is required")
	}
	path, err := filepath.Abs(program)
	if err != nil {
		return nil, fmt.Errorf("launch: %w", err)
	}
	prog, err := lua.CompileFile(path)
	if err != nil {
		return nil, fmt.Errorf("launch: %w", err)
	}

	var attach []debugger.AttachOption
	if v := args.Get("stopOnEntry"); v.Exists() {
		attach = append(attach, debugger.StopOnEntry(v.Bool()))
	}
	if v := args.Get("stepOver"); v.Exists() {
		mode, err := debugger.ParseStepOverMode(v.String())
		if err != nil {
			return nil, fmt.Errorf("launch: %w", err)
		}
		attach = append(attach, debugger.StepOver(mode))
	}
	user := args.Get("userId").String()
	if user == "" {
		user = s.user
	}

	session, err := s.manager.Attach(debugger.Identity{UserID: user}, attach...)
	if err != nil {
		return nil, fmt.Errorf("launch: %w", err)
	}

	opts := append([]lua.StateOption{}, s.stateOpts...)
	opts = append(opts, lua.WithOutput(&outputWriter{s: s, category: "stdout"}))
	state, err := lua.NewState(opts...)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("launch: %w", err)
	}

	var scriptArgs []any
	for _, a := range args.Get("args").Array() {
		scriptArgs = append(scriptArgs, a.Value())
	}
	state.SetArgs(scriptArgs)
	if setup := args.Get("setup").String(); setup != "" {
		if err := state.DoString(setup); err != nil {
			state.Close()
			session.Close()
			return nil, fmt.Errorf("launch: setup: %w", err)
		}
	}

	s.launched = &launch{session: session, program: prog, state: state}
	return s.launched, nil
}

// onSetBreakpoints replaces the breakpoints of one file. Lines without a
// statement in the launched program are reported unverified but kept, so
// they apply if the file changes.
func (s *Server) onSetBreakpoints(req *dap.SetBreakpointsRequest) {
	l, err := s.current()
	if err != nil {
		s.sendError(&req.Request, err)
		return
	}

	path := req.Arguments.Source.Path
	lines := make([]int, 0, len(req.Arguments.Breakpoints))
	for _, bp := range req.Arguments.Breakpoints {
		lines = append(lines, bp.Line)
	}
	if _, err := s.manager.SetBreakpoints(l.session.ID(), path, lines); err != nil {
		s.sendError(&req.Request, err)
		return
	}

	sameFile := debugger.NormalizePath(path) == debugger.NormalizePath(l.program.Source)
	bps := make([]dap.Breakpoint, len(lines))
	for i, line := range lines {
		bps[i] = dap.Breakpoint{
			Verified: sameFile && l.program.Breakable(line),
			Line:     line,
			Source:   &dap.Source{Name: filepath.Base(path), Path: path},
		}
		if !bps[i].Verified {
			bps[i].Message = "no statement on this line"
		}
	}
	s.send(&dap.SetBreakpointsResponse{
		Response: newResponse(&req.Request),
		Body:     dap.SetBreakpointsResponseBody{Breakpoints: bps},
	})
}

func (s *Server) onConfigurationDone(req *dap.ConfigurationDoneRequest) {
	if _, err := s.current(); err != nil {
		s.sendError(&req.Request, err)
		return
	}
	s.send(&dap.ConfigurationDoneResponse{Response: newResponse(&req.Request)})
	if err := s.start(); err != nil {
		s.log.Error(err, "start program")
	}
}

func (s *Server) onThreads(req *dap.ThreadsRequest) {
	s.send(&dap.ThreadsResponse{
		Response: newResponse(&req.Request),
		Body:     dap.ThreadsResponseBody{Threads: []dap.Thread{{Id: threadID, Name: "main"}}},
	})
}

// onStackTrace reports the stack captured at the current pause, innermost
// frame first. Frame ids start at 1.
func (s *Server) onStackTrace(req *dap.StackTraceRequest) {
	l, err := s.current()
	if err != nil {
		s.sendError(&req.Request, err)
		return
	}

	stack := l.session.Stack()
	frames := make([]dap.StackFrame, 0, len(stack))
	for i, e := range stack {
		frames = append(frames, dap.StackFrame{
			Id:     i + 1,
			Name:   e.Name,
			Line:   e.Line,
			Column: 1,
			Source: &dap.Source{Name: filepath.Base(e.Source), Path: e.Source},
		})
	}

	start := min(max(req.Arguments.StartFrame, 0), len(frames))
	end := len(frames)
	if req.Arguments.Levels > 0 && start+req.Arguments.Levels < end {
		end = start + req.Arguments.Levels
	}
	s.send(&dap.StackTraceResponse{
		Response: newResponse(&req.Request),
		Body: dap.StackTraceResponseBody{
			StackFrames: frames[start:end],
			TotalFrames: len(frames),
		},
	})
}

// onScopes reports a locals scope for the top frame. Variables are only
// captured for the frame the program paused in.
func (s *Server) onScopes(req *dap.ScopesRequest) {
	if _, err := s.current(); err != nil {
		s.sendError(&req.Request, err)
		return
	}

	scopes := []dap.Scope{}
	if req.Arguments.FrameId == 1 {
		scopes = append(scopes, dap.Scope{Name: "Locals", VariablesReference: localsReference})
	}
	s.send(&dap.ScopesResponse{
		Response: newResponse(&req.Request),
		Body:     dap.ScopesResponseBody{Scopes: scopes},
	})
}

func (s *Server) onVariables(req *dap.VariablesRequest) {
	l, err := s.current()
	if err != nil {
		s.sendError(&req.Request, err)
		return
	}

	vars := []dap.Variable{}
	if req.Arguments.VariablesReference == localsReference {
		for _, v := range l.session.Snapshot().Variables {
			vars = append(vars, dap.Variable{Name: v.Name, Value: v.Value, Type: v.Kind.String()})
		}
	}
	s.send(&dap.VariablesResponse{
		Response: newResponse(&req.Request),
		Body:     dap.VariablesResponseBody{Variables: vars},
	})
}

// onEvaluate resolves a variable name against the current snapshot.
// Expressions are not evaluated.
func (s *Server) onEvaluate(req *dap.EvaluateRequest) {
	l, err := s.current()
	if err != nil {
		s.sendError(&req.Request, err)
		return
	}

	v, ok := l.session.Snapshot().Lookup(req.Arguments.Expression)
	if !ok {
		s.sendError(&req.Request, fmt.Errorf("%s: not available", req.Arguments.Expression))
		return
	}
	s.send(&dap.EvaluateResponse{
		Response: newResponse(&req.Request),
		Body:     dap.EvaluateResponseBody{Result: v.Value, Type: v.Kind.String()},
	})
}

// command answers req with resp and then sets cmd, so the response reaches
// the client before any stopped event the command causes.
func (s *Server) command(req *dap.Request, resp dap.ResponseMessage, cmd debugger.Command) {
	l, err := s.current()
	if err != nil {
		s.sendError(req, err)
		return
	}
	s.send(resp)
	l.session.SetCommand(cmd)
}

func (s *Server) onTerminate(req *dap.TerminateRequest) {
	if _, err := s.current(); err != nil {
		s.sendError(&req.Request, err)
		return
	}
	s.send(&dap.TerminateResponse{Response: newResponse(&req.Request)})
	if !s.terminate() {
		s.send(&dap.TerminatedEvent{Event: newEvent("terminated")})
	}
}
