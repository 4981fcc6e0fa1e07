package dap

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/luadebug/internal/debugger"
	"github.com/dshills/luadebug/internal/event"
)

const addScript = `local function add(a, b)
  local sum = a + b
  return sum
end
local total = add(2, 3)
print("total", total)
`

type fixture struct {
	client  *testClient
	manager *debugger.Manager
	stopped chan struct{}
	err     error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	bus := event.NewBus()
	require.NoError(t, bus.Start())
	t.Cleanup(func() { bus.Stop(context.Background()) })

	mgr := debugger.NewManager(
		debugger.WithLogger(testr.New(t)),
		debugger.WithBus(bus),
		debugger.WithPollInterval(5*time.Millisecond),
	)

	serverConn, clientConn := net.Pipe()
	srv := NewServer(NewConnTransport(serverConn), mgr, bus,
		WithLogger(testr.New(t)),
		WithUser("alice"),
	)

	f := &fixture{manager: mgr, stopped: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(f.stopped)
		f.err = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-f.stopped:
		case <-time.After(testTimeout):
			t.Error("server did not stop")
		}
	})

	f.client = newTestClient(t, NewConnTransport(clientConn))
	return f
}

// wait waits for Serve to return and returns its error.
func (f *fixture) wait(t *testing.T) error {
	t.Helper()
	select {
	case <-f.stopped:
		return f.err
	case <-time.After(testTimeout):
		t.Fatal("server did not stop")
		return nil
	}
}

func writeScript(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.lua")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestServer_BreakpointRoundTrip(t *testing.T) {
	f := newFixture(t)
	c := f.client
	path := writeScript(t, addScript)

	caps := c.initialize(t)
	assert.True(t, caps.Body.SupportsConfigurationDoneRequest)

	c.launch(t, map[string]any{"program": path})
	bps := c.setBreakpoints(t, path, 6, 100)
	require.Len(t, bps, 2)
	assert.True(t, bps[0].Verified)
	assert.Equal(t, 6, bps[0].Line)
	assert.False(t, bps[1].Verified)

	c.configurationDone(t)

	stop := c.stopped(t)
	assert.Equal(t, "breakpoint", stop.Reason)
	assert.Equal(t, threadID, stop.ThreadId)

	threads := call[*dap.ThreadsResponse](t, c, &dap.ThreadsRequest{Request: request("threads")})
	require.Len(t, threads.Body.Threads, 1)
	assert.Equal(t, threadID, threads.Body.Threads[0].Id)

	frames := c.stackTrace(t)
	require.Len(t, frames, 1)
	assert.Equal(t, "main", frames[0].Name)
	assert.Equal(t, 6, frames[0].Line)
	require.NotNil(t, frames[0].Source)
	assert.Equal(t, path, frames[0].Source.Path)

	vars := c.variables(t)
	require.Contains(t, vars, "total")
	assert.Equal(t, "5", vars["total"].Value)
	assert.Equal(t, "number", vars["total"].Type)
	assert.Equal(t, "function", vars["add"].Value)

	eval := call[*dap.EvaluateResponse](t, c, &dap.EvaluateRequest{
		Request:   request("evaluate"),
		Arguments: dap.EvaluateArguments{Expression: "total", FrameId: 1},
	})
	assert.Equal(t, "5", eval.Body.Result)

	c.continueRun(t)

	out, ok := c.waitEvent(t, "output").(*dap.OutputEvent)
	require.True(t, ok)
	assert.Equal(t, "stdout", out.Body.Category)
	assert.Equal(t, "total\t5\n", out.Body.Output)
	assert.Equal(t, 0, c.exitCode(t))

	c.disconnect(t)
	require.NoError(t, f.wait(t))

	bl := f.manager.Breakpoints("alice")
	require.Len(t, bl, 2, "breakpoints outlive the session")
}

func TestServer_StepFromEntry(t *testing.T) {
	f := newFixture(t)
	c := f.client
	path := writeScript(t, addScript)

	c.initialize(t)
	c.launch(t, map[string]any{"program": path, "stopOnEntry": true, "stepOver": "depth"})
	c.configurationDone(t)

	assert.Equal(t, "entry", c.stopped(t).Reason)
	assert.Equal(t, 1, c.stackTrace(t)[0].Line)

	c.next(t)
	assert.Equal(t, "step", c.stopped(t).Reason)
	assert.Equal(t, 5, c.stackTrace(t)[0].Line)

	c.next(t)
	assert.Equal(t, "step", c.stopped(t).Reason)
	assert.Equal(t, 6, c.stackTrace(t)[0].Line)

	call[*dap.StepInResponse](t, c, &dap.StepInRequest{
		Request:   request("stepIn"),
		Arguments: dap.StepInArguments{ThreadId: threadID},
	})
	assert.Equal(t, 0, c.exitCode(t))
}

func TestServer_ScriptError(t *testing.T) {
	f := newFixture(t)
	c := f.client
	path := writeScript(t, "local x = 1\nerror(\"boom\")\n")

	c.initialize(t)
	c.launch(t, map[string]any{"program": path})
	c.configurationDone(t)

	out, ok := c.waitEvent(t, "output").(*dap.OutputEvent)
	require.True(t, ok)
	assert.Equal(t, "stderr", out.Body.Category)
	assert.Contains(t, out.Body.Output, "boom")
	assert.Equal(t, 1, c.exitCode(t))
}

func TestServer_LaunchArgsAndSetup(t *testing.T) {
	f := newFixture(t)
	c := f.client
	path := writeScript(t, "print(arg[1] + offset, arg[2], arg[3].verbose)\n")

	c.initialize(t)
	c.launch(t, map[string]any{
		"program": path,
		"args":    []any{2, "x", map[string]any{"verbose": true}},
		"setup":   "offset = 10",
	})
	c.configurationDone(t)

	out, ok := c.waitEvent(t, "output").(*dap.OutputEvent)
	require.True(t, ok)
	assert.Equal(t, "12\tx\ttrue\n", out.Body.Output)
	assert.Equal(t, 0, c.exitCode(t))
}

func TestServer_LaunchSetupError(t *testing.T) {
	f := newFixture(t)
	c := f.client
	path := writeScript(t, addScript)
	c.initialize(t)

	resp := c.send(t, &dap.LaunchRequest{
		Request:   request("launch"),
		Arguments: []byte(`{"program": "` + path + `", "setup": "error('no config')"}`),
	}).GetResponse()
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "setup")
	assert.Contains(t, resp.Message, "no config")
	assert.Empty(t, f.manager.Sessions())
}

func TestServer_DisconnectWhilePaused(t *testing.T) {
	f := newFixture(t)
	c := f.client
	path := writeScript(t, addScript)

	c.initialize(t)
	c.launch(t, map[string]any{"program": path, "stopOnEntry": true})
	c.configurationDone(t)
	c.stopped(t)

	c.disconnect(t)
	c.waitEvent(t, "terminated")
	require.NoError(t, f.wait(t))
	assert.Empty(t, f.manager.Sessions())
}

func TestServer_TerminateRequest(t *testing.T) {
	f := newFixture(t)
	c := f.client
	path := writeScript(t, addScript)

	c.initialize(t)
	c.launch(t, map[string]any{"program": path, "stopOnEntry": true})
	c.configurationDone(t)
	c.stopped(t)

	call[*dap.TerminateResponse](t, c, &dap.TerminateRequest{Request: request("terminate")})
	assert.Equal(t, 1, c.exitCode(t))
}

func TestServer_RequestsBeforeLaunch(t *testing.T) {
	f := newFixture(t)
	c := f.client
	c.initialize(t)

	for _, req := range []dap.RequestMessage{
		&dap.StackTraceRequest{Request: request("stackTrace")},
		&dap.ConfigurationDoneRequest{Request: request("configurationDone")},
		&dap.ContinueRequest{Request: request("continue")},
	} {
		resp := c.send(t, req).GetResponse()
		assert.False(t, resp.Success, req.GetRequest().Command)
		assert.Equal(t, ErrNotLaunched.Error(), resp.Message)
	}
}

func TestServer_LaunchErrors(t *testing.T) {
	f := newFixture(t)
	c := f.client
	c.initialize(t)

	launch := func(args string) *dap.Response {
		return c.send(t, &dap.LaunchRequest{Request: request("launch"), Arguments: []byte(args)}).GetResponse()
	}

	resp := launch(`{}`)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "program is required")

	resp = launch(`{"program": "/does/not/exist.lua"}`)
	assert.False(t, resp.Success)

	bad := writeScript(t, "local = 1\n")
	resp = launch(`{"program": "` + bad + `"}`)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "parse")

	good := writeScript(t, addScript)
	resp = launch(`{"program": "` + good + `", "stepOver": "sideways"}`)
	assert.False(t, resp.Success)

	require.True(t, launch(`{"program": "`+good+`"}`).Success)
	resp = launch(`{"program": "` + good + `"}`)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrAlreadyLaunched.Error(), resp.Message)
}

func TestServer_UnsupportedRequest(t *testing.T) {
	f := newFixture(t)
	c := f.client
	c.initialize(t)

	resp := c.send(t, &dap.StepOutRequest{Request: request("stepOut")}).GetResponse()
	assert.False(t, resp.Success)
	assert.True(t, strings.HasPrefix(resp.Message, ErrUnsupportedRequest.Error()), resp.Message)
}

func TestServeListener(t *testing.T) {
	bus := event.NewBus()
	require.NoError(t, bus.Start())
	t.Cleanup(func() { bus.Stop(context.Background()) })
	mgr := debugger.NewManager(debugger.WithBus(bus))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ServeListener(ctx, ln, func(tr Transport) *Server {
			return NewServer(tr, mgr, bus)
		})
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	c := newTestClient(t, NewConnTransport(conn))
	caps := c.initialize(t)
	assert.True(t, caps.Body.SupportsTerminateRequest)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("listener did not stop")
	}
}
