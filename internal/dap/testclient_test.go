package dap

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

// testClient is a DAP client driving a Server in tests.
type testClient struct {
	transport Transport

	seqMu sync.Mutex
	seq   int

	responseMu    sync.Mutex
	responseChans map[int]chan dap.Message

	events chan dap.EventMessage
	done   chan struct{}
}

func newTestClient(t *testing.T, transport Transport) *testClient {
	t.Helper()
	c := &testClient{
		transport:     transport,
		responseChans: make(map[int]chan dap.Message),
		events:        make(chan dap.EventMessage, 100),
		done:          make(chan struct{}),
	}
	go c.readLoop()
	t.Cleanup(func() {
		c.transport.Close()
		<-c.done
	})
	return c
}

func (c *testClient) readLoop() {
	defer close(c.done)
	for {
		msg, err := c.transport.ReadMessage()
		if err != nil {
			return
		}
		switch m := msg.(type) {
		case dap.ResponseMessage:
			resp := m.GetResponse()
			c.responseMu.Lock()
			if ch, ok := c.responseChans[resp.RequestSeq]; ok {
				ch <- msg
				delete(c.responseChans, resp.RequestSeq)
			}
			c.responseMu.Unlock()
		case dap.EventMessage:
			c.events <- m
		}
	}
}

func request(command string) dap.Request {
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Type: "request"},
		Command:         command,
	}
}

// send writes req and waits for its response.
func (c *testClient) send(t *testing.T, req dap.RequestMessage) dap.ResponseMessage {
	t.Helper()

	c.seqMu.Lock()
	c.seq++
	seq := c.seq
	c.seqMu.Unlock()
	req.GetRequest().Seq = seq

	ch := make(chan dap.Message, 1)
	c.responseMu.Lock()
	c.responseChans[seq] = ch
	c.responseMu.Unlock()

	require.NoError(t, c.transport.WriteMessage(req))

	select {
	case msg := <-ch:
		resp, ok := msg.(dap.ResponseMessage)
		require.True(t, ok, "unexpected message %T", msg)
		return resp
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for %s response", req.GetRequest().Command)
		return nil
	}
}

// call sends req and asserts a successful response of type T.
func call[T dap.ResponseMessage](t *testing.T, c *testClient, req dap.RequestMessage) T {
	t.Helper()
	resp := c.send(t, req)
	require.True(t, resp.GetResponse().Success, "%s failed: %s", req.GetRequest().Command, resp.GetResponse().Message)
	typed, ok := resp.(T)
	require.True(t, ok, "unexpected response %T", resp)
	return typed
}

// waitEvent returns the next event called name, skipping others.
func (c *testClient) waitEvent(t *testing.T, name string) dap.EventMessage {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		select {
		case ev := <-c.events:
			if ev.GetEvent().Event == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", name)
			return nil
		}
	}
}

func (c *testClient) initialize(t *testing.T) *dap.InitializeResponse {
	t.Helper()
	return call[*dap.InitializeResponse](t, c, &dap.InitializeRequest{
		Request: request("initialize"),
		Arguments: dap.InitializeRequestArguments{
			ClientID:        "test-client",
			AdapterID:       "lua",
			LinesStartAt1:   true,
			ColumnsStartAt1: true,
			PathFormat:      "path",
		},
	})
}

func (c *testClient) launch(t *testing.T, args map[string]any) {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	call[*dap.LaunchResponse](t, c, &dap.LaunchRequest{Request: request("launch"), Arguments: raw})
	c.waitEvent(t, "initialized")
}

func (c *testClient) setBreakpoints(t *testing.T, path string, lines ...int) []dap.Breakpoint {
	t.Helper()
	bps := make([]dap.SourceBreakpoint, len(lines))
	for i, line := range lines {
		bps[i] = dap.SourceBreakpoint{Line: line}
	}
	resp := call[*dap.SetBreakpointsResponse](t, c, &dap.SetBreakpointsRequest{
		Request: request("setBreakpoints"),
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: path},
			Breakpoints: bps,
		},
	})
	return resp.Body.Breakpoints
}

func (c *testClient) configurationDone(t *testing.T) {
	t.Helper()
	call[*dap.ConfigurationDoneResponse](t, c, &dap.ConfigurationDoneRequest{Request: request("configurationDone")})
}

func (c *testClient) stopped(t *testing.T) dap.StoppedEventBody {
	t.Helper()
	ev, ok := c.waitEvent(t, "stopped").(*dap.StoppedEvent)
	require.True(t, ok)
	return ev.Body
}

func (c *testClient) stackTrace(t *testing.T) []dap.StackFrame {
	t.Helper()
	resp := call[*dap.StackTraceResponse](t, c, &dap.StackTraceRequest{
		Request:   request("stackTrace"),
		Arguments: dap.StackTraceArguments{ThreadId: threadID},
	})
	return resp.Body.StackFrames
}

func (c *testClient) variables(t *testing.T) map[string]dap.Variable {
	t.Helper()
	scopes := call[*dap.ScopesResponse](t, c, &dap.ScopesRequest{
		Request:   request("scopes"),
		Arguments: dap.ScopesArguments{FrameId: 1},
	})
	require.Len(t, scopes.Body.Scopes, 1)

	resp := call[*dap.VariablesResponse](t, c, &dap.VariablesRequest{
		Request:   request("variables"),
		Arguments: dap.VariablesArguments{VariablesReference: scopes.Body.Scopes[0].VariablesReference},
	})
	vars := make(map[string]dap.Variable, len(resp.Body.Variables))
	for _, v := range resp.Body.Variables {
		vars[v.Name] = v
	}
	return vars
}

func (c *testClient) next(t *testing.T) {
	t.Helper()
	call[*dap.NextResponse](t, c, &dap.NextRequest{
		Request:   request("next"),
		Arguments: dap.NextArguments{ThreadId: threadID},
	})
}

func (c *testClient) continueRun(t *testing.T) {
	t.Helper()
	call[*dap.ContinueResponse](t, c, &dap.ContinueRequest{
		Request:   request("continue"),
		Arguments: dap.ContinueArguments{ThreadId: threadID},
	})
}

func (c *testClient) exitCode(t *testing.T) int {
	t.Helper()
	ev, ok := c.waitEvent(t, "exited").(*dap.ExitedEvent)
	require.True(t, ok)
	c.waitEvent(t, "terminated")
	return ev.Body.ExitCode
}

func (c *testClient) disconnect(t *testing.T) {
	t.Helper()
	call[*dap.DisconnectResponse](t, c, &dap.DisconnectRequest{
		Request:   request("disconnect"),
		Arguments: &dap.DisconnectArguments{TerminateDebuggee: true},
	})
}

