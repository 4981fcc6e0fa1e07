package dap

import (
	"errors"
	"io"
	"net"
	"testing"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnTransport_RoundTrip(t *testing.T) {
	a, b := net.Pipe()
	client := NewConnTransport(a)
	server := NewConnTransport(b)
	defer client.Close()
	defer server.Close()

	errc := make(chan error, 1)
	go func() {
		errc <- client.WriteMessage(&dap.ThreadsRequest{
			Request: dap.Request{
				ProtocolMessage: dap.ProtocolMessage{Seq: 7, Type: "request"},
				Command:         "threads",
			},
		})
	}()

	msg, err := server.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, <-errc)

	req, ok := msg.(*dap.ThreadsRequest)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, 7, req.Seq)
}

func TestStdioTransport_Close(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	defer inW.Close()
	defer outR.Close()

	tr := NewStdioTransport(inR, outW)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	_, err := tr.ReadMessage()
	assert.True(t, errors.Is(err, ErrTransportClosed))
	err = tr.WriteMessage(&dap.InitializedEvent{})
	assert.True(t, errors.Is(err, ErrTransportClosed))
}

func TestConnTransport_PeerClosed(t *testing.T) {
	a, b := net.Pipe()
	tr := NewConnTransport(b)
	defer tr.Close()

	a.Close()
	_, err := tr.ReadMessage()
	require.Error(t, err)
	assert.True(t, closedConn(err))
}
