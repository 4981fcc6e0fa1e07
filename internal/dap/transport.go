package dap

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/go-dap"
)

// Transport reads and writes DAP protocol messages. Writes are safe for
// concurrent use; reads must come from a single goroutine.
type Transport interface {
	// ReadMessage blocks until the next message arrives.
	ReadMessage() (dap.Message, error)

	// WriteMessage writes and flushes one message.
	WriteMessage(msg dap.Message) error

	// Close closes the transport. Blocked reads return an error.
	Close() error
}

// streamTransport implements Transport over a byte stream.
type streamTransport struct {
	reader *bufio.Reader
	writer *bufio.Writer
	closer []io.Closer

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// NewStdioTransport creates a Transport reading from stdin and writing to
// stdout. Close closes both streams.
func NewStdioTransport(stdin io.ReadCloser, stdout io.WriteCloser) Transport {
	return &streamTransport{
		reader: bufio.NewReader(stdin),
		writer: bufio.NewWriter(stdout),
		closer: []io.Closer{stdin, stdout},
	}
}

// NewConnTransport creates a Transport backed by a network connection.
func NewConnTransport(conn net.Conn) Transport {
	return &streamTransport{
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		closer: []io.Closer{conn},
	}
}

func (t *streamTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *streamTransport) ReadMessage() (dap.Message, error) {
	if t.isClosed() {
		return nil, ErrTransportClosed
	}

	msg, err := dap.ReadProtocolMessage(t.reader)
	if err != nil {
		return nil, fmt.Errorf("read dap message: %w", err)
	}
	return msg, nil
}

func (t *streamTransport) WriteMessage(msg dap.Message) error {
	if t.isClosed() {
		return ErrTransportClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := dap.WriteProtocolMessage(t.writer, msg); err != nil {
		return fmt.Errorf("write dap message: %w", err)
	}
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("flush dap message: %w", err)
	}
	return nil
}

func (t *streamTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	var first error
	for _, c := range t.closer {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
