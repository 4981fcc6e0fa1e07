package dap

import "errors"

// Errors returned by the DAP server.
var (
	// ErrTransportClosed is returned when reading or writing a closed transport.
	ErrTransportClosed = errors.New("dap transport closed")

	// ErrNotLaunched is returned for requests that need a launched program.
	ErrNotLaunched = errors.New("program not launched")

	// ErrAlreadyLaunched is returned for a second launch on one connection.
	ErrAlreadyLaunched = errors.New("program already launched")

	// ErrUnsupportedRequest is returned for requests the server does not handle.
	ErrUnsupportedRequest = errors.New("unsupported request")
)
