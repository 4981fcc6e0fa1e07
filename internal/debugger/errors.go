package debugger

import "errors"

// Errors returned by the debugger.
var (
	// ErrSessionNotFound is returned when no live session has the given id.
	ErrSessionNotFound = errors.New("debug session not found")

	// ErrSessionExists is returned when attaching with the id of a live session.
	ErrSessionExists = errors.New("debug session already exists")

	// ErrSessionTerminated is returned by engine hooks once the session has
	// been terminated. The engine is expected to unwind the script.
	ErrSessionTerminated = errors.New("debug session terminated")

	// ErrUnknownCommand is returned when a command name cannot be parsed.
	ErrUnknownCommand = errors.New("unknown debug command")

	// ErrInvalidBreakpoint is returned for an empty path or a line below 1.
	ErrInvalidBreakpoint = errors.New("invalid breakpoint")
)
