package console

import "errors"

// Errors returned by console commands.
var (
	// ErrUnknownCommand is returned for a command the console does not know.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrInvalidLocation is returned for a malformed breakpoint location.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrNotPaused is returned by commands that inspect a paused frame.
	ErrNotPaused = errors.New("not paused")
)
