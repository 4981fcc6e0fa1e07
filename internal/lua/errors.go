package lua

import "errors"

// Errors for Lua state operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrExecutionTimeout is returned when a run exceeds its timeout.
	ErrExecutionTimeout = errors.New("lua execution timeout")

	// ErrStatementLimit is returned when a run executes more statements than
	// the sandbox allows.
	ErrStatementLimit = errors.New("lua statement limit exceeded")

	// ErrUnknownUnit is raised when a hook refers to a unit the program does
	// not have. It means the chunk was not produced by Compile.
	ErrUnknownUnit = errors.New("unknown compiled unit")
)
