package debugger

import (
	"fmt"
	"strings"
	"sync"
)

// Command is a debugging command issued by a controller.
type Command int

const (
	// CommandPause requests a pause. It is also the "no command" value: a
	// session with CommandPause pending does not proceed on its own.
	CommandPause Command = iota
	// CommandContinue runs until the next breakpoint.
	CommandContinue
	// CommandStepInto pauses at the next line, entering calls.
	CommandStepInto
	// CommandStepOver pauses at the line following the current one.
	CommandStepOver
	// CommandSkipAllBreakpoints runs to the end ignoring breakpoints.
	CommandSkipAllBreakpoints
)

// String returns the wire name of the command.
func (c Command) String() string {
	switch c {
	case CommandPause:
		return "pause"
	case CommandContinue:
		return "continue"
	case CommandStepInto:
		return "step-into"
	case CommandStepOver:
		return "step-over"
	case CommandSkipAllBreakpoints:
		return "skip-all-breakpoints"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// proceeds reports whether the command lets a parked session run on its own.
func (c Command) proceeds() bool {
	return c == CommandContinue || c == CommandSkipAllBreakpoints
}

// ParseCommand parses a command name. Names are case insensitive and accept
// both the dashed form and the upper-case form without separators.
func ParseCommand(s string) (Command, error) {
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(s)) {
	case "pause", "none":
		return CommandPause, nil
	case "continue", "resume":
		return CommandContinue, nil
	case "stepinto":
		return CommandStepInto, nil
	case "stepover":
		return CommandStepOver, nil
	case "skipallbreakpoints":
		return CommandSkipAllBreakpoints, nil
	}
	return CommandPause, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// CommandChannel holds the single pending command of a session. Writes
// overwrite; reads do not consume. Every write bumps the generation so that
// readers can tell a repeated command from a stale one.
type CommandChannel struct {
	mu  sync.Mutex
	cmd Command
	gen uint64
}

// NewCommandChannel creates a channel holding initial.
func NewCommandChannel(initial Command) *CommandChannel {
	return &CommandChannel{cmd: initial}
}

// Set replaces the pending command and returns the new generation.
func (c *CommandChannel) Set(cmd Command) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmd = cmd
	c.gen++
	return c.gen
}

// Get returns the pending command.
func (c *CommandChannel) Get() Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cmd
}

// Load returns the pending command together with its generation.
func (c *CommandChannel) Load() (Command, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cmd, c.gen
}
