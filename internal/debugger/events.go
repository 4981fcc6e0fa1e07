package debugger

import "github.com/dshills/luadebug/internal/event"

// Topics published by the Manager, with their payloads:
//
//	debug.session.registered  SessionInfo
//	debug.variables.updated   Snapshot
//	debug.line.changed        LineBreak
//	debug.session.finished    SessionInfo
//	debug.breakpoint.added    BreakpointChange
//	debug.breakpoint.removed  BreakpointChange
const (
	TopicSessionRegistered event.Topic = "debug.session.registered"
	TopicVariablesUpdated  event.Topic = "debug.variables.updated"
	TopicLineChanged       event.Topic = "debug.line.changed"
	TopicSessionFinished   event.Topic = "debug.session.finished"
	TopicBreakpointAdded   event.Topic = "debug.breakpoint.added"
	TopicBreakpointRemoved event.Topic = "debug.breakpoint.removed"
)

// eventSource is the Metadata.Source of published events.
const eventSource = "debugger"

// SessionInfo is the payload of the session topics.
type SessionInfo struct {
	Session     Identity
	ExecutionID string
}

// BreakpointChange is the payload of the breakpoint topics.
type BreakpointChange struct {
	SessionID  string
	Breakpoint Breakpoint
}
