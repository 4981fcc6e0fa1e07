// Package event provides the notification bus that carries debugger state to
// controllers.
//
// Publishers hand typed events to the bus; subscribers register a topic
// pattern and a handler. Topics use dot notation:
//
//	debug.line.changed         - execution paused at a new location
//	debug.variables.updated    - a session's variable snapshot was replaced
//	debug.session.finished     - the outermost frame exited
//
// # Wildcard Patterns
//
//	debug.*      - matches debug.line, debug.session (single segment)
//	debug.**     - matches debug.line.changed, debug.a.b.c (multi-segment)
//	*.finished   - matches session.finished, task.finished
//
// # Delivery Modes
//
// Synchronous subscriptions run in the publisher's goroutine, in registration
// order. The debugger publishes from the script execution goroutine, so a
// synchronous handler observes the session while the script is parked.
//
// Asynchronous subscriptions get their own ordered queue and worker goroutine.
// Events for one subscriber are never reordered. When the queue is full the
// event is dropped and counted.
package event
