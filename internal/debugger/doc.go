// Package debugger is the engine-neutral core of the script debugger.
//
// A Session is attached to one script execution. The scripting engine drives
// it from the execution goroutine through a small set of hooks:
//
//   - OnEnter / OnExit track the per-session frame stack
//   - OnLineChange is called before every line and may park the goroutine
//   - OnUncapturedError reports script errors (logged only)
//
// A controller (DAP server, console) drives it from another goroutine through
// the Manager: SetCommand, AddBreakpoint, RemoveBreakpoint and Terminate.
//
// # Line processing
//
// On every line change the Gate is consulted first. When the session is not
// executing and no proceed command is pending, the goroutine parks at that
// line. Otherwise the line is processed:
//
//	skip-all     -> nothing, breakpoints and stepping are bypassed
//	breakpoint   -> pause, then arm a step-over for the next resume
//	continue     -> proceed
//	step-into    -> pause
//	step-over    -> step-over state machine
//
// A pause publishes the line and a fresh variable snapshot to the Observer and
// parks the goroutine at the reported line until the controller resumes it.
//
// # Notifications
//
// The Manager implements Observer. It keeps the table of live sessions and
// republishes every notification on an event.Bus under the debug.* topics.
package debugger
