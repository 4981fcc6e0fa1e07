// Package console is the interactive terminal controller for a debug
// session.
//
// The console reads commands with readline while the script runs on another
// goroutine. Pauses published on the event bus are printed with the source
// line they stopped at; Ctrl-C requests a pause.
//
//	continue, c          run to the next breakpoint
//	step, s              step into
//	next, n              step over
//	skip                 run to the end ignoring breakpoints
//	pause, p             pause at the next line
//	break, b [path:]N    set a breakpoint
//	delete, d [path:]N   remove a breakpoint
//	breakpoints, bl      list breakpoints
//	vars, v [name]       show variables of the paused frame; name may be a
//	                     dotted path into a table, v cfg.servers.0
//	where, w             show the call stack
//	list, l              show source around the pause
//	kill, q              terminate the script
//	help, h              show commands
//
// Full command names such as step-over or skip-all-breakpoints are accepted
// too.
package console
