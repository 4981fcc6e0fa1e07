// Package dap serves Debug Adapter Protocol clients on top of the debugger.
//
// A Server owns one client connection and debugs one script: launch compiles
// the program and attaches a session, configurationDone starts the run, and
// pauses reported on the event bus become stopped events. The program runs
// on a single thread with id 1.
//
// Transports frame messages with github.com/google/go-dap over either a
// byte stream (stdio) or a network connection. ServeListener accepts TCP
// clients and runs one Server per connection.
package dap
