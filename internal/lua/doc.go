// Package lua runs Lua scripts under the debugger.
//
// gopher-lua has no line hook, so scripts are instrumented before they are
// compiled. Compile parses the source and rewrites the syntax tree:
//
//   - every function body, and the main chunk, starts with __dbg_enter(unit)
//   - every statement on a new line is preceded by __dbg_line(line)
//   - "return f(...)" becomes "return __dbg_pass(f(...))" so that no Lua
//     function is ever tail called and every call keeps its own stack frame
//
// The resulting Program carries the metadata of every compiled unit and the
// set of lines a breakpoint can stop at.
//
// # Tracer
//
// A Tracer runs a Program on a State and feeds a debugger.Session. The hook
// functions compare the functions on the Lua call stack with the frames the
// session knows about, so frames left by a return or an error are popped on
// the next hook. Variables are read straight from the Lua stack with
// GetLocal, which is why every hook runs on the goroutine executing the
// script. Coroutines run on their own LState and are not traced.
//
//	prog, err := lua.CompileFile("script.lua")
//	if err != nil {
//	    return err
//	}
//	state, err := lua.NewState(lua.WithOutput(os.Stdout))
//	if err != nil {
//	    return err
//	}
//	defer state.Close()
//
//	session, _ := manager.Attach(debugger.Identity{UserID: "alice"})
//	err = lua.NewTracer(state, session, prog).Run(ctx)
//
// # Sandbox
//
// The Sandbox removes the functions that load code from outside the program
// (dofile, loadfile, load, loadstring), restricts require to the built-in
// libraries, redirects print to the state's output and enforces the
// statement limit.
//
// # Bridge
//
// The Bridge converts between Go and Lua values and classifies Lua values
// into debugger.Value for variable snapshots.
package lua
