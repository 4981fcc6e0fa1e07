package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/luadebug/internal/console"
	"github.com/dshills/luadebug/internal/debugger"
	"github.com/dshills/luadebug/internal/lua"
)

// RunOptions describes one script run.
type RunOptions struct {
	// Script is the path of the Lua file to run.
	Script string
	// Args are exposed to the script as the global table arg.
	Args []string
	// Setup chunks run undebugged, in order, before the script.
	Setup []string
	// Breakpoints are "[path:]line" locations set before the run.
	Breakpoints []string
	// Interactive attaches a console. Without it breakpoints are ignored
	// and the script runs to the end.
	Interactive bool
}

// RunScript runs a script under the debugger and returns the script's
// result.
func (a *Application) RunScript(ctx context.Context, opts RunOptions) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer a.running.Store(false)

	script, err := filepath.Abs(opts.Script)
	if err != nil {
		return fmt.Errorf("resolve script path: %w", err)
	}
	prog, err := lua.CompileFile(script)
	if err != nil {
		return err
	}

	var attach []debugger.AttachOption
	if !opts.Interactive {
		attach = append(attach, debugger.StopOnEntry(false))
	}
	session, err := a.manager.Attach(debugger.Identity{UserID: a.cfg.Debugger.User}, attach...)
	if err != nil {
		return err
	}
	log := a.log.WithValues("session", session.ID(), "script", script)

	for _, loc := range opts.Breakpoints {
		path, line, err := console.ParseLocation(loc, script)
		if err != nil {
			session.Close()
			return err
		}
		if _, err := a.manager.AddBreakpoint(session.ID(), path, line); err != nil {
			session.Close()
			return err
		}
	}
	if !opts.Interactive {
		session.SetCommand(debugger.CommandSkipAllBreakpoints)
	}

	state, err := lua.NewState(append(a.stateOptions(), lua.WithOutput(a.stdout))...)
	if err != nil {
		session.Close()
		return fmt.Errorf("create lua state: %w", err)
	}
	defer state.Close()

	args := make([]any, len(opts.Args))
	for i, a := range opts.Args {
		args[i] = a
	}
	state.SetArgs(args)
	for _, chunk := range opts.Setup {
		if err := state.DoString(chunk); err != nil {
			session.Close()
			return fmt.Errorf("setup: %w", err)
		}
	}

	tracer := lua.NewTracer(state, session, prog, lua.WithLogger(log.WithName("tracer")))
	log.Info("running script", "interactive", opts.Interactive)

	if !opts.Interactive {
		return tracer.Run(ctx)
	}

	con := console.New(a.manager, session, a.bus, script,
		console.WithLogger(a.log.WithName("console")),
		console.WithOutput(a.stdout),
		console.WithColor(console.UseColor(a.cfg.Console.Color, a.stdoutFd())),
		console.WithHistoryFile(a.cfg.Console.HistoryFile),
	)

	var runErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		runErr = tracer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return con.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if errors.Is(runErr, debugger.ErrSessionTerminated) {
		log.Info("script killed")
		return nil
	}
	return runErr
}

// stdoutFd returns the descriptor of the script output, or -1 when it is
// not a file.
func (a *Application) stdoutFd() int {
	if f, ok := a.stdout.(*os.File); ok {
		return int(f.Fd())
	}
	return -1
}
