// Package app wires configuration, logging, the event bus and the debug
// manager together and runs the debugger front ends.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/go-logr/logr"

	"github.com/dshills/luadebug/internal/config"
	"github.com/dshills/luadebug/internal/debugger"
	"github.com/dshills/luadebug/internal/event"
	"github.com/dshills/luadebug/internal/logging"
	"github.com/dshills/luadebug/internal/lua"
)

// Option configures an Application.
type Option func(*Application)

// WithLogOutput sets where logs go when no log file is configured. The
// default is os.Stderr.
func WithLogOutput(w io.Writer) Option {
	return func(a *Application) {
		a.logOut = w
	}
}

// WithStdio sets the streams scripts print to and the DAP server speaks on
// without a listen address. The defaults are os.Stdin and os.Stdout.
func WithStdio(in io.ReadCloser, out io.WriteCloser) Option {
	return func(a *Application) {
		a.stdin = in
		a.stdout = out
	}
}

// Application owns the components shared by every debug session.
type Application struct {
	cfg *config.Config

	logger  *logging.Logger
	log     logr.Logger
	bus     *event.Bus
	manager *debugger.Manager

	logOut io.Writer
	stdin  io.ReadCloser
	stdout io.WriteCloser

	running atomic.Bool
}

// New creates an Application from cfg.
func New(cfg *config.Config, opts ...Option) (*Application, error) {
	a := &Application{
		cfg:    cfg,
		logOut: os.Stderr,
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.bootstrap(); err != nil {
		return nil, err
	}
	return a, nil
}

// bootstrap initializes the components in dependency order.
func (a *Application) bootstrap() error {
	// 1. Logging
	logger, err := logging.New(a.cfg.Log, logging.WithOutput(a.logOut))
	if err != nil {
		return &InitError{Component: "logging", Err: err}
	}
	a.logger = logger
	a.log = logger.Logger

	// 2. Event bus
	a.bus = event.NewBus(event.WithLogger(a.log.WithName("event")))
	if err := a.bus.Start(); err != nil {
		a.logger.Close()
		return &InitError{Component: "event bus", Err: err}
	}

	// 3. Debug manager
	a.manager = debugger.NewManager(
		debugger.WithLogger(a.log.WithName("debugger")),
		debugger.WithBus(a.bus),
		debugger.WithPollInterval(a.cfg.Debugger.PollInterval),
		debugger.WithStopOnEntry(a.cfg.Debugger.StopOnEntry),
		debugger.WithStepOverMode(a.cfg.StepOverMode()),
	)

	a.log.V(1).Info("application ready", "user", a.cfg.Debugger.User, "stepOver", a.cfg.Debugger.StepOver)
	return nil
}

// Logger returns the application logger.
func (a *Application) Logger() logr.Logger {
	return a.log
}

// Manager returns the debug manager.
func (a *Application) Manager() *debugger.Manager {
	return a.manager
}

// Bus returns the event bus.
func (a *Application) Bus() *event.Bus {
	return a.bus
}

// Shutdown terminates every session, stops the event bus and closes the
// logger.
func (a *Application) Shutdown(ctx context.Context) error {
	a.manager.TerminateAll()

	var errs []error
	if err := a.bus.Stop(ctx); err != nil && !errors.Is(err, event.ErrBusNotRunning) {
		errs = append(errs, err)
	}
	a.log.V(1).Info("application stopped")
	if err := a.logger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close logger: %w", err))
	}
	return errors.Join(errs...)
}

// stateOptions returns the Lua limits from the configuration.
func (a *Application) stateOptions() []lua.StateOption {
	return []lua.StateOption{
		lua.WithExecutionTimeout(a.cfg.Lua.ExecutionTimeout),
		lua.WithStatementLimit(a.cfg.Lua.StatementLimit),
		lua.WithCallStackSize(a.cfg.Lua.CallStackSize),
	}
}

// Config returns the application configuration.
func (a *Application) Config() *config.Config {
	return a.cfg
}
