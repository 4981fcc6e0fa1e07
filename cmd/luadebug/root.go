package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/luadebug/internal/app"
	"github.com/dshills/luadebug/internal/config"
)

// shutdownTimeout bounds how long Shutdown waits for event delivery.
const shutdownTimeout = 5 * time.Second

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "luadebug",
		Short: "Line-level debugger for Lua scripts",
		Long: `Line-level debugger for Lua scripts.

Scripts run either under an interactive console or behind a Debug Adapter
Protocol server that editors connect to.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error or a verbosity number)")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newDAPCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var breakpoints []string
	var setup []string
	var noConsole bool

	runCmd := &cobra.Command{
		Use:   "run [flags] script [args...]",
		Short: "Runs a script under the debugger",
		Long: `Runs a script under the debugger.

Arguments after the script are passed to it as the global table arg.
Without --no-console an interactive console controls the run; type help
at its prompt for the commands.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.Application) error {
				return a.RunScript(cmd.Context(), app.RunOptions{
					Script:      args[0],
					Args:        args[1:],
					Setup:       setup,
					Breakpoints: breakpoints,
					Interactive: !noConsole,
				})
			})
		},
	}
	runCmd.Flags().StringArrayVarP(&breakpoints, "break", "b", nil, "Set a breakpoint at [path:]line (repeatable)")
	runCmd.Flags().StringArrayVarP(&setup, "execute", "e", nil, "Run a Lua chunk before the script, undebugged (repeatable)")
	runCmd.Flags().BoolVar(&noConsole, "no-console", false, "Run to the end without the interactive console")
	return runCmd
}

func newDAPCmd(opts *rootOptions) *cobra.Command {
	var listen string

	dapCmd := &cobra.Command{
		Use:   "dap",
		Short: "Runs a Debug Adapter Protocol server",
		Long: `Runs a Debug Adapter Protocol server.

Without --listen the server talks to a single client on stdin and stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app.Application) error {
				addr := a.Config().DAP.Listen
				if cmd.Flags().Changed("listen") {
					addr = listen
				}
				return a.ServeDAP(cmd.Context(), addr)
			})
		},
	}
	dapCmd.Flags().StringVar(&listen, "listen", "", "TCP address to accept clients on, for example 127.0.0.1:4711")
	return dapCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "luadebug %s\n", version)
			fmt.Fprintf(out, "Commit: %s\n", commit)
			fmt.Fprintf(out, "Built: %s\n", date)
		},
	}
}

// loadConfig loads the configuration and applies flag overrides.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// withApp runs fn with a started application and shuts it down afterwards.
func withApp(ctx context.Context, opts *rootOptions, fn func(*app.Application) error) (err error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	a, err := app.New(cfg, app.WithStdio(os.Stdin, os.Stdout))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if shutdownErr := a.Shutdown(shutdownCtx); err == nil {
			err = shutdownErr
		}
	}()
	return fn(a)
}
