package app

import (
	"context"
	"fmt"
	"net"

	"github.com/dshills/luadebug/internal/dap"
)

// ServeDAP runs the debug adapter. With an empty listen address it serves
// a single client on the application's stdio; otherwise it accepts TCP
// clients on listen until ctx is done.
func (a *Application) ServeDAP(ctx context.Context, listen string) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer a.running.Store(false)

	if listen == "" {
		a.log.Info("serving dap on stdio")
		return a.newDAPServer(dap.NewStdioTransport(a.stdin, a.stdout)).Serve(ctx)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listen, err)
	}
	a.log.Info("serving dap", "addr", ln.Addr().String())
	return dap.ServeListener(ctx, ln, a.newDAPServer)
}

func (a *Application) newDAPServer(tr dap.Transport) *dap.Server {
	return dap.NewServer(tr, a.manager, a.bus,
		dap.WithLogger(a.log.WithName("dap")),
		dap.WithUser(a.cfg.Debugger.User),
		dap.WithStateOptions(a.stateOptions()...),
	)
}
