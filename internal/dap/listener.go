package dap

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"
)

// ServeListener accepts clients on ln until ctx is done and serves each one
// with the Server newServer builds for its transport. It closes ln and waits
// for open connections before returning; an accept failure ends them.
func ServeListener(ctx context.Context, ln net.Listener, newServer func(Transport) *Server) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { ln.Close() })
	defer stop()

	var acceptErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if gctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				acceptErr = fmt.Errorf("accept dap client: %w", err)
			}
			break
		}

		srv := newServer(NewConnTransport(conn))
		srv.log.Info("client connected", "remote", conn.RemoteAddr().String())
		g.Go(func() error {
			if err := srv.Serve(gctx); err != nil {
				srv.log.Error(err, "dap connection failed")
			}
			srv.log.Info("client disconnected")
			return nil
		})
	}

	if acceptErr != nil {
		cancel()
	}
	ln.Close()
	return errors.Join(acceptErr, g.Wait())
}
