package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/eddiefleurent/positionbook/internal/dashboard"
)

const shutdownTimeout = 10 * time.Second

type serveCmd struct {
	port int
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "Serve the import, positions and series HTTP API." }
func (*serveCmd) Usage() string {
	return `serve [-port <port>]:
  Starts the HTTP API and blocks until interrupted.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.port, "port", 0, "Listen port (overrides dashboard.port)")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	port := a.cfg.Dashboard.Port
	if c.port > 0 {
		port = c.port
	}
	server := dashboard.NewServer(dashboard.Config{
		AuthToken: a.cfg.Dashboard.AuthToken,
		Port:      port,
	}, a.store, a.service, a.series, a.logger.WithField("component", "dashboard"))

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("Shutdown signal received")
	case err, ok := <-errCh:
		if ok && err != nil {
			a.logger.WithError(err).Error("Dashboard server failed")
			return subcommands.ExitFailure
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("Dashboard shutdown failed")
		return subcommands.ExitFailure
	}
	a.logger.Info("Dashboard stopped")
	return subcommands.ExitSuccess
}
