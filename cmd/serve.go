package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tessera/internal/registry"
	"github.com/conneroisu/tessera/internal/scanner"
	"github.com/conneroisu/tessera/internal/server"
)

// shutdownTimeout bounds graceful shutdown after a signal.
const shutdownTimeout = 5 * time.Second

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s"},
		Short:   "Start the preview server with live sessions and reload",
		Long: `Start the preview server. It lists every component, renders preview pages
on the server and drives live instances from browser events over a
websocket. Definition files are watched and changed components reload in
open sessions.

Examples:
  tessera serve                     # Serve on localhost:8080
  tessera serve -p 3000             # Serve on another port
  tessera serve --no-watch          # Do not watch definition files`,
		Args: cobra.NoArgs,
		RunE: a.runServe,
	}

	flags := cmd.Flags()
	flags.IntP("port", "p", 8080, "port to serve on")
	flags.String("host", "localhost", "host to bind to")
	flags.Bool("compression", true, "gzip responses")
	flags.Bool("no-watch", false, "do not watch definition files")
	_ = a.v.BindPFlag("server.port", flags.Lookup("port"))
	_ = a.v.BindPFlag("server.host", flags.Lookup("host"))
	_ = a.v.BindPFlag("server.compression", flags.Lookup("compression"))
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := a.setup(cmd)
	if err != nil {
		return err
	}
	if noWatch, _ := cmd.Flags().GetBool("no-watch"); noWatch {
		cfg.Server.Watch = false
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher, closer := newFetcher(ctx, cfg, logger)
	defer closer.Close()

	reg := registry.NewComponentRegistry()
	scan := newScanner(reg, fetcher, cfg, logger, scanner.WithReplace(true))
	srv, err := server.New(cfg, reg, scan, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Starting Tessera preview server at http://%s\n", cfg.Address())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, err, "error during server shutdown")
	}
	select {
	case err := <-errCh:
		return err
	case <-shutdownCtx.Done():
		return shutdownCtx.Err()
	}
}
