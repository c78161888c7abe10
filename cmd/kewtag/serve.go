package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rbaliyan/kewtag/api"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tagging HTTP API",
		Long: `Serve the tagging HTTP API.

Configuration is read from --config, or from the first kewtag.yaml found
walking up from the working directory, and KEWTAG_* environment variables
override it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, slog.Default())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to kewtag.yaml")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

// serve runs the API until ctx is cancelled, then drains in-flight
// requests for at most the configured shutdown timeout.
func serve(ctx context.Context, cfg Config, logger *slog.Logger) (err error) {
	comp, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := comp.Close(); cerr != nil {
			logger.Error("shutdown", "error", cerr)
			if err == nil {
				err = cerr
			}
		}
	}()

	handler := api.New(comp.service,
		api.WithLogger(logger),
		api.WithScanLimiter(comp.limiter),
	)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			"addr", cfg.Server.Addr,
			"store", cfg.Store.Driver,
			"registry", cfg.Registry.Driver,
			"notify", cfg.Notify.Driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
