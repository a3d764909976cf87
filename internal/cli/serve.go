package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/civicpoints/internal/database"
	"github.com/dukerupert/civicpoints/internal/metrics"
	"github.com/dukerupert/civicpoints/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var cleanupInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the civicpoints API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runServe(ctx, rootOpts, cleanupInterval)
		},
	}

	cmd.Flags().DurationVar(&cleanupInterval, "cleanup-interval", 10*time.Minute, "how often expired sessions are removed")
	return cmd
}

func runServe(ctx context.Context, opts *RootOptions, cleanupInterval time.Duration) error {
	cfg, logger := opts.cfg, opts.logger

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer db.Close()

	srv := server.New(db, server.Config{Metrics: metrics.Default()}, logger)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	cleanupCtx, cancelCleanup := context.WithCancel(ctx)
	defer cancelCleanup()
	go srv.RunCleanup(cleanupCtx, cleanupInterval)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("civicpoints listening", "addr", httpServer.Addr, "db", cfg.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
