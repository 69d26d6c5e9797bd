package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/casefile"
	httpAdapter "github.com/aretw0/casefile/pkg/adapters/http"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the call engine behind an HTTP API: call lifecycle and tool endpoints,
the SMS form webhook, per-call SSE diffs, /health and /metrics. The email
recheck worker and the call state pruner run alongside.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, app)
	},
}

func serve(ctx context.Context, app *casefile.App) error {
	logger := app.Logger
	handler := httpAdapter.NewHandler(app.Engine,
		httpAdapter.WithLogger(logger),
		httpAdapter.WithMetricsHandler(app.Metrics.Handler()),
		httpAdapter.WithVersion(casefile.Version),
	)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.Config.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting casefile server", "address", srv.Addr, "driver", app.Config.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
			return srv.Close()
		}
		logger.Info("casefile server stopped gracefully")
		return nil
	})

	g.Go(func() error {
		return ignoreCanceled(app.Recheck.Run(ctx))
	})

	g.Go(func() error {
		return prune(ctx, app)
	})

	return g.Wait()
}

// prune drops expired call state on every tick until ctx ends.
func prune(ctx context.Context, app *casefile.App) error {
	ticker := time.NewTicker(app.Config.Storage.PruneEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := app.Prune(ctx); err != nil {
				app.Logger.Warn("Prune failed", "err", err)
			}
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
}
