package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/andygrunwald/fuel-advisor/internal/http"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the advisor HTTP service",
		Long:  "Starts the HTTP API serving tenant registration, sync, ledger and prediction requests together with /metrics and /status.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()

			logger.Info().
				Str("version", Version).
				Str("commit", Commit).
				Str("buildDate", BuildDate).
				Str("httpAddr", cfg.HTTPAddr).
				Str("dbDriver", cfg.DBDriver).
				Str("priceStore", cfg.PriceStore.Backend).
				Msg("starting fuel advisor")

			a, err := newApp(prometheus.DefaultRegisterer, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			router := http.NewRouter(http.RouterConfig{
				Advisor:        a.advisor,
				DB:             a.db,
				Feed:           a.feed,
				Metrics:        a.metrics,
				MetricsHandler: promhttp.Handler(),
				Logger:         logger,
			})
			httpServer := http.NewServer(cfg.HTTPAddr, router, logger)

			// Setup signal handling
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			// Start HTTP server in goroutine
			go func() {
				if err := httpServer.Start(); err != nil {
					logger.Error().Err(err).Msg("HTTP server error")
					cancel()
				}
			}()

			// Wait for signal
			select {
			case sig := <-sigCh:
				logger.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
			case <-ctx.Done():
			}

			// Graceful shutdown
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("HTTP server shutdown error")
			}

			logger.Info().Msg("shutdown complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP server address")
	cmd.Flags().StringVar(&cfg.AdminToken, "admin-token", cfg.AdminToken, "Token for administrative endpoints (empty disables them)")

	return cmd
}
