// Package main provides the entry point for the fuel advisor CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/andygrunwald/fuel-advisor/internal/config"
)

var (
	// Version is set at build time.
	Version = "dev"
	// Commit is set at build time.
	Commit = "none"
	// BuildDate is set at build time.
	BuildDate = "unknown"
)

var cfg *config.Config

func main() {
	cfg = config.DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:   "fueladvisor",
		Short: "Fuel Advisor - buy fuel before the tank runs dry, and not a day too early",
		Long: `Fuel Advisor is a multi-tenant service that keeps each organization's fuel
price history in sync with an external price feed, forecasts prices and
recommends whether to restock now or wait.

Features:
  - Tenant registry with per-organization price streams
  - Incremental price history backfill from the price feed
  - Consumption ledger per pump
  - Price forecasting and buy-or-wait decisions
  - Prometheus metrics endpoint
  - Status endpoint for operational visibility`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "Database driver (pgx, sqlite3)")
	rootCmd.PersistentFlags().StringVar(&cfg.DatabaseDSN, "database-dsn", cfg.DatabaseDSN, "Database connection string")
	rootCmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (json, console)")
	rootCmd.PersistentFlags().StringVar(&cfg.PriceStore.Backend, "price-store", cfg.PriceStore.Backend, "Price history store (sql, influx)")
	rootCmd.PersistentFlags().StringVar(&cfg.Feed.URL, "feed-url", cfg.Feed.URL, "Base URL of the price feed")
	rootCmd.PersistentFlags().StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for the sync lock (empty disables locking)")

	// Add subcommands
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(predictCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogger() zerolog.Logger {
	var logger zerolog.Logger

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Set log format
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stderr).
			With().
			Timestamp().
			Logger()
	}

	return logger
}
