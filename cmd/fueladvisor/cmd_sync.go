package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	var org, secret string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a one-time price history sync for a tenant",
		Long:  "Backfills the tenant's price history from the last stored day up to yesterday. Safe to run repeatedly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()

			if org == "" || secret == "" {
				return fmt.Errorf("--org and --secret are required")
			}

			a, err := newApp(prometheus.NewRegistry(), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.advisor.SyncNow(context.Background(), org, secret)
			if err != nil {
				return fmt.Errorf("syncing: %w", err)
			}

			logger.Info().
				Str("org", org).
				Int("upserted", result.Upserted).
				Bool("skipped", result.Skipped).
				Msg("sync completed")
			return printJSON(result)
		},
	}

	cmd.Flags().StringVar(&org, "org", "", "Organization (required)")
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("TENANT_SECRET"), "Tenant secret (defaults to $TENANT_SECRET)")

	return cmd
}

func predictCmd() *cobra.Command {
	var org, secret, pump string
	var horizon int

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Request a buy-or-wait decision for a pump",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()

			if org == "" || secret == "" || pump == "" {
				return fmt.Errorf("--org, --secret and --pump are required")
			}

			a, err := newApp(prometheus.NewRegistry(), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.advisor.RequestPrediction(context.Background(), org, secret, pump, horizon)
			if err != nil {
				return fmt.Errorf("predicting: %w", err)
			}
			return printJSON(p)
		},
	}

	cmd.Flags().StringVar(&org, "org", "", "Organization (required)")
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("TENANT_SECRET"), "Tenant secret (defaults to $TENANT_SECRET)")
	cmd.Flags().StringVar(&pump, "pump", "", "Pump identifier (required)")
	cmd.Flags().IntVar(&horizon, "horizon", 0, "Look-ahead window in days (0 uses the configured default)")

	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
