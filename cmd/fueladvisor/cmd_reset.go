package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func resetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove all tenants and ledger events",
		Long:  "Removes every tenant and every ledger event. Requires ADMIN_TOKEN to be configured and --yes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()

			if !yes {
				return fmt.Errorf("refusing to reset without --yes")
			}

			a, err := newApp(prometheus.NewRegistry(), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.advisor.ResetAll(context.Background(), cfg.AdminToken); err != nil {
				return fmt.Errorf("resetting: %w", err)
			}

			logger.Warn().Msg("all tenants and ledger events removed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")

	return cmd
}
