package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/andygrunwald/fuel-advisor/internal/models"
)

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}
	cmd.AddCommand(tenantRegisterCmd())
	return cmd
}

func tenantRegisterCmd() *cobra.Command {
	var p models.TenantProfile

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an organization and print its secret",
		Long:  "Registers an organization with its price stream. The secret is printed once and cannot be recovered.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()

			a, err := newApp(prometheus.NewRegistry(), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			secret, err := a.advisor.RegisterTenant(context.Background(), p)
			if err != nil {
				return fmt.Errorf("registering tenant: %w", err)
			}

			fmt.Println(secret)
			return nil
		},
	}

	cmd.Flags().StringVar(&p.Org, "org", "", "Organization (required)")
	cmd.Flags().StringVar(&p.URL, "url", "", "Price history store endpoint (required)")
	cmd.Flags().StringVar(&p.Bucket, "bucket", "Gas-Prices", "Bucket holding the price series")
	cmd.Flags().StringVar(&p.Measurement, "measurement", "Prices", "Measurement of the price series")
	cmd.Flags().StringVar(&p.Field, "field", "y", "Field of the price series")

	return cmd
}
