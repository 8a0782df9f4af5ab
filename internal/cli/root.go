// Package cli implements the licensorctl command tree.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Environment variables read by licensorctl. Values may come from a .env
// file named by --env-file.
const (
	EnvPlansFile     = "LICENSOR_PLANS_FILE"
	EnvWebhookSecret = "STRIPE_WEBHOOK_SECRET"
)

type rootOptions struct {
	envFile string
	output  string
}

// NewRootCmd builds the licensorctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "licensorctl",
		Short: "Inspect licensor plan limits, Stripe webhooks and license records",
		Long: `licensorctl is offline tooling for the licensor engine. It reads the
plan limit table, verifies Stripe webhook deliveries against a signing
secret, and renders the public snapshot of an exported license record.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(opts.envFile)
		},
	}

	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before running (ignored when missing)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "output format: table, json, yaml")

	root.AddCommand(
		newPlansCmd(opts),
		newWebhookCmd(opts),
		newSnapshotCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs licensorctl and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadEnv loads path into the process environment without overriding
// variables that are already set.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
