package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/plan"
)

func newSnapshotCmd(root *rootOptions) *cobra.Command {
	var (
		file      string
		plansFile string
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Render the public snapshot of an exported license record",
		Long: `Read a raw license row as JSON, in either the snake_case or the legacy
camelCase layout, and print the snapshot callers would receive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if plansFile == "" {
				plansFile = os.Getenv(EnvPlansFile)
			}
			table := plan.DefaultTable()
			if plansFile != "" {
				var err error
				if table, err = plan.LoadTable(plansFile); err != nil {
					return err
				}
			}

			data, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return fmt.Errorf("read record: %w", err)
			}

			var rec license.Record
			dec := json.NewDecoder(bytes.NewReader(data))
			dec.UseNumber()
			if err := dec.Decode(&rec); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}

			l, err := license.FromRecord(rec, table)
			if err != nil {
				return err
			}
			snap := license.NewSnapshot(l, table)

			return render(cmd.OutOrStdout(), root.output, snap, func(w io.Writer) {
				fmt.Fprintf(w, "license_key\t%s\n", snap.LicenseKey)
				fmt.Fprintf(w, "plan\t%s\n", snap.Plan)
				fmt.Fprintf(w, "service\t%s\n", snap.Service)
				fmt.Fprintf(w, "tokens\t%d / %d (used %d)\n", snap.TokensRemaining, snap.TokenLimit, snap.TokensUsed)
				fmt.Fprintf(w, "owner\t%s %s\n", snap.OwnerKind, snap.OwnerRef)
				fmt.Fprintf(w, "auto_attach\t%s\n", snap.AutoAttachStatus)
				if snap.Site.SiteURL != "" || snap.Site.SiteHash != "" {
					fmt.Fprintf(w, "site\t%s %s\n", snap.Site.SiteURL, snap.Site.SiteHash)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON record file, - for stdin")
	cmd.Flags().StringVar(&plansFile, "plans-file", "", "YAML limits document (default $"+EnvPlansFile+")")
	return cmd
}
