package cli

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/xraph/licensor/plan"
)

type planRow struct {
	Service  plan.Service `json:"service" yaml:"service"`
	Plan     plan.Plan    `json:"plan" yaml:"plan"`
	Tokens   int64        `json:"tokens" yaml:"tokens"`
	MaxSites int          `json:"max_sites" yaml:"max_sites"`
	Default  bool         `json:"default_service" yaml:"default_service"`
}

func newPlansCmd(root *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Print the effective token limit table",
		Long: `Print the token limit of every service and plan. Limits come from the
YAML document named by --file or $` + EnvPlansFile + `; without one the
built-in table is shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = os.Getenv(EnvPlansFile)
			}
			table := plan.DefaultTable()
			if file != "" {
				var err error
				if table, err = plan.LoadTable(file); err != nil {
					return err
				}
			}

			rows := planRows(table)
			return render(cmd.OutOrStdout(), root.output, rows, func(w io.Writer) {
				fmt.Fprintln(w, "SERVICE\tPLAN\tTOKENS\tMAX SITES")
				for _, r := range rows {
					svc := string(r.Service)
					if r.Default {
						svc += " (default)"
					}
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", svc, r.Plan, r.Tokens, r.MaxSites)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML limits document")
	return cmd
}

func planRows(t *plan.Table) []planRow {
	services := t.Services()
	sort.Slice(services, func(i, j int) bool { return services[i] < services[j] })

	rows := make([]planRow, 0, len(services)*3)
	for _, svc := range services {
		for _, p := range []plan.Plan{plan.Free, plan.Pro, plan.Agency} {
			rows = append(rows, planRow{
				Service:  svc,
				Plan:     p,
				Tokens:   t.TokenLimit(svc, p),
				MaxSites: p.MaxSites(),
				Default:  svc == t.DefaultService(),
			})
		}
	}
	return rows
}
