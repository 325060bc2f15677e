package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/headline-goat/launch-goat/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List locally tracked experiments",
	Long:  `List experiments in the local event store with their state and traffic.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := cmd.Context()

		exps, err := s.ListExperiments(ctx)
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(exps) == 0 {
			fmt.Fprintln(out, "No experiments yet.")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Create one with 'lg create', or add the script to your site and")
			fmt.Fprintln(out, "experiments auto-create when visitors arrive:")
			fmt.Fprintln(out, "  <script src=\"YOUR_SERVER/lg.js\" defer></script>")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATE\tVARIANTS\tUSERS\tCONVERSIONS\tCREATED")

		for _, exp := range exps {
			stats, err := s.GetVariantStats(ctx, exp.Name)
			if err != nil {
				return fmt.Errorf("failed to get stats for experiment %s: %w", exp.Name, err)
			}

			var users, conversions int64
			for _, stat := range stats {
				users += stat.Users
				conversions += stat.Conversions
			}

			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
				exp.Name,
				strings.ToUpper(string(exp.State)),
				len(exp.Variants),
				formatNumber(users),
				formatNumber(conversions),
				exp.CreatedAt.Format("2006-01-02"),
			)
		}

		return w.Flush()
	})
}
