package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/headline-goat/launch-goat/internal/memo"
)

func init() {
	rootCmd.AddCommand(newMemoCmd())
}

func newMemoCmd() *cobra.Command {
	var (
		flags  runFlags
		asHTML bool
		out    string
	)

	cmd := &cobra.Command{
		Use:   "memo <file>",
		Short: "Write a one-page decision memo",
		Long: `Analyze a results file and render the decision as a Markdown memo.

Examples:
  lg memo results.csv > memo.md
  lg memo results.csv --html --out memo.html`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := loadTable(args[0])
			if err != nil {
				return err
			}
			opts, err := flags.options(args[0])
			if err != nil {
				return err
			}
			rep, err := newAnalyzer().Run(cmd.Context(), t, opts)
			if err != nil {
				return err
			}

			doc := memo.Markdown(rep, time.Now())
			if asHTML {
				if doc, err = memo.HTML(doc); err != nil {
					return err
				}
			}

			if out == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), doc)
				return err
			}
			if err := os.WriteFile(out, []byte(doc), 0644); err != nil {
				return fmt.Errorf("failed to write memo: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Memo written to %s (decision: %s)\n", out, rep.Decision.Decision)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&asHTML, "html", false, "render a standalone HTML page")
	cmd.Flags().StringVar(&out, "out", "", "write to a file instead of stdout")
	return cmd
}
