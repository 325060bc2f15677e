package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/headline-goat/launch-goat/internal/store"
)

func init() {
	rootCmd.AddCommand(newSnippetCmd())
}

var snippetTmpl = template.Must(template.New("snippet").Parse(`<!-- 1. Load the tracker once per page -->
<script src="{{.ServerURL}}/lg.js" defer></script>

<!-- 2. Mark the element under test; the assigned variant is exposed as data-lg-variant -->
<div data-lg-experiment="{{.Name}}" data-lg-variants='{{.VariantsJSON}}'>...</div>

<!-- 3. Count a conversion on click -->
<button data-lg-convert="{{.Name}}">Sign Up</button>

<!-- 4. Optional guardrail and continuous metric events -->
<script>
  window.addEventListener('error', function(){ lg.guardrail('{{.Name}}', 'error_count'); });
  // lg.metric('{{.Name}}', 'revenue', 49.0);
</script>
`))

type snippetData struct {
	Name         string
	ServerURL    string
	VariantsJSON string
}

func newSnippetCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "snippet <name>",
		Short: "Print tracking markup for an experiment",
		Long: `Print copy-paste HTML that wires a page into a locally tracked experiment
through the /lg.js tracker.

Example:
  lg snippet checkout --server-url https://ab.example.com`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				exp, err := s.GetExperiment(cmd.Context(), args[0])
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("experiment not found: %s", args[0])
				}
				if err != nil {
					return fmt.Errorf("failed to get experiment: %w", err)
				}

				out := cmd.OutOrStdout()
				if exp.WinnerVariant != nil {
					fmt.Fprintf(out, "Experiment '%s' is complete. Ship variant %d (%q) and remove the tracking markup.\n",
						exp.Name, *exp.WinnerVariant, exp.Variants[*exp.WinnerVariant])
					return nil
				}

				variants, err := json.Marshal(exp.Variants)
				if err != nil {
					return err
				}
				return snippetTmpl.Execute(out, snippetData{
					Name:         exp.Name,
					ServerURL:    strings.TrimSuffix(serverURL, "/"),
					VariantsJSON: string(variants),
				})
			})
		},
	}

	cmd.Flags().StringVar(&serverURL, "server-url", "http://localhost:8080", "public URL of the lg server")
	return cmd
}
