package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/headline-goat/launch-goat/internal/memo"
	"github.com/headline-goat/launch-goat/internal/provider"
	"github.com/headline-goat/launch-goat/internal/store"
)

func init() {
	rootCmd.AddCommand(newProvidersCmd())
}

type providerFlags struct {
	name   string
	apiKey string
}

func (f *providerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.name, "provider", "P", "local", "provider name")
	cmd.Flags().StringVar(&f.apiKey, "api-key", os.Getenv("LG_PROVIDER_API_KEY"), "provider API key")
}

// withProvider opens the local store, builds the registry and hands the
// selected provider to fn.
func (f *providerFlags) withProvider(cmd *cobra.Command, fn func(provider.Provider) error) error {
	return withStore(func(s *store.SQLiteStore) error {
		reg, cleanup, err := newRegistry(cmd.Context(), s)
		if err != nil {
			return err
		}
		defer cleanup()

		p, err := reg.Get(f.name, f.apiKey)
		if err != nil {
			return err
		}
		return fn(p)
	})
}

func newProvidersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Work with experiment data providers",
		Long: `List and fetch experiments from a provider.

Built-in providers: local (this event store), dummy (sample data),
growthbook (REST API, needs --api-key) and warehouse (when warehouse.dsn
is configured).`,
	}
	cmd.AddCommand(newProvidersListCmd(), newProvidersFetchCmd())
	return cmd
}

func newProvidersListCmd() *cobra.Command {
	var flags providerFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a provider's experiments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withProvider(cmd, func(p provider.Provider) error {
				exps, err := p.ListExperiments(cmd.Context())
				if err != nil {
					return err
				}
				if len(exps) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No experiments found in %s.\n", p.Name())
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tSTATUS\tUPDATED")
				for _, e := range exps {
					updated := "-"
					if e.LastUpdated != nil {
						updated = e.LastUpdated.Format("2006-01-02")
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.Name, e.Status, updated)
				}
				return w.Flush()
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newProvidersFetchCmd() *cobra.Command {
	var (
		flags     providerFlags
		run       runFlags
		writeMemo bool
	)

	cmd := &cobra.Command{
		Use:   "fetch [experiment-id]",
		Short: "Fetch and analyze an experiment from a provider",
		Long: `Fetch an experiment's results from a provider and run the full analysis.
Without an id, pick the experiment interactively.

Examples:
  lg providers fetch hero
  lg providers fetch exp_001 --provider dummy --memo
  lg providers fetch --provider growthbook --api-key $GB_KEY`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withProvider(cmd, func(p provider.Provider) error {
				ctx := cmd.Context()

				var id string
				if len(args) == 1 {
					id = args[0]
				} else {
					exps, err := p.ListExperiments(ctx)
					if err != nil {
						return err
					}
					if id, err = pickExperiment(exps); err != nil {
						return err
					}
				}

				res, err := p.FetchExperiment(ctx, id)
				if err != nil {
					return err
				}
				if err := res.Validate(); err != nil {
					return err
				}

				opts, err := run.options("")
				if err != nil {
					return err
				}
				if opts.Name == "" {
					opts.Name = id
				}
				if sp, ok := p.(provider.Splitter); ok && opts.Split == nil {
					if opts.Split, err = sp.ExpectedSplit(ctx, id); err != nil {
						return err
					}
				}

				rep, err := newAnalyzer().Run(ctx, res.ToTable(), opts)
				if err != nil {
					return err
				}
				if writeMemo {
					_, err := fmt.Fprint(cmd.OutOrStdout(), memo.Markdown(rep, time.Now()))
					return err
				}
				return printResult(cmd, rep)
			})
		},
	}
	flags.register(cmd)
	run.register(cmd)
	cmd.Flags().BoolVar(&writeMemo, "memo", false, "print a Markdown decision memo instead of the report")
	return cmd
}

func pickExperiment(exps []provider.Experiment) (string, error) {
	if len(exps) == 0 {
		return "", errors.New("provider has no experiments")
	}

	prompt := promptui.Select{
		Label: "Experiment",
		Items: exps,
		Size:  10,
		Templates: &promptui.SelectTemplates{
			Label:    "{{ . }}",
			Active:   "▸ {{ .Name | cyan }} ({{ .ID }}, {{ .Status }})",
			Inactive: "  {{ .Name }} ({{ .ID }}, {{ .Status }})",
			Selected: "✔ {{ .Name | green }}",
		},
	}

	idx, _, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return "", errors.New("cancelled")
		}
		return "", err
	}
	return exps[idx].ID, nil
}
