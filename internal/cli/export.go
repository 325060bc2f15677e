package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/headline-goat/launch-goat/internal/dataset"
	"github.com/headline-goat/launch-goat/internal/provider"
	"github.com/headline-goat/launch-goat/internal/report"
	"github.com/headline-goat/launch-goat/internal/store"
)

func init() {
	rootCmd.AddCommand(newExportCmd())
}

func newExportCmd() *cobra.Command {
	var (
		format     string
		aggregated bool
	)

	cmd := &cobra.Command{
		Use:   "export <name>",
		Short: "Export event data for an experiment",
		Long: `Export raw events, or with --aggregated the per-variant results table
that 'lg analyze' reads.

Examples:
  lg export checkout --format csv > checkout-events.csv
  lg export checkout --format json > checkout-events.json
  lg export checkout --aggregated > checkout.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if format != "csv" && format != "json" {
				return fmt.Errorf("invalid format: must be 'csv' or 'json'")
			}

			return withStore(func(s *store.SQLiteStore) error {
				ctx := cmd.Context()
				out := cmd.OutOrStdout()

				if aggregated {
					res, err := provider.NewLocal(s).FetchExperiment(ctx, name)
					if errors.Is(err, provider.ErrNotFound) {
						return fmt.Errorf("experiment '%s' not found", name)
					}
					if err != nil {
						return err
					}
					if format == "json" {
						return report.Encode(out, res, report.FormatJSON)
					}
					return res.ToTable().WriteCSV(out)
				}

				if _, err := s.GetExperiment(ctx, name); err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("experiment '%s' not found", name)
					}
					return fmt.Errorf("failed to get experiment: %w", err)
				}

				events, err := s.GetEvents(ctx, name)
				if err != nil {
					return fmt.Errorf("failed to get events: %w", err)
				}
				if format == "csv" {
					return exportCSV(out, events)
				}
				return exportJSON(out, events)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "output format (csv or json)")
	cmd.Flags().BoolVar(&aggregated, "aggregated", false, "export per-variant totals instead of raw events")
	return cmd
}

func exportCSV(w io.Writer, events []*store.Event) error {
	t := dataset.NewTable("timestamp", "variant", "kind", "visitor_id", "value")
	for _, e := range events {
		t.Append(
			strconv.FormatInt(e.CreatedAt.Unix(), 10),
			strconv.Itoa(e.Variant),
			e.Kind,
			e.VisitorID,
			strconv.FormatFloat(e.Value, 'f', -1, 64),
		)
	}
	return t.WriteCSV(w)
}

type jsonExport struct {
	Events []jsonEvent `json:"events"`
}

type jsonEvent struct {
	Timestamp int64   `json:"timestamp"`
	Variant   int     `json:"variant"`
	Kind      string  `json:"kind"`
	VisitorID string  `json:"visitor_id"`
	Value     float64 `json:"value"`
}

func exportJSON(w io.Writer, events []*store.Event) error {
	export := jsonExport{
		Events: make([]jsonEvent, len(events)),
	}

	for i, e := range events {
		export.Events[i] = jsonEvent{
			Timestamp: e.CreatedAt.Unix(),
			Variant:   e.Variant,
			Kind:      e.Kind,
			VisitorID: e.VisitorID,
			Value:     e.Value,
		}
	}

	return report.Encode(w, export, report.FormatJSON)
}
