package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/headline-goat/launch-goat/internal/dataset"
	"github.com/headline-goat/launch-goat/internal/provider"
	"github.com/headline-goat/launch-goat/internal/report"
	"github.com/headline-goat/launch-goat/internal/store"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

func newAnalyzer() *report.Analyzer {
	return report.NewAnalyzer(cfg.Thresholds, log)
}

func loadTable(path string) (*dataset.Table, error) {
	t, err := dataset.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return t, nil
}

func printResult(cmd *cobra.Command, v any) error {
	return report.Encode(cmd.OutOrStdout(), v, outputFormat)
}

// newRegistry registers every provider the configuration enables. The
// returned cleanup closes connections held by the providers.
func newRegistry(ctx context.Context, s store.Store) (*provider.Registry, func(), error) {
	reg := provider.NewRegistry()
	reg.Register("dummy", provider.NewDummy)
	reg.Register("growthbook", provider.GrowthBookFactory(cfg.GrowthBook.BaseURL, provider.WithLogger(log)))
	if s != nil {
		local := provider.NewLocal(s)
		reg.Register("local", func(string) (provider.Provider, error) { return local, nil })
	}

	cleanup := func() {}
	if cfg.Warehouse.DSN != "" {
		wh, err := provider.OpenWarehouse(ctx, cfg.Warehouse.Driver, cfg.Warehouse.DSN, cfg.Warehouse.Table)
		if err != nil {
			return nil, nil, err
		}
		reg.Register("warehouse", func(string) (provider.Provider, error) { return wh, nil })
		cleanup = func() {
			if err := wh.Close(); err != nil {
				log.Warn("failed to close warehouse", zap.Error(err))
			}
		}
	}
	return reg, cleanup, nil
}

func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
