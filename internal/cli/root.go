package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/headline-goat/launch-goat/internal/config"
	"github.com/headline-goat/launch-goat/internal/logger"
)

var (
	cfgFile      string
	dbPath       string
	logLevel     string
	outputFormat string

	cfg *config.Config
	log = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "lg",
	Short: "Launch Goat - experiment launch decisions from A/B test results",
	Long: `🐐 Launch Goat turns A/B test results into a Launch, Hold or Rollback decision.

It validates data health (schema and sample ratio mismatch), tests the primary
metric, checks guardrails, and explains the verdict. Results come from CSV/XLSX
files, locally tracked experiments, a SQL warehouse or GrowthBook.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", os.Getenv("LG_CONFIG"), "config file (yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "event store path (overrides store.path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "o", "json", "output format: json or yaml")
}

// setup loads configuration and builds the logger before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if dbPath != "" {
		c.Store.Path = dbPath
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}

	l, err := logger.New(c.Log.Level, c.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	cfg, log = c, l
	return nil
}
