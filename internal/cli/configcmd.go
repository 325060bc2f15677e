package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, the config file and LG_*
environment variables are applied. Secrets such as the warehouse DSN are
masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			if c.Warehouse.DSN != "" {
				c.Warehouse.DSN = "***"
			}
			if c.Cache.RedisURL != "" {
				c.Cache.RedisURL = "***"
			}
			return printResult(cmd, c)
		},
	})
	rootCmd.AddCommand(configCmd)
}
