package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/headline-goat/launch-goat/internal/logger"
	"github.com/headline-goat/launch-goat/internal/provider"
	"github.com/headline-goat/launch-goat/internal/server"
	"github.com/headline-goat/launch-goat/internal/store"
)

const tokenFileName = ".lg-token"

func init() {
	rootCmd.AddCommand(newServeCmd())
}

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the launch-goat HTTP server.

The server provides:
  - Analysis API under /api (uploads, sequential, power, decision memos)
  - Provider integrations under /api/integrations/{provider}
  - Tracking script at /lg.js and beacon endpoint at /b
  - Dashboard for locally tracked experiments
  - Prometheus metrics at /metrics

Example:
  lg serve --port 8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			// The server logs JSON unless a format was configured explicitly.
			if os.Getenv("LG_LOG_FORMAT") == "" && cfgFile == "" {
				l, err := logger.New(cfg.Log.Level, "json")
				if err != nil {
					return err
				}
				log = l
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command) error {
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	reg, cleanup, err := newRegistry(ctx, s)
	if err != nil {
		return err
	}
	defer cleanup()

	cache := provider.NewCache(ctx, cfg.Cache.RedisURL, log)
	if closer, ok := cache.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	srv := server.New(s, newAnalyzer(), reg, cache, server.Options{
		Port:      cfg.Server.Port,
		TokenFile: getTokenFilePath(),
		CacheTTL:  cfg.Cache.TTL,
	}, log)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Server running at http://localhost:%d\n", srv.Port())
	fmt.Fprintf(out, "Dashboard: http://localhost:%d/dashboard?token=%s\n", srv.Port(), srv.Token())
	fmt.Fprintf(out, "Providers: %v\n", reg.Names())
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		log.Error("server stopped", zap.Error(err))
		return err
	}
	return nil
}

// getTokenFilePath returns the token file stored alongside the database.
func getTokenFilePath() string {
	return filepath.Join(filepath.Dir(cfg.Store.Path), tokenFileName)
}
