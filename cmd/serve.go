package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-jsrecon/internal/config"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/mcp"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/observability"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/store"
)

func newServeCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP command server",
		Long: `Serve exposes analysis over HTTP: POST /api/v1/command accepts
{"command": ..., "params": {...}} for ping, analyze_scripts, analyze_directory,
harvest_page and query_endpoints. Metrics are served at /metrics.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			bindings := map[string]string{
				"server.host":          "host",
				"server.port":          "port",
				"server.allowed_roots": "allow-root",
			}
			for key, flag := range bindings {
				if err := global.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, observability.GetLogger())
		},
	}

	cmd.Flags().String("host", "127.0.0.1", "listen host")
	cmd.Flags().Int("port", 8088, "listen port")
	cmd.Flags().StringSlice("allow-root", nil, "directory analyze_directory may read (repeatable)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// Typed nil pointers must not reach the interface, or the handlers would
	// think a store is configured.
	var endpointStore mcp.EndpointStore
	if cfg.Database().URL != "" {
		s, cleanup, err := store.Connect(ctx, cfg.Database(), logger)
		if err != nil {
			return err
		}
		defer cleanup()
		if err := s.EnsureSchema(ctx); err != nil {
			return err
		}
		endpointStore = s
		logger.Info("Database connection established successfully.")
	} else {
		logger.Warn("database.url is not set. Proceeding without persistence; query_endpoints is unavailable.")
	}

	harvester := harvesterFactory(logger, cfg.Browser())
	server := mcp.NewServer(cfg, logger, endpointStore, harvester)
	return server.Start(ctx)
}
