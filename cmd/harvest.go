package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/browser"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/config"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/discovery"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/observability"
)

type harvestOptions struct {
	outputOptions
	// manifestOut writes the harvested scripts instead of analyzing them.
	manifestOut string
}

// scriptHarvester collects the scripts of a live page. Satisfied by *browser.Harvester.
type scriptHarvester interface {
	Harvest(ctx context.Context, pageURL string) ([]schemas.ScriptSource, error)
}

// harvesterFactory builds the page harvester. Replaced in tests.
var harvesterFactory = func(logger *zap.Logger, cfg config.BrowserConfig) scriptHarvester {
	return browser.NewHarvester(logger, cfg)
}

func newHarvestCmd(global *globalOptions) *cobra.Command {
	opts := &harvestOptions{}
	cmd := &cobra.Command{
		Use:   "harvest <url>",
		Short: "Load a page in a headless browser and analyze the scripts it runs",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			bindings := map[string]string{
				"engine.worker_concurrency":  "concurrency",
				"analyzer.context_lines":     "context-lines",
				"browser.same_site_only":     "same-site-only",
				"browser.headless":           "headless",
				"browser.ignore_tls_errors":  "ignore-tls-errors",
				"browser.post_load_wait":     "wait",
				"browser.navigation_timeout": "timeout",
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
			applyAnalyzerFlags(cmd, cfg)
			return runHarvest(cmd.Context(), cfg, opts, args[0], observability.GetLogger())
		},
	}

	opts.addFlags(cmd)
	addAnalyzerFlags(cmd)
	cmd.Flags().StringVar(&opts.manifestOut, "save-manifest", "", "write the harvested scripts to this manifest file and skip analysis")
	cmd.Flags().Bool("same-site-only", false, "drop external scripts outside the page's registrable domain")
	cmd.Flags().Bool("headless", true, "run the browser without a window")
	cmd.Flags().Bool("ignore-tls-errors", false, "accept invalid TLS certificates")
	cmd.Flags().Duration("wait", 0, "time to wait after load for late scripts (default from config)")
	cmd.Flags().Duration("timeout", 0, "navigation timeout (default from config)")
	return cmd
}

func runHarvest(ctx context.Context, cfg *config.Config, opts *harvestOptions, pageURL string, logger *zap.Logger) error {
	harvester := harvesterFactory(logger, cfg.Browser())
	sources, err := harvester.Harvest(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("failed to harvest %s: %w", pageURL, err)
	}
	logger.Info("Harvested scripts", zap.String("url", pageURL), zap.Int("scripts", len(sources)))

	if opts.manifestOut != "" {
		f, err := os.Create(opts.manifestOut)
		if err != nil {
			return fmt.Errorf("failed to create manifest file %s: %w", opts.manifestOut, err)
		}
		if err := discovery.WriteManifest(f, sources); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}

	return analyzeAndReport(ctx, cfg, &opts.outputOptions, sources, nil, logger)
}
