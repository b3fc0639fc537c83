package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/analysis/static/javascript"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/config"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/discovery"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/engine"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/network"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/observability"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/reporting"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/store"
)

// outputOptions are the flags shared by the commands that produce a report.
type outputOptions struct {
	output  string
	format  string
	persist bool
}

func (o *outputOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&o.format, "format", "f", reporting.FormatJSON, "output format: json, specs, sarif, openapi or curl")
	cmd.Flags().BoolVar(&o.persist, "persist", false, "store the report in the configured database")
}

type analyzeOptions struct {
	outputOptions
	manifest string
	exclude  []string
}

// reportPersister stores a finished report. Satisfied by *store.Store.
type reportPersister interface {
	PersistReport(ctx context.Context, runID string, report *schemas.AnalysisReport) error
}

// persisterFactory opens the store used by --persist. Replaced in tests.
var persisterFactory = func(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (reportPersister, func(), error) {
	s, cleanup, err := store.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	return s, cleanup, nil
}

func newAnalyzeCmd(global *globalOptions) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze [paths or urls...]",
		Short: "Analyze JavaScript files, directories, URLs or a script manifest",
		Long: `Analyze walks the given files and directories (including compressed bundles and
inline <script> blocks of HTML pages), fetches http(s) URLs over plain HTTP
(a page contributes its inline and referenced scripts), or reads a JSON
manifest of {url, content, type} triples, and reports the network calls it
can reconstruct.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && opts.manifest == "" {
				return errors.New("requires at least one path or --manifest")
			}
			return nil
		},
		// Bind flags to their corresponding Viper keys so they override values
		// from the config file and environment.
		PreRunE: func(cmd *cobra.Command, args []string) error {
			bindings := map[string]string{
				"engine.worker_concurrency": "concurrency",
				"analyzer.context_lines":    "context-lines",
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
			return runAnalyze(cmd.Context(), cfg, opts, args, observability.GetLogger())
		},
	}

	opts.addFlags(cmd)
	addAnalyzerFlags(cmd)
	cmd.Flags().StringVar(&opts.manifest, "manifest", "", "JSON manifest of scripts to analyze ('-' for stdin)")
	cmd.Flags().StringSliceVar(&opts.exclude, "exclude", nil, "additional glob patterns to exclude")
	return cmd
}

// addAnalyzerFlags registers the flags that tune the analysis itself.
func addAnalyzerFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("concurrency", "j", 0, "number of files analyzed in parallel (default: number of CPUs)")
	cmd.Flags().Int("context-lines", 30, "source lines captured around each network call")
	cmd.Flags().Bool("no-network-calls", false, "skip network call detection")
	cmd.Flags().Bool("no-metadata", false, "skip endpoint metadata extraction")
	cmd.Flags().Bool("no-specs", false, "skip request spec generation")
	cmd.Flags().Bool("no-tokens", false, "skip hardcoded JWT detection")
	cmd.Flags().Bool("jwt-brute-force", false, "try common HMAC secrets against hardcoded JWTs")
}

// applyAnalyzerFlags applies the boolean switches, which have no direct
// viper key.
func applyAnalyzerFlags(cmd *cobra.Command, cfg *config.Config) {
	if on, _ := cmd.Flags().GetBool("no-network-calls"); on {
		cfg.AnalyzerCfg.DetectNetworkCalls = false
	}
	if on, _ := cmd.Flags().GetBool("no-metadata"); on {
		cfg.AnalyzerCfg.ExtractMetadata = false
	}
	if on, _ := cmd.Flags().GetBool("no-specs"); on {
		cfg.AnalyzerCfg.GenerateRequestSpecs = false
	}
	if on, _ := cmd.Flags().GetBool("no-tokens"); on {
		cfg.AnalyzerCfg.DetectTokens = false
	}
	if on, _ := cmd.Flags().GetBool("jwt-brute-force"); on {
		cfg.AnalyzerCfg.JWTBruteForce = true
	}
}

func runAnalyze(ctx context.Context, cfg *config.Config, opts *analyzeOptions, paths []string, logger *zap.Logger) error {
	var (
		sources   []schemas.ScriptSource
		preErrors []schemas.AnalysisError
	)

	if opts.manifest != "" {
		fromManifest, err := readManifest(opts.manifest)
		if err != nil {
			return err
		}
		sources = append(sources, fromManifest...)
	}

	var (
		local   []string
		fetcher *network.Fetcher
	)
	for _, p := range paths {
		if !network.IsRemote(p) {
			local = append(local, p)
			continue
		}
		if fetcher == nil {
			fetcher = network.NewFetcher(logger, cfg.Fetch())
		}
		fetched, fetchErrors, err := fetcher.Fetch(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			logger.Warn("Failed to fetch remote input", zap.String("url", p), zap.Error(err))
			preErrors = append(preErrors, schemas.AnalysisError{File: p, Kind: schemas.ErrorKindIO, Message: err.Error()})
		}
		sources = append(sources, fetched...)
		preErrors = append(preErrors, fetchErrors...)
	}

	if len(local) > 0 {
		discoveryCfg := cfg.Discovery()
		discoveryCfg.Exclude = append(discoveryCfg.Exclude, opts.exclude...)
		loader, err := discovery.NewLoader(logger, discoveryCfg)
		if err != nil {
			return err
		}
		found, ioErrors, err := loader.Discover(ctx, local)
		if err != nil {
			return err
		}
		sources = append(sources, found...)
		preErrors = append(preErrors, ioErrors...)
	}

	return analyzeAndReport(ctx, cfg, &opts.outputOptions, sources, preErrors, logger)
}

// analyzeAndReport runs the engine and writes the report. A cancelled run
// still writes what finished before returning the cancellation.
func analyzeAndReport(ctx context.Context, cfg *config.Config, out *outputOptions, sources []schemas.ScriptSource, preErrors []schemas.AnalysisError, logger *zap.Logger) error {
	// Fail on a bad format before any analysis work.
	reporter, err := reporting.New(out.format, out.output, logger, Version)
	if err != nil {
		return err
	}

	analyzer := javascript.NewAnalyzer(logger, engine.AnalyzerOptions(cfg.Analyzer()))
	eng, err := engine.New(logger, analyzer, engine.SettingsFromConfig(cfg))
	if err != nil {
		_ = reporter.Close()
		return err
	}

	report, runErr := eng.Run(ctx, sources, preErrors)
	if report == nil {
		_ = reporter.Close()
		return runErr
	}

	writeErr := reporter.Write(report)
	closeErr := reporter.Close()
	if writeErr != nil {
		return fmt.Errorf("failed to write report: %w", writeErr)
	}
	if closeErr != nil {
		return closeErr
	}
	if runErr != nil {
		return runErr
	}

	if out.persist {
		return persistReport(ctx, cfg, report, logger)
	}
	return nil
}

func persistReport(ctx context.Context, cfg *config.Config, report *schemas.AnalysisReport, logger *zap.Logger) error {
	persister, cleanup, err := persisterFactory(ctx, cfg.Database(), logger)
	if err != nil {
		return fmt.Errorf("failed to open the report store: %w", err)
	}
	defer cleanup()

	runID := uuid.NewString()
	if err := persister.PersistReport(ctx, runID, report); err != nil {
		return err
	}
	logger.Info("Report persisted", zap.String("run_id", runID))
	return nil
}

func readManifest(path string) ([]schemas.ScriptSource, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open manifest: %w", err)
		}
		defer f.Close()
		r = f
	}
	return discovery.LoadManifest(r)
}
