// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/analysis/static/javascript"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/config"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/observability"
)

// -- Interfaces for Dependency Inversion --

// FileAnalyzer is the per-file analysis step the engine schedules. It must be
// safe for concurrent use.
type FileAnalyzer interface {
	Analyze(ctx context.Context, src schemas.ScriptSource) (*javascript.FileResult, error)
}

// Settings are the pool parameters for a run.
type Settings struct {
	Concurrency int
	// FileTimeout bounds a single file's analysis; zero disables it.
	FileTimeout          time.Duration
	GenerateRequestSpecs bool
}

// SettingsFromConfig reads the engine and analyzer sections.
func SettingsFromConfig(cfg config.Interface) Settings {
	return Settings{
		Concurrency:          cfg.Engine().WorkerConcurrency,
		FileTimeout:          cfg.Engine().FileTimeout,
		GenerateRequestSpecs: cfg.Analyzer().GenerateRequestSpecs,
	}
}

// AnalyzerOptions maps the analyzer config section onto stage options.
func AnalyzerOptions(cfg config.AnalyzerConfig) javascript.Options {
	return javascript.Options{
		IncludePrettify:      cfg.IncludePrettify,
		DetectNetworkCalls:   cfg.DetectNetworkCalls,
		ExtractMetadata:      cfg.ExtractMetadata,
		GenerateRequestSpecs: cfg.GenerateRequestSpecs,
		ContextLines:         cfg.ContextLines,
		ContextLineLimit:     cfg.ContextLineLimit,
		ValidateEndpoints:    cfg.ValidateEndpoints,
		DetectTokens:         cfg.DetectTokens,
		BruteForceTokens:     cfg.JWTBruteForce,
	}
}

// Engine runs file analyses on a bounded worker pool and aggregates the
// results into a single report.
type Engine struct {
	logger   *zap.Logger
	analyzer FileAnalyzer
	settings Settings
	now      func() time.Time
}

// New creates an engine around an analyzer.
func New(logger *zap.Logger, analyzer FileAnalyzer, settings Settings) (*Engine, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if analyzer == nil {
		return nil, errors.New("analyzer cannot be nil")
	}
	if settings.Concurrency <= 0 {
		settings.Concurrency = runtime.NumCPU()
	}
	return &Engine{
		logger:   logger.With(zap.String("component", "analysis_engine")),
		analyzer: analyzer,
		settings: settings,
		now:      time.Now,
	}, nil
}

// NewFromConfig wires the JavaScript analyzer and the engine from configuration.
func NewFromConfig(cfg config.Interface, logger *zap.Logger) (*Engine, error) {
	analyzer := javascript.NewAnalyzer(logger, AnalyzerOptions(cfg.Analyzer()))
	return New(logger, analyzer, SettingsFromConfig(cfg))
}

type fileOutcome struct {
	result *javascript.FileResult
	err    *schemas.AnalysisError
	done   bool
}

// Run analyzes every source and returns the aggregated report. preErrors are
// failures found before analysis (unreadable files) and are carried into the
// report as-is.
//
// Cancelling ctx stops scheduling new files; files already running finish.
// The report is then returned together with ctx's error and reflects only
// the files that completed.
func (e *Engine) Run(ctx context.Context, sources []schemas.ScriptSource, preErrors []schemas.AnalysisError) (*schemas.AnalysisReport, error) {
	start := time.Now()
	observability.RunsInFlight.Inc()
	defer observability.RunsInFlight.Dec()

	sources = e.dedupe(sources)
	e.logger.Info("Starting analysis run",
		zap.Int("files", len(sources)),
		zap.Int("pre_errors", len(preErrors)),
		zap.Int("concurrency", e.settings.Concurrency),
	)

	outcomes := make([]fileOutcome, len(sources))
	var g errgroup.Group
	g.SetLimit(e.settings.Concurrency)

	for i := range sources {
		if ctx.Err() != nil {
			break
		}
		// g.Go blocks while the pool is full, so the task checks again once
		// it holds a slot.
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcomes[i] = e.analyzeFile(ctx, sources[i])
			outcomes[i].done = true
			return nil
		})
	}
	// Tasks never return errors; failures are carried in outcomes.
	_ = g.Wait()

	agg := NewAggregator(e.now(), e.settings.GenerateRequestSpecs)
	for _, pe := range preErrors {
		observability.FileErrorsTotal.WithLabelValues(string(pe.Kind)).Inc()
		agg.AddError(pe)
	}
	skipped := 0
	for _, out := range outcomes {
		switch {
		case !out.done:
			skipped++
		case out.err != nil:
			agg.AddError(*out.err)
		default:
			agg.AddResult(out.result)
		}
	}

	var runErr error
	if skipped > 0 {
		runErr = ctx.Err()
		e.logger.Warn("Run cancelled; remaining files were not analyzed",
			zap.Int("skipped", skipped),
			zap.Error(runErr),
		)
	}
	report := agg.Report()

	for _, ep := range report.APIEndpoints {
		observability.EndpointsTotal.WithLabelValues(string(ep.Risk)).Inc()
	}
	for _, p := range report.DangerousPatterns {
		observability.DangerousPatternsTotal.WithLabelValues(string(p.Kind)).Inc()
	}
	observability.RunDuration.Observe(time.Since(start).Seconds())

	e.logger.Info("Analysis run finished",
		zap.Int("analyzed", report.Summary.AnalyzedFiles),
		zap.Int("errors", len(report.Errors)),
		zap.Int("endpoints", report.Summary.APIEndpoints),
		zap.Int("high_risk", report.Summary.ByRisk[schemas.RiskHigh]),
		zap.Duration("duration", time.Since(start)),
	)
	return report, runErr
}

// dedupe drops repeated paths, keeping the first occurrence.
func (e *Engine) dedupe(sources []schemas.ScriptSource) []schemas.ScriptSource {
	seen := make(map[string]bool, len(sources))
	out := make([]schemas.ScriptSource, 0, len(sources))
	for _, src := range sources {
		if seen[src.URL] {
			e.logger.Debug("Skipping duplicate source", zap.String("file", src.URL))
			continue
		}
		seen[src.URL] = true
		out = append(out, src)
	}
	return out
}

// analyzeFile runs one file task. Panics and errors are converted to report
// entries so they never reach the other tasks.
func (e *Engine) analyzeFile(ctx context.Context, src schemas.ScriptSource) (out fileOutcome) {
	logger := e.logger.With(zap.String("file", src.URL))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic during file analysis", zap.Any("panic", r), zap.Stack("stack"))
			observability.FileErrorsTotal.WithLabelValues(string(schemas.ErrorKindInternal)).Inc()
			out = fileOutcome{err: &schemas.AnalysisError{
				File:    src.URL,
				Kind:    schemas.ErrorKindInternal,
				Message: fmt.Sprintf("panic during analysis: %v", r),
			}}
		}
	}()

	// Cancelling the run only stops scheduling, so the file keeps a context
	// that ignores the parent's cancellation.
	fileCtx := context.WithoutCancel(ctx)
	if e.settings.FileTimeout > 0 {
		var cancel context.CancelFunc
		fileCtx, cancel = context.WithTimeout(fileCtx, e.settings.FileTimeout)
		defer cancel()
	}

	result, err := e.analyzer.Analyze(fileCtx, src)
	if err != nil {
		ae := e.classify(src.URL, err, fileCtx)
		observability.FileErrorsTotal.WithLabelValues(string(ae.Kind)).Inc()
		logger.Warn("File recorded as error", zap.String("kind", string(ae.Kind)), zap.Error(err))
		return fileOutcome{err: ae}
	}

	observability.FilesAnalyzedTotal.WithLabelValues(string(result.Language)).Inc()
	observability.FileAnalysisDuration.WithLabelValues(string(result.Language)).Observe(result.Duration.Seconds())
	return fileOutcome{result: result}
}

func (e *Engine) classify(file string, err error, fileCtx context.Context) *schemas.AnalysisError {
	if errors.Is(fileCtx.Err(), context.DeadlineExceeded) {
		return &schemas.AnalysisError{
			File:    file,
			Kind:    schemas.ErrorKindInternal,
			Message: fmt.Sprintf("analysis exceeded the per-file timeout of %s", e.settings.FileTimeout),
		}
	}
	var perr *javascript.ParseError
	if errors.As(err, &perr) {
		return &schemas.AnalysisError{
			File:    file,
			Kind:    schemas.ErrorKindParse,
			Message: perr.Message,
			Line:    perr.Line,
			Column:  perr.Column,
		}
	}
	return &schemas.AnalysisError{File: file, Kind: schemas.ErrorKindInternal, Message: err.Error()}
}
