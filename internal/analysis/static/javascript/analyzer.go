// Filename: javascript/analyzer.go
// Analyzer runs the whole per-file pipeline: parse, traverse with taint and
// detector handlers, and collect the file's findings.
package javascript

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
)

// FileResult holds everything one file contributes to a report.
type FileResult struct {
	File              string
	Type              schemas.ScriptType
	Language          Language
	SizeBytes         int
	NetworkCalls      []schemas.NetworkCall
	Endpoints         []schemas.Endpoint
	DangerousPatterns []schemas.DangerousPattern
	TaintSources      []string
	TaintedBindings   []schemas.TaintedBinding
	HardcodedTokens   []schemas.HardcodedToken
	Duration          time.Duration
}

// Summary converts the result into its per-file report entry.
func (r *FileResult) Summary() schemas.FileSummary {
	return schemas.FileSummary{
		File:              r.File,
		Type:              r.Type,
		Language:          string(r.Language),
		SizeBytes:         r.SizeBytes,
		NetworkCalls:      len(r.NetworkCalls),
		APIEndpoints:      len(r.Endpoints),
		DangerousPatterns: len(r.DangerousPatterns),
		TaintSources:      r.TaintSources,
		TaintedBindings:   r.TaintedBindings,
	}
}

// Analyzer analyzes JavaScript and TypeScript sources. It holds no per-file
// state and is safe for concurrent use.
type Analyzer struct {
	logger *zap.Logger
	opts   Options
	walker *Walker
}

// NewAnalyzer creates an analyzer with the given stage options.
func NewAnalyzer(logger *zap.Logger, opts Options) *Analyzer {
	logger = logger.Named("js_analyzer")
	if opts.ValidateEndpoints {
		logger.Info("Endpoint validation requested; it is left to an external validator and no requests are made")
	}

	walker := NewWalker(logger).
		On(KindDeclarator, handleDeclarator).
		On(KindAssign, handleAssignment).
		On(KindBinary, handleBinary).
		On(KindTemplate, handleTemplate).
		On(KindMember, observeMember).
		On(KindCall, observeCall).
		On(KindCall, detectCall).
		On(KindNew, observeNew).
		On(KindNew, detectNew).
		On(KindLiteral, detectTokens).
		On(KindTemplate, detectTokens)

	return &Analyzer{
		logger: logger,
		opts:   opts.normalized(),
		walker: walker,
	}
}

// Options returns the stage options the analyzer was built with.
func (a *Analyzer) Options() Options { return a.opts }

// Analyze parses and analyzes one script. A syntax error is returned as a
// *ParseError and the file contributes nothing else.
func (a *Analyzer) Analyze(ctx context.Context, src schemas.ScriptSource) (*FileResult, error) {
	start := time.Now()
	lang := DetectLanguage(src.URL)
	result := &FileResult{
		File:              src.URL,
		Type:              src.Type,
		Language:          lang,
		SizeBytes:         len(src.Content),
		NetworkCalls:      []schemas.NetworkCall{},
		Endpoints:         []schemas.Endpoint{},
		DangerousPatterns: []schemas.DangerousPattern{},
		TaintSources:      []string{},
		TaintedBindings:   []schemas.TaintedBinding{},
		HardcodedTokens:   []schemas.HardcodedToken{},
	}
	if src.Content == "" {
		return result, nil
	}

	a.logger.Debug("Starting analysis of script",
		zap.String("file", src.URL),
		zap.String("language", string(lang)),
		zap.Int("size_bytes", len(src.Content)),
	)

	source := []byte(src.Content)
	prog, err := Parse(ctx, src.URL, source, lang)
	if err != nil {
		a.logger.Warn("Script failed to parse", zap.String("file", src.URL), zap.Error(err))
		return nil, err
	}

	fc := NewFileContext(src.URL, source, a.opts)
	a.walker.Walk(fc, prog)

	for _, site := range fc.CallSites() {
		result.NetworkCalls = append(result.NetworkCalls, site.NetworkCall(src.URL))
	}
	result.Endpoints = append(result.Endpoints, fc.Endpoints()...)
	result.DangerousPatterns = append(result.DangerousPatterns, fc.Patterns()...)
	result.TaintSources = fc.ObservedSources()
	result.TaintedBindings = fc.TaintedBindings()
	result.HardcodedTokens = append(result.HardcodedTokens, fc.Tokens()...)
	result.Duration = time.Since(start)

	if len(result.NetworkCalls) > 0 || len(result.DangerousPatterns) > 0 || len(result.HardcodedTokens) > 0 {
		a.logger.Debug("Analysis completed with findings",
			zap.String("file", src.URL),
			zap.Int("network_calls", len(result.NetworkCalls)),
			zap.Int("endpoints", len(result.Endpoints)),
			zap.Int("dangerous_patterns", len(result.DangerousPatterns)),
			zap.Int("tainted_bindings", len(result.TaintedBindings)),
			zap.Int("hardcoded_tokens", len(result.HardcodedTokens)),
			zap.Duration("duration", result.Duration),
		)
	}
	return result, nil
}
