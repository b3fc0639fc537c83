// File: internal/mcp/handlers.go
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/analysis/static/javascript"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/config"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/discovery"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/engine"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxRequestBytes caps the size of a command body.
const maxRequestBytes = 32 << 20

// commandError carries the HTTP status for a failed command.
type commandError struct {
	status  int
	message string
}

func (e *commandError) Error() string { return e.message }

func badRequest(format string, args ...any) error {
	return &commandError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

func unavailable(message string) error {
	return &commandError{status: http.StatusServiceUnavailable, message: message}
}

type commandFunc func(ctx context.Context, params map[string]any) (any, error)

// Handlers manages the HTTP request handling for the command server.
type Handlers struct {
	log          *zap.Logger
	cfg          config.Interface
	queryService *QueryService
	store        EndpointStore
	harvester    PageHarvester
	commands     map[string]commandFunc
}

// NewHandlers creates a new Handlers instance. store and harvester may be
// nil; the commands that need them then report the service as unavailable.
func NewHandlers(logger *zap.Logger, cfg config.Interface, store EndpointStore, harvester PageHarvester) *Handlers {
	h := &Handlers{
		log:          logger.Named("mcp_handlers"),
		cfg:          cfg,
		queryService: NewQueryService(store, logger),
		store:        store,
		harvester:    harvester,
	}
	h.commands = map[string]commandFunc{
		CommandPing:             h.handlePing,
		CommandAnalyzeScripts:   h.handleAnalyzeScripts,
		CommandAnalyzeDirectory: h.handleAnalyzeDirectory,
		CommandHarvestPage:      h.handleHarvestPage,
		CommandQueryEndpoints:   h.handleQueryEndpoints,
	}
	return h
}

// RegisterRoutes sets up the API routes. apiMiddlewares apply to the
// versioned API only, not to the health check.
func (h *Handlers) RegisterRoutes(r chi.Router, apiMiddlewares ...func(http.Handler) http.Handler) {
	r.Get("/healthz", h.HandleHealthCheck)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiMiddlewares...)
		r.Post("/command", h.HandleCommand)
	})
}

// HandleHealthCheck is a simple handler to confirm the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HandleCommand decodes a command and dispatches it.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		observability.CommandsTotal.WithLabelValues("invalid", "error").Inc()
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	name := strings.ToLower(strings.TrimSpace(req.Command))
	cmd, ok := h.commands[name]
	if !ok {
		observability.CommandsTotal.WithLabelValues("unknown", "error").Inc()
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Unknown command: %s", req.Command))
		return
	}

	h.log.Info("Received command", zap.String("command", name))
	data, err := cmd(r.Context(), req.Params)
	if err != nil {
		observability.CommandsTotal.WithLabelValues(name, "error").Inc()
		var cmdErr *commandError
		if errors.As(err, &cmdErr) {
			h.respondWithError(w, cmdErr.status, cmdErr.message)
			return
		}
		h.log.Error("Command failed", zap.String("command", name), zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	observability.CommandsTotal.WithLabelValues(name, "success").Inc()
	h.respondWithSuccess(w, http.StatusOK, data)
}

func (h *Handlers) handlePing(_ context.Context, _ map[string]any) (any, error) {
	return map[string]string{"message": "pong"}, nil
}

// handleAnalyzeScripts analyzes scripts submitted in the request body.
func (h *Handlers) handleAnalyzeScripts(ctx context.Context, paramsMap map[string]any) (any, error) {
	params, err := mapToStruct[AnalyzeScriptsParams](paramsMap)
	if err != nil {
		return nil, badRequest("Invalid parameters for analyze_scripts: %v", err)
	}
	if len(params.Scripts) == 0 {
		return nil, badRequest("At least one script is required.")
	}

	sources := make([]schemas.ScriptSource, 0, len(params.Scripts))
	for i, s := range params.Scripts {
		if s.URL == "" {
			return nil, badRequest("Script %d has no url.", i)
		}
		typ, err := schemas.ParseScriptType(s.Type)
		if err != nil {
			return nil, badRequest("Script %d: %v", i, err)
		}
		sources = append(sources, schemas.ScriptSource{URL: s.URL, Content: s.Content, Type: typ})
	}

	return h.analyze(ctx, params.Options, sources, nil)
}

// handleAnalyzeDirectory discovers and analyzes scripts under a server-side path.
func (h *Handlers) handleAnalyzeDirectory(ctx context.Context, paramsMap map[string]any) (any, error) {
	params, err := mapToStruct[AnalyzeDirectoryParams](paramsMap)
	if err != nil {
		return nil, badRequest("Invalid parameters for analyze_directory: %v", err)
	}
	if params.Path == "" {
		return nil, badRequest("Path parameter is required.")
	}
	abs, err := filepath.Abs(params.Path)
	if err != nil {
		return nil, badRequest("Invalid path: %v", err)
	}
	if !withinRoots(abs, h.cfg.Server().AllowedRoots) {
		return nil, &commandError{status: http.StatusForbidden, message: fmt.Sprintf("Path %s is outside the allowed roots.", params.Path)}
	}

	discoveryCfg := h.cfg.Discovery()
	discoveryCfg.Exclude = append(append([]string{}, discoveryCfg.Exclude...), params.Exclude...)
	loader, err := discovery.NewLoader(h.log, discoveryCfg)
	if err != nil {
		return nil, badRequest("%v", err)
	}
	sources, ioErrors, err := loader.Discover(ctx, []string{abs})
	if err != nil {
		return nil, err
	}

	report, err := h.analyze(ctx, params.Options, sources, ioErrors)
	if err != nil || !params.Persist {
		return report, err
	}
	if h.store == nil {
		return nil, unavailable("Persistence requested but no database is configured.")
	}
	runID := uuid.NewString()
	if err := h.store.PersistReport(ctx, runID, report); err != nil {
		return nil, fmt.Errorf("failed to persist report: %w", err)
	}
	return map[string]any{"run_id": runID, "report": report}, nil
}

// handleHarvestPage loads a page in the browser and returns, or analyzes, its scripts.
func (h *Handlers) handleHarvestPage(ctx context.Context, paramsMap map[string]any) (any, error) {
	if h.harvester == nil {
		return nil, unavailable("Page harvesting is unavailable (no browser configured).")
	}
	params, err := mapToStruct[HarvestParams](paramsMap)
	if err != nil {
		return nil, badRequest("Invalid parameters for harvest_page: %v", err)
	}
	if params.URL == "" {
		return nil, badRequest("URL parameter is required.")
	}

	sources, err := h.harvester.Harvest(ctx, params.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to harvest %s: %w", params.URL, err)
	}
	if !params.Analyze {
		return map[string]any{"count": len(sources), "scripts": sources}, nil
	}
	return h.analyze(ctx, params.Options, sources, nil)
}

// handleQueryEndpoints reads persisted endpoints of a run.
func (h *Handlers) handleQueryEndpoints(ctx context.Context, paramsMap map[string]any) (any, error) {
	if h.store == nil {
		return nil, unavailable("Query service is unavailable (database not configured or connected).")
	}
	params, err := mapToStruct[QueryParams](paramsMap)
	if err != nil {
		return nil, badRequest("Invalid parameters for query_endpoints: %v", err)
	}

	endpoints, err := h.queryService.QueryEndpoints(ctx, params)
	if err != nil {
		if errors.Is(err, errInvalidQuery) {
			return nil, badRequest("%v", err)
		}
		h.log.Error("Failed to query endpoints", zap.Error(err))
		return nil, &commandError{status: http.StatusInternalServerError, message: "Internal error retrieving endpoints."}
	}
	return map[string]any{
		"count":     len(endpoints),
		"endpoints": endpoints,
	}, nil
}

// analyze runs the engine with the configured analyzer settings, applying
// per-command overrides.
func (h *Handlers) analyze(ctx context.Context, overrides *OptionOverrides, sources []schemas.ScriptSource, preErrors []schemas.AnalysisError) (*schemas.AnalysisReport, error) {
	analyzerCfg := applyOverrides(h.cfg.Analyzer(), overrides)
	settings := engine.SettingsFromConfig(h.cfg)
	settings.GenerateRequestSpecs = analyzerCfg.GenerateRequestSpecs

	analyzer := javascript.NewAnalyzer(h.log, engine.AnalyzerOptions(analyzerCfg))
	eng, err := engine.New(h.log, analyzer, settings)
	if err != nil {
		return nil, err
	}
	return eng.Run(ctx, sources, preErrors)
}

func applyOverrides(cfg config.AnalyzerConfig, o *OptionOverrides) config.AnalyzerConfig {
	if o == nil {
		return cfg
	}
	if o.IncludePrettify != nil {
		cfg.IncludePrettify = *o.IncludePrettify
	}
	if o.DetectNetworkCalls != nil {
		cfg.DetectNetworkCalls = *o.DetectNetworkCalls
	}
	if o.ExtractMetadata != nil {
		cfg.ExtractMetadata = *o.ExtractMetadata
	}
	if o.GenerateRequestSpecs != nil {
		cfg.GenerateRequestSpecs = *o.GenerateRequestSpecs
	}
	if o.ContextLines != nil && *o.ContextLines >= 0 {
		cfg.ContextLines = *o.ContextLines
	}
	return cfg
}

// withinRoots reports whether path lies inside one of roots. An empty list
// allows every path.
func withinRoots(path string, roots []string) bool {
	if len(roots) == 0 {
		return true
	}
	for _, root := range roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}

// Generic utility function to convert map[string]any to a specific struct using JSON marshaling.
func mapToStruct[T any](m map[string]any) (T, error) {
	var result T
	if m == nil {
		return result, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return result, err
	}
	err = json.Unmarshal(data, &result)
	return result, err
}

// respondWithError sends a standardized JSON error response.
func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respond(w, statusCode, CommandResponse{Status: "error", Error: message})
}

// respondWithSuccess sends a standardized JSON success response.
func (h *Handlers) respondWithSuccess(w http.ResponseWriter, statusCode int, data any) {
	h.respond(w, statusCode, CommandResponse{Status: "success", Data: data})
}

func (h *Handlers) respond(w http.ResponseWriter, statusCode int, resp CommandResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
