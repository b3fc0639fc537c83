// File: internal/mcp/types.go
package mcp

import (
	"context"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
)

// Command names accepted by POST /api/v1/command.
const (
	CommandPing             = "ping"
	CommandAnalyzeScripts   = "analyze_scripts"
	CommandAnalyzeDirectory = "analyze_directory"
	CommandHarvestPage      = "harvest_page"
	CommandQueryEndpoints   = "query_endpoints"
)

// CommandRequest defines the structure of the incoming JSON request.
type CommandRequest struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params"`
}

// CommandResponse defines the structure of the outgoing JSON response.
type CommandResponse struct {
	Status string `json:"status"` // "success" or "error"
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ScriptInput is one in-memory script submitted for analysis.
type ScriptInput struct {
	URL     string `json:"url"`
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
}

// OptionOverrides replace analyzer settings for a single command. Pointers
// distinguish unset values from zero values.
type OptionOverrides struct {
	IncludePrettify      *bool `json:"include_prettify,omitempty"`
	DetectNetworkCalls   *bool `json:"detect_network_calls,omitempty"`
	ExtractMetadata      *bool `json:"extract_metadata,omitempty"`
	GenerateRequestSpecs *bool `json:"generate_request_specs,omitempty"`
	ContextLines         *int  `json:"context_lines,omitempty"`
}

// AnalyzeScriptsParams defines parameters for the "analyze_scripts" command.
type AnalyzeScriptsParams struct {
	Scripts []ScriptInput    `json:"scripts"`
	Options *OptionOverrides `json:"options,omitempty"`
}

// AnalyzeDirectoryParams defines parameters for the "analyze_directory" command.
type AnalyzeDirectoryParams struct {
	Path    string           `json:"path"`
	Exclude []string         `json:"exclude,omitempty"`
	Options *OptionOverrides `json:"options,omitempty"`
	// Persist stores the report when a store is configured.
	Persist bool `json:"persist,omitempty"`
}

// HarvestParams defines parameters for the "harvest_page" command.
type HarvestParams struct {
	URL string `json:"url"`
	// Analyze runs the analysis over the harvested scripts instead of
	// returning them.
	Analyze bool             `json:"analyze,omitempty"`
	Options *OptionOverrides `json:"options,omitempty"`
}

// QueryParams defines parameters for the "query_endpoints" command.
type QueryParams struct {
	RunID string `json:"run_id"`
	// Risk filters by level (LOW, MEDIUM, HIGH). Case-insensitive.
	Risk string `json:"risk,omitempty"`
	// Limit restricts the number of results. Defaults to 100, max 1000.
	Limit int `json:"limit,omitempty"`
}

// PageHarvester collects the scripts a page loads. Satisfied by *browser.Harvester.
type PageHarvester interface {
	Harvest(ctx context.Context, pageURL string) ([]schemas.ScriptSource, error)
}

// EndpointStore persists and reads analysis runs. Satisfied by *store.Store.
type EndpointStore interface {
	PersistReport(ctx context.Context, runID string, report *schemas.AnalysisReport) error
	GetEndpoints(ctx context.Context, runID string, risk schemas.RiskLevel) ([]schemas.Endpoint, error)
}
