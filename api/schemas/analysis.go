package schemas

import (
	"fmt"
	"time"
)

// -- Input Schemas --

// ScriptType describes how a script reached the page it was harvested from.
type ScriptType string

const (
	ScriptExternal ScriptType = "external"
	ScriptInline   ScriptType = "inline"
	ScriptDynamic  ScriptType = "dynamic"
)

// ParseScriptType validates a script type tag. An empty tag means external.
func ParseScriptType(s string) (ScriptType, error) {
	switch ScriptType(s) {
	case "":
		return ScriptExternal, nil
	case ScriptExternal, ScriptInline, ScriptDynamic:
		return ScriptType(s), nil
	default:
		return "", fmt.Errorf("invalid script type %q (want external, inline or dynamic)", s)
	}
}

// ScriptSource is one unit of analysis: a path or URL plus its resolved content.
type ScriptSource struct {
	URL     string     `json:"url"`
	Content string     `json:"content"`
	Type    ScriptType `json:"type"`
}

// -- Report Schemas --

// Summary holds the global counts for a run.
type Summary struct {
	TotalFiles        int               `json:"totalFiles"`
	AnalyzedFiles     int               `json:"analyzedFiles"`
	// ParseErrors counts every entry in the report's errors list, so io and
	// internal failures are included alongside syntax errors.
	ParseErrors       int               `json:"parseErrors"`
	NetworkCalls      int               `json:"networkCalls"`
	APIEndpoints      int               `json:"apiEndpoints"`
	DangerousPatterns int               `json:"dangerousPatterns"`
	TaintSources      int               `json:"taintSources"`
	ByRisk            map[RiskLevel]int `json:"byRisk"`
	ByCallType        map[CallKind]int  `json:"byCallType"`
}

// FileSummary describes the outcome for a single analyzed file.
type FileSummary struct {
	File              string           `json:"file"`
	Type              ScriptType       `json:"type"`
	Language          string           `json:"language"`
	SizeBytes         int              `json:"sizeBytes"`
	NetworkCalls      int              `json:"networkCalls"`
	APIEndpoints      int              `json:"apiEndpoints"`
	DangerousPatterns int              `json:"dangerousPatterns"`
	TaintSources      []string         `json:"taintSources"`
	TaintedBindings   []TaintedBinding `json:"taintedBindings"`
}

// AnalysisReport is the aggregate output for a whole run.
type AnalysisReport struct {
	Timestamp         time.Time          `json:"timestamp"`
	Summary           Summary            `json:"summary"`
	Files             []FileSummary      `json:"files"`
	NetworkCalls      []NetworkCall      `json:"networkCalls"`
	APIEndpoints      []Endpoint         `json:"apiEndpoints"`
	DangerousPatterns []DangerousPattern `json:"dangerousPatterns"`
	TaintSources      []string           `json:"taintSources"`
	RequestSpecs      []RequestSpec      `json:"requestSpecs,omitempty"`
	HardcodedTokens   []HardcodedToken   `json:"hardcodedTokens,omitempty"`
	Errors            []AnalysisError    `json:"errors"`
}

// NewAnalysisReport returns an empty report with non-nil collections so it
// encodes as empty arrays rather than null.
func NewAnalysisReport(ts time.Time) *AnalysisReport {
	return &AnalysisReport{
		Timestamp: ts.UTC(),
		Summary: Summary{
			ByRisk:     map[RiskLevel]int{},
			ByCallType: map[CallKind]int{},
		},
		Files:             []FileSummary{},
		NetworkCalls:      []NetworkCall{},
		APIEndpoints:      []Endpoint{},
		DangerousPatterns: []DangerousPattern{},
		TaintSources:      []string{},
		Errors:            []AnalysisError{},
	}
}
