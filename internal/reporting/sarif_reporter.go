// internal/reporting/sarif_reporter.go
package reporting

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/reporting/sarif"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "jsrecon"
	ToolInfoURI  = "https://github.com/xkilldash9x/scalpel-jsrecon"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

// Rule IDs emitted by the SARIF reporter.
const (
	RuleStringConcat    = "JSRECON-STRING-CONCAT"
	RuleTemplateLiteral = "JSRECON-TEMPLATE-LITERAL-INJECTION"
	RuleAPIEndpoint     = "JSRECON-API-ENDPOINT"
	RuleHardcodedJWT    = "JSRECON-HARDCODED-JWT"
)

type ruleDefinition struct {
	name        string
	description string
	help        string
}

var ruleCatalog = map[string]ruleDefinition{
	RuleStringConcat: {
		name:        "TaintedStringConcatenation",
		description: "Untrusted data from a browser source is concatenated into a string.",
		help:        "Validate or encode the value before it is combined into URLs, HTML or code.",
	},
	RuleTemplateLiteral: {
		name:        "TaintedTemplateLiteral",
		description: "Untrusted data from a browser source is interpolated into a template literal.",
		help:        "Validate or encode the value before interpolating it.",
	},
	RuleAPIEndpoint: {
		name:        "ClientSideAPIEndpoint",
		description: "A network request issued by client-side code. The level follows the endpoint's risk.",
		help:        "Review the endpoint; HIGH risk means untrusted data reaches the request.",
	},
	RuleHardcodedJWT: {
		name:        "HardcodedJSONWebToken",
		description: "A JSON Web Token is embedded in client-side code and readable by anyone who loads the script.",
		help:        "Issue tokens at runtime and revoke the embedded one.",
	},
}

// SARIFReporter renders dangerous patterns and endpoints as SARIF 2.1.0
// results. It is thread safe.
type SARIFReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	log    *sarif.Log
	// mu protects the log structure and the rule index.
	mu    sync.Mutex
	rules map[string]bool
}

// NewSARIFReporter creates a new reporter that writes SARIF output.
func NewSARIFReporter(writer io.WriteCloser, logger *zap.Logger, toolVersion string) *SARIFReporter {
	log := &sarif.Log{
		Version: SARIFVersion,
		Schema:  SARIFSchema,
		Runs: []*sarif.Run{
			{
				Tool: &sarif.Tool{
					Driver: &sarif.ToolComponent{
						Name:           ToolName,
						Version:        pString(toolVersion),
						InformationURI: pString(ToolInfoURI),
						// Empty slices (not nil) for proper JSON marshalling
						Rules: []*sarif.ReportingDescriptor{},
					},
				},
				Results: []*sarif.Result{},
			},
		},
	}

	return &SARIFReporter{
		writer: writer,
		logger: logger,
		log:    log,
		rules:  make(map[string]bool),
	}
}

// Write converts the report's findings into SARIF results.
func (r *SARIFReporter) Write(report *schemas.AnalysisReport) error {
	startTime := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]

	for _, p := range report.DangerousPatterns {
		ruleID := RuleStringConcat
		if p.Kind == schemas.PatternTemplateLiteral {
			ruleID = RuleTemplateLiteral
		}
		r.ensureRule(ruleID)

		msg := fmt.Sprintf("Tainted data flows into `%s`", p.Expression)
		if len(p.Sources) > 0 {
			msg += fmt.Sprintf(" (sources: %s)", strings.Join(p.Sources, ", "))
		}
		run.Results = append(run.Results, &sarif.Result{
			RuleID:    ruleID,
			Message:   &sarif.Message{Text: pString(msg)},
			Level:     sarif.LevelWarning,
			Locations: createLocations(p.File, p.Line, p.Column, p.Expression),
			PartialFingerprints: map[string]string{
				"jsrecon/v1": fingerprint(ruleID, p.File, p.Expression),
			},
		})
	}

	for _, ep := range report.APIEndpoints {
		r.ensureRule(RuleAPIEndpoint)
		msg := fmt.Sprintf("%s %s [%s]", ep.Method, ep.URL, ep.Risk)
		if len(ep.TaintedBy) > 0 {
			msg += fmt.Sprintf(" tainted by %s", strings.Join(ep.TaintedBy, ", "))
		}
		run.Results = append(run.Results, &sarif.Result{
			RuleID:    RuleAPIEndpoint,
			Message:   &sarif.Message{Text: pString(msg)},
			Level:     mapRiskToSARIFLevel(ep.Risk),
			Locations: createLocations(ep.File, ep.Line, ep.Column, ""),
			PartialFingerprints: map[string]string{
				"jsrecon/v1": fingerprint(RuleAPIEndpoint, ep.File, ep.Method, ep.URL),
			},
			Properties: &sarif.PropertyBag{
				"callKind":  string(ep.Kind),
				"method":    ep.Method,
				"url":       ep.URL,
				"riskLevel": string(ep.Risk),
			},
		})
	}

	for _, tok := range report.HardcodedTokens {
		r.ensureRule(RuleHardcodedJWT)
		kinds := make([]string, 0, len(tok.Issues))
		for _, issue := range tok.Issues {
			kinds = append(kinds, string(issue.Kind))
		}
		msg := fmt.Sprintf("Hardcoded %s token %s", tok.Algorithm, tok.Preview)
		if len(kinds) > 0 {
			msg += fmt.Sprintf(" (%s)", strings.Join(kinds, ", "))
		}
		run.Results = append(run.Results, &sarif.Result{
			RuleID:    RuleHardcodedJWT,
			Message:   &sarif.Message{Text: pString(msg)},
			Level:     mapRiskToSARIFLevel(tok.Risk),
			Locations: createLocations(tok.File, tok.Line, tok.Column, ""),
			PartialFingerprints: map[string]string{
				"jsrecon/v1": fingerprint(RuleHardcodedJWT, tok.File, tok.Preview),
			},
			Properties: &sarif.PropertyBag{
				"algorithm": tok.Algorithm,
				"riskLevel": string(tok.Risk),
			},
		})
	}

	invocation := &sarif.Invocation{ExecutionSuccessful: true}
	for _, e := range report.Errors {
		invocation.ToolExecutionNotifications = append(invocation.ToolExecutionNotifications, &sarif.Notification{
			Message:   &sarif.Message{Text: pString(fmt.Sprintf("%s: %s", e.Kind, e.Message))},
			Level:     sarif.LevelWarning,
			Locations: createLocations(e.File, e.Line, e.Column, ""),
		})
	}
	run.Invocations = []*sarif.Invocation{invocation}

	r.logger.Debug("Wrote findings to SARIF buffer",
		zap.Int("results", len(run.Results)),
		zap.Duration("duration", time.Since(startTime)),
	)
	return nil
}

// Close finalizes the SARIF log and writes it to the output writer.
func (r *SARIFReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")

	encodeErr := encoder.Encode(r.log)
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode SARIF log to JSON", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}

	r.logger.Info("Wrote SARIF report",
		zap.Int("results", len(r.log.Runs[0].Results)),
		zap.Int("rules", len(r.log.Runs[0].Tool.Driver.Rules)),
	)
	return nil
}

// ensureRule registers a rule from the catalog the first time it is used.
// NOTE: Must be called while holding the mutex.
func (r *SARIFReporter) ensureRule(ruleID string) {
	if r.rules[ruleID] {
		return
	}
	r.rules[ruleID] = true

	def := ruleCatalog[ruleID]
	driver := r.log.Runs[0].Tool.Driver
	driver.Rules = append(driver.Rules, &sarif.ReportingDescriptor{
		ID:               ruleID,
		Name:             pString(def.name),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString(def.name)},
		FullDescription:  &sarif.MultiformatMessageString{Text: pString(def.description)},
		Help: &sarif.MultiformatMessageString{
			Text:     pString(def.help),
			Markdown: pString(fmt.Sprintf("**%s**\n\n%s\n\n%s", def.name, def.description, def.help)),
		},
		Properties: &sarif.PropertyBag{
			"tags": []string{"security", "javascript"},
		},
	})
}

// createLocations builds a physical location. column is 0-based as in the
// report; SARIF regions are 1-based.
func createLocations(file string, line, column int, snippet string) []*sarif.Location {
	loc := &sarif.PhysicalLocation{
		ArtifactLocation: &sarif.ArtifactLocation{URI: pString(file)},
	}
	if line > 0 {
		loc.Region = &sarif.Region{StartLine: line, StartColumn: column + 1}
		if snippet != "" {
			loc.Region.Snippet = &sarif.Message{Text: pString(snippet)}
		}
	}
	return []*sarif.Location{{PhysicalLocation: loc}}
}

// fingerprint hashes the stable identity of a result so SARIF consumers can
// track it across runs even when line numbers move.
func fingerprint(parts ...string) string {
	h := sha1.New()
	h.Write([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h.Sum(nil))
}

// mapRiskToSARIFLevel converts an endpoint risk to the SARIF standard.
func mapRiskToSARIFLevel(risk schemas.RiskLevel) sarif.Level {
	switch risk {
	case schemas.RiskHigh:
		return sarif.LevelError
	case schemas.RiskMedium:
		return sarif.LevelWarning
	default:
		return sarif.LevelNote
	}
}

// pString returns a pointer to the given string value. Helper for optional SARIF fields.
func pString(s string) *string {
	return &s
}
