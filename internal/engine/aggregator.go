// internal/engine/aggregator.go
package engine

import (
	"fmt"
	"maps"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/analysis/static/javascript"
)

// specNamespace scopes the name-based UUIDs given to request specs, so the
// same endpoint gets the same id in every run.
var specNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/xkilldash9x/scalpel-jsrecon/request-spec"))

type endpointKey struct {
	file   string
	line   int
	column int
	kind   schemas.CallKind
}

// Aggregator folds per-file results into one report. It is owned by a single
// goroutine; the engine feeds it in input order after the pool drains.
type Aggregator struct {
	report        *schemas.AnalysisReport
	generateSpecs bool
	seen          map[endpointKey]bool
	sources       map[string]bool
	analyzed      int
}

// NewAggregator starts an empty report stamped with ts.
func NewAggregator(ts time.Time, generateSpecs bool) *Aggregator {
	return &Aggregator{
		report:        schemas.NewAnalysisReport(ts),
		generateSpecs: generateSpecs,
		seen:          make(map[endpointKey]bool),
		sources:       make(map[string]bool),
	}
}

// AddResult folds one successfully analyzed file.
func (a *Aggregator) AddResult(r *javascript.FileResult) {
	a.analyzed++
	a.report.Files = append(a.report.Files, r.Summary())

	for _, call := range r.NetworkCalls {
		a.report.NetworkCalls = append(a.report.NetworkCalls, call)
		a.report.Summary.ByCallType[call.Kind]++
	}

	for _, ep := range r.Endpoints {
		key := endpointKey{file: ep.File, line: ep.Line, column: ep.Column, kind: ep.Kind}
		if a.seen[key] {
			continue
		}
		a.seen[key] = true
		a.report.APIEndpoints = append(a.report.APIEndpoints, ep)
		a.report.Summary.ByRisk[ep.Risk]++
		if a.generateSpecs {
			a.report.RequestSpecs = append(a.report.RequestSpecs, NewRequestSpec(ep))
		}
	}

	a.report.DangerousPatterns = append(a.report.DangerousPatterns, r.DangerousPatterns...)
	a.report.HardcodedTokens = append(a.report.HardcodedTokens, r.HardcodedTokens...)
	for _, s := range r.TaintSources {
		a.sources[s] = true
	}
}

// AddError records a file that contributed no findings.
func (a *Aggregator) AddError(e schemas.AnalysisError) {
	a.report.Errors = append(a.report.Errors, e)
}

// Report finalizes the counts and returns the report. The aggregator must
// not be used afterwards.
func (a *Aggregator) Report() *schemas.AnalysisReport {
	r := a.report

	r.TaintSources = make([]string, 0, len(a.sources))
	for s := range a.sources {
		r.TaintSources = append(r.TaintSources, s)
	}
	sort.Strings(r.TaintSources)

	r.Summary.AnalyzedFiles = a.analyzed
	// Any failed input counts, whatever its kind.
	r.Summary.ParseErrors = len(r.Errors)
	r.Summary.TotalFiles = a.analyzed + len(r.Errors)
	r.Summary.NetworkCalls = len(r.NetworkCalls)
	r.Summary.APIEndpoints = len(r.APIEndpoints)
	r.Summary.DangerousPatterns = len(r.DangerousPatterns)
	r.Summary.TaintSources = len(r.TaintSources)
	return r
}

// NewRequestSpec derives the exportable form of an endpoint. The id is a
// version 5 UUID over the endpoint's provenance and request line.
func NewRequestSpec(ep schemas.Endpoint) schemas.RequestSpec {
	name := fmt.Sprintf("%s:%d:%d:%s:%s:%s", ep.File, ep.Line, ep.Column, ep.Kind, ep.Method, ep.URL)
	headers := maps.Clone(ep.Headers)
	if headers == nil {
		headers = map[string]string{}
	}
	return schemas.RequestSpec{
		ID:      uuid.NewSHA1(specNamespace, []byte(name)).String(),
		Method:  ep.Method,
		URL:     ep.URL,
		Headers: headers,
		Body:    ep.Body,
		Auth:    ep.Auth,
		Risk:    ep.Risk,
		Source: schemas.Provenance{
			File:   ep.File,
			Line:   ep.Line,
			Column: ep.Column,
			Kind:   ep.Kind,
		},
	}
}
