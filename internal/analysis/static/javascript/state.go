// Filename: javascript/state.go
// Defines the per-file analysis context threaded through every handler.
// Nothing here is shared between files.
package javascript

import (
	"sort"
	"strings"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
)

// DefaultContextLines is the default half-height of the captured context window.
const DefaultContextLines = 30

// DefaultContextLineLimit caps a single captured line, which keeps minified
// bundles from copying megabytes into every finding.
const DefaultContextLineLimit = 1000

// Options toggles the analysis stages for a run.
type Options struct {
	// IncludePrettify normalizes whitespace in captured context windows. It is
	// cosmetic and never changes positions, taint or endpoints.
	IncludePrettify      bool
	DetectNetworkCalls   bool
	ExtractMetadata      bool
	GenerateRequestSpecs bool
	ContextLines         int
	ContextLineLimit     int
	// ValidateEndpoints is reserved for an external dynamic validator; the
	// analyzer never issues requests.
	ValidateEndpoints bool
	// DetectTokens reports JWTs hardcoded in string literals.
	DetectTokens bool
	// BruteForceTokens checks HMAC tokens against common weak secrets.
	BruteForceTokens bool
}

// DefaultOptions enables every stage with the default window size.
func DefaultOptions() Options {
	return Options{
		DetectNetworkCalls:   true,
		ExtractMetadata:      true,
		GenerateRequestSpecs: true,
		DetectTokens:         true,
		ContextLines:         DefaultContextLines,
		ContextLineLimit:     DefaultContextLineLimit,
	}
}

// normalized clamps negative window settings to zero.
func (o Options) normalized() Options {
	if o.ContextLines < 0 {
		o.ContextLines = 0
	}
	if o.ContextLineLimit < 0 {
		o.ContextLineLimit = 0
	}
	return o
}

// binding is the taint record for one name. Names may be dotted paths when a
// member target (obj.x = ...) was assigned a tainted value.
type binding struct {
	name    string
	line    int
	sources map[TaintSource]bool
}

// CallSite is one syntactic network call. It is immutable once created.
type CallSite struct {
	Kind schemas.CallKind
	// Callee is the rendered callee path.
	Callee string
	// AxiosMethod is the lower-case shorthand method for axios calls.
	AxiosMethod string
	Node        Node
	Args        []Node
	Span        Span
	Context     ContextWindow
}

// FileContext is the mutable state for one traversal pass over one file.
type FileContext struct {
	File    string
	Source  []byte
	Options Options

	lines      []string
	tainted    map[string]*binding
	taintOrder []string
	observed   map[TaintSource]bool
	// generation changes whenever the tainted set grows; memo entries from an
	// older generation are stale.
	generation int
	memo       map[Node]taintMemo

	callSites []CallSite
	endpoints []schemas.Endpoint
	patterns  []schemas.DangerousPattern
	tokens    []schemas.HardcodedToken
}

// NewFileContext prepares a fresh context for one file.
func NewFileContext(file string, src []byte, opts Options) *FileContext {
	return &FileContext{
		File:     file,
		Source:   src,
		Options:  opts.normalized(),
		lines:    strings.Split(string(src), "\n"),
		tainted:  make(map[string]*binding),
		observed: make(map[TaintSource]bool),
		memo:     make(map[Node]taintMemo),
	}
}

// IsTainted reports whether name is in the tainted set.
func (fc *FileContext) IsTainted(name string) bool {
	_, ok := fc.tainted[name]
	return ok
}

// taint adds name to the tainted set. The set only grows: re-tainting merges
// sources but keeps the original line.
func (fc *FileContext) taint(name string, line int, sources []TaintSource) {
	if name == "" {
		return
	}
	b, ok := fc.tainted[name]
	if !ok {
		b = &binding{name: name, line: line, sources: make(map[TaintSource]bool, len(sources))}
		fc.tainted[name] = b
		fc.taintOrder = append(fc.taintOrder, name)
		fc.generation++
	}
	for _, s := range sources {
		if !b.sources[s] {
			b.sources[s] = true
			fc.generation++
		}
	}
}

// bindingSources returns the origins recorded for a tainted name.
func (fc *FileContext) bindingSources(name string) []TaintSource {
	b, ok := fc.tainted[name]
	if !ok {
		return nil
	}
	out := make([]TaintSource, 0, len(b.sources))
	for s := range b.sources {
		out = append(out, s)
	}
	return out
}

func (fc *FileContext) observe(s TaintSource) {
	fc.observed[s] = true
}

// TaintedBindings returns the tainted names in the order they became tainted.
func (fc *FileContext) TaintedBindings() []schemas.TaintedBinding {
	out := make([]schemas.TaintedBinding, 0, len(fc.taintOrder))
	for _, name := range fc.taintOrder {
		b := fc.tainted[name]
		out = append(out, schemas.TaintedBinding{
			Name:    name,
			Line:    b.line,
			Sources: sortedSources(b.sources),
		})
	}
	return out
}

// ObservedSources returns the distinct catalog sources referenced in the file.
func (fc *FileContext) ObservedSources() []string {
	return sortedSources(fc.observed)
}

// CallSites returns the recognized network calls in source order.
func (fc *FileContext) CallSites() []CallSite { return fc.callSites }

// Endpoints returns the inferred endpoints in source order.
func (fc *FileContext) Endpoints() []schemas.Endpoint { return fc.endpoints }

// Patterns returns the dangerous pattern diagnostics in source order.
func (fc *FileContext) Patterns() []schemas.DangerousPattern { return fc.patterns }

func sortedSources(set map[TaintSource]bool) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, string(s))
	}
	sort.Strings(out)
	return out
}

func sortDefinitions(defs []SourceDefinition) {
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
}
