// Filename: javascript/definitions.go
// This file contains the catalog of known taint sources and the call shapes
// recognized as outbound network requests.
package javascript

import "strings"

// TaintSource is the canonical name of an untrusted-input expression.
type TaintSource string

// SourceKind distinguishes how a source is reached.
type SourceKind int

const (
	// SourceProperty is read through a property chain (location.search).
	SourceProperty SourceKind = iota
	// SourceFunction returns untrusted data when called (localStorage.getItem).
	SourceFunction
	// SourceConstructor yields untrusted data when constructed (new URLSearchParams).
	SourceConstructor
)

// Known Taint Sources (DOM/Browser APIs)
const (
	SourceLocationHref      TaintSource = "location.href"
	SourceLocationSearch    TaintSource = "location.search"
	SourceLocationHash      TaintSource = "location.hash"
	SourceDocumentURL       TaintSource = "document.URL"
	SourceDocumentReferrer  TaintSource = "document.referrer"
	SourceWindowName        TaintSource = "window.name"
	SourceDocumentCookie    TaintSource = "document.cookie"
	SourceLocalStorage      TaintSource = "localStorage.getItem"
	SourceSessionStorage    TaintSource = "sessionStorage.getItem"
	SourceURLSearchParamGet TaintSource = "URLSearchParams.get"
	SourceURLSearchParams   TaintSource = "URLSearchParams"
)

// Known Taint Sources (server-side request objects)
const (
	SourceReqQuery   TaintSource = "req.query"
	SourceReqParams  TaintSource = "req.params"
	SourceReqBody    TaintSource = "req.body"
	SourceReqHeaders TaintSource = "req.headers"
)

// Known Taint Sources (user interaction)
const (
	SourcePrompt  TaintSource = "prompt"
	SourceConfirm TaintSource = "confirm"
	SourceAlert   TaintSource = "alert"
)

// SourceDefinition describes one catalog entry.
type SourceDefinition struct {
	Name TaintSource
	Kind SourceKind
}

// sourceCatalog is the process-wide source registry. It is never mutated.
var sourceCatalog = map[string]SourceDefinition{
	string(SourceLocationHref):      {SourceLocationHref, SourceProperty},
	string(SourceLocationSearch):    {SourceLocationSearch, SourceProperty},
	string(SourceLocationHash):      {SourceLocationHash, SourceProperty},
	string(SourceDocumentURL):       {SourceDocumentURL, SourceProperty},
	string(SourceDocumentReferrer):  {SourceDocumentReferrer, SourceProperty},
	string(SourceWindowName):        {SourceWindowName, SourceProperty},
	string(SourceDocumentCookie):    {SourceDocumentCookie, SourceProperty},
	string(SourceReqQuery):          {SourceReqQuery, SourceProperty},
	string(SourceReqParams):         {SourceReqParams, SourceProperty},
	string(SourceReqBody):           {SourceReqBody, SourceProperty},
	string(SourceReqHeaders):        {SourceReqHeaders, SourceProperty},
	string(SourceLocalStorage):      {SourceLocalStorage, SourceFunction},
	string(SourceSessionStorage):    {SourceSessionStorage, SourceFunction},
	string(SourceURLSearchParamGet): {SourceURLSearchParamGet, SourceFunction},
	string(SourcePrompt):            {SourcePrompt, SourceFunction},
	string(SourceConfirm):           {SourceConfirm, SourceFunction},
	string(SourceAlert):             {SourceAlert, SourceFunction},
	string(SourceURLSearchParams):   {SourceURLSearchParams, SourceConstructor},
}

// Catalog returns the source definitions sorted by name.
func Catalog() []SourceDefinition {
	out := make([]SourceDefinition, 0, len(sourceCatalog))
	for _, def := range sourceCatalog {
		out = append(out, def)
	}
	sortDefinitions(out)
	return out
}

// LookupSource is the single place that decides whether a dotted path names a
// taint source. Matching is case-sensitive. A leading "window." is ignored
// (except for window.name itself), and property sources also match deeper
// paths, so req.body.user resolves to req.body.
//
// Callers pass the kind of use: a property read, a call, or a construction.
func LookupSource(path string, kind SourceKind) (TaintSource, bool) {
	if path == "" {
		return "", false
	}
	for _, candidate := range sourceCandidates(path) {
		if def, ok := sourceCatalog[candidate]; ok && def.Kind == kind {
			return def.Name, true
		}
		if kind != SourceProperty {
			continue
		}
		// Prefix match for property chains.
		for p := candidate; ; {
			i := strings.LastIndexByte(p, '.')
			if i <= 0 {
				break
			}
			p = p[:i]
			if def, ok := sourceCatalog[p]; ok && def.Kind == SourceProperty {
				return def.Name, true
			}
		}
	}
	return "", false
}

func sourceCandidates(path string) []string {
	if path == string(SourceWindowName) || strings.HasPrefix(path, string(SourceWindowName)+".") {
		return []string{path}
	}
	if rest, ok := strings.CutPrefix(path, "window."); ok {
		return []string{rest, path}
	}
	return []string{path}
}

// passthroughFunctions return data derived from their first argument, so a
// tainted argument taints the result.
var passthroughFunctions = map[string]bool{
	"decodeURIComponent": true,
	"decodeURI":          true,
	"encodeURIComponent": true,
	"encodeURI":          true,
	"escape":             true,
	"unescape":           true,
	"atob":               true,
	"btoa":               true,
	"String":             true,
	"JSON.parse":         true,
	"JSON.stringify":     true,
	"Object.assign":      true,
	"Object.values":      true,
	"Array.from":         true,
}

// IsPassthrough reports whether a call to path propagates argument taint.
func IsPassthrough(path string) bool {
	return passthroughFunctions[strings.TrimPrefix(path, "window.")]
}

// axiosMethods are the recognized axios.<method> shorthands.
var axiosMethods = map[string]bool{
	"get": true, "head": true, "options": true, "delete": true,
	"post": true, "put": true, "patch": true,
}

// axiosBodyMethods take the request body as the second argument.
var axiosBodyMethods = map[string]bool{"post": true, "put": true, "patch": true}

// fetchCallees are the callee paths recognized as the fetch API.
var fetchCallees = map[string]bool{
	"fetch":            true,
	"window.fetch":     true,
	"self.fetch":       true,
	"globalThis.fetch": true,
}

// HTTPMethods is the closed set of methods an inferred endpoint may carry.
var HTTPMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "HEAD": true, "OPTIONS": true,
}
