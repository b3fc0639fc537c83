// Filename: javascript/infer.go
// Metadata inference: method, URL, headers, body, auth and risk for one call
// site.
package javascript

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
)

// Auth placeholders written instead of any credential found in the source.
const (
	TokenPlaceholder       = "${TOKEN}"
	CredentialsPlaceholder = "${CREDENTIALS}"
)

// requestParts are the argument nodes that feed an endpoint.
type requestParts struct {
	method  string
	url     Node
	headers Node
	body    Node
	// extra holds option arguments that could not be read structurally; they
	// still count toward risk.
	extra []Node
}

// inferEndpoint derives the endpoint for a call site from its arguments and
// the current taint state.
func (fc *FileContext) inferEndpoint(site CallSite) schemas.Endpoint {
	ep := schemas.Endpoint{
		File:    fc.File,
		Line:    site.Span.StartLine,
		Column:  site.Span.StartColumn,
		Kind:    site.Kind,
		Headers: map[string]string{},
		Auth:    inferAuth(site.Context.Text),
	}

	if site.Kind == schemas.CallKindXHR {
		// The request is configured by a later .open() on the instance, which
		// is not correlated here.
		ep.Method = schemas.MethodUnknown
		ep.URL = schemas.URLUnknown
		ep.Risk = schemas.RiskLow
		return ep
	}

	parts := splitArguments(site)
	ep.Method = parts.method
	ep.URL = Reconstruct(parts.url)
	if parts.headers != nil {
		ep.Headers = headerMap(parts.headers)
	}
	if parts.body != nil {
		ep.Body = ReconstructValue(unwrapSerializer(parts.body))
	}

	tainted := make(map[TaintSource]bool)
	for _, n := range append([]Node{parts.url, parts.headers, parts.body}, parts.extra...) {
		if n != nil {
			fc.merge(n, tainted)
		}
	}

	switch {
	case len(tainted) > 0:
		ep.Risk = schemas.RiskHigh
		ep.TaintedBy = sortedSources(tainted)
	case isDynamic(parts):
		ep.Risk = schemas.RiskMedium
	default:
		ep.Risk = schemas.RiskLow
	}
	return ep
}

func splitArguments(site CallSite) requestParts {
	arg := func(i int) Node {
		if i < len(site.Args) {
			return site.Args[i]
		}
		return nil
	}

	parts := requestParts{method: "GET", url: arg(0)}
	switch site.Kind {
	case schemas.CallKindFetch:
		if opts, ok := arg(1).(*ObjectLit); ok {
			if m, ok := opts.Get("method"); ok {
				parts.method = literalMethod(m)
			}
			parts.headers, _ = opts.Get("headers")
			parts.body, _ = opts.Get("body")
		} else if arg(1) != nil {
			parts.extra = append(parts.extra, arg(1))
		}

	case schemas.CallKindAxios:
		parts.method = strings.ToUpper(site.AxiosMethod)
		configIdx := 1
		if axiosBodyMethods[site.AxiosMethod] {
			parts.body = arg(1)
			configIdx = 2
		}
		if cfg, ok := arg(configIdx).(*ObjectLit); ok {
			parts.headers, _ = cfg.Get("headers")
		} else if arg(configIdx) != nil {
			parts.extra = append(parts.extra, arg(configIdx))
		}

	case schemas.CallKindWebSocket:
		parts.method = schemas.MethodWebSocket
	}
	return parts
}

// literalMethod normalizes a method option. Non-literal or unknown methods
// fall back to GET.
func literalMethod(n Node) string {
	lit, ok := n.(*Literal)
	if !ok || lit.LitKind != LitString {
		return "GET"
	}
	m := strings.ToUpper(strings.TrimSpace(lit.Value))
	if !HTTPMethods[m] {
		return "GET"
	}
	return m
}

// headerMap flattens a headers expression. `new Headers({...})` is read
// through to its object argument.
func headerMap(n Node) map[string]string {
	if ctor, ok := n.(*NewExpr); ok && calleePath(ctor.Callee) == "Headers" && len(ctor.Args) > 0 {
		n = ctor.Args[0]
	}
	out := map[string]string{}
	obj, ok := n.(*ObjectLit)
	if !ok {
		return out
	}
	for k, v := range ReconstructValue(obj).(map[string]any) {
		switch v := v.(type) {
		case string:
			out[k] = v
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}

// unwrapSerializer reads through JSON.stringify(x) so the body shows x.
func unwrapSerializer(n Node) Node {
	if call, ok := n.(*CallExpr); ok && calleePath(call.Callee) == "JSON.stringify" && len(call.Args) > 0 {
		return call.Args[0]
	}
	return n
}

func isDynamic(p requestParts) bool {
	if !IsStatic(p.url) {
		return true
	}
	if p.body != nil && !IsStatic(unwrapSerializer(p.body)) {
		return true
	}
	if p.headers != nil && !IsStatic(p.headers) {
		return true
	}
	return len(p.extra) > 0
}

// inferAuth is a coarse textual hint over the captured context window.
func inferAuth(context string) *schemas.AuthInfo {
	lower := strings.ToLower(context)
	switch {
	case strings.Contains(lower, "bearer"), strings.Contains(lower, "token"):
		return &schemas.AuthInfo{Type: "bearer", Token: TokenPlaceholder}
	case strings.Contains(lower, "basic"):
		return &schemas.AuthInfo{Type: "basic", Credentials: CredentialsPlaceholder}
	default:
		return nil
	}
}
