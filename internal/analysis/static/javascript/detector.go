// Filename: javascript/detector.go
// Network-call detector: syntax-pattern matchers for the call shapes used to
// issue outbound requests.
package javascript

import (
	"strings"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
)

// detectCall matches fetch(...) and axios.<method>(...).
func detectCall(fc *FileContext, n Node) {
	if !fc.Options.DetectNetworkCalls {
		return
	}
	call, ok := n.(*CallExpr)
	if !ok {
		return
	}
	path := calleePath(call.Callee)

	if fetchCallees[path] {
		fc.recordCall(CallSite{
			Kind:   schemas.CallKindFetch,
			Callee: path,
			Node:   call,
			Args:   call.Args,
		})
		return
	}

	if method, ok := axiosShorthand(call.Callee); ok {
		fc.recordCall(CallSite{
			Kind:        schemas.CallKindAxios,
			Callee:      path,
			AxiosMethod: method,
			Node:        call,
			Args:        call.Args,
		})
	}
}

// axiosShorthand returns the method for callees of the form axios.<method>,
// including prefixed receivers such as window.axios or this.axios.
func axiosShorthand(callee Node) (string, bool) {
	m, ok := callee.(*MemberExpr)
	if !ok || m.Computed || !axiosMethods[m.Property] {
		return "", false
	}
	receiver, ok := memberPath(m.Object)
	if !ok || lastSegment(receiver) != "axios" {
		return "", false
	}
	return m.Property, true
}

// detectNew matches new XMLHttpRequest() and new WebSocket(url).
func detectNew(fc *FileContext, n Node) {
	if !fc.Options.DetectNetworkCalls {
		return
	}
	ctor, ok := n.(*NewExpr)
	if !ok {
		return
	}
	path := calleePath(ctor.Callee)
	name := path
	if rest, ok := cutWindow(path); ok {
		name = rest
	}

	switch name {
	case "XMLHttpRequest":
		fc.recordCall(CallSite{Kind: schemas.CallKindXHR, Callee: path, Node: ctor, Args: ctor.Args})
	case "WebSocket":
		fc.recordCall(CallSite{Kind: schemas.CallKindWebSocket, Callee: path, Node: ctor, Args: ctor.Args})
	}
}

// cutWindow strips a global-object prefix from a constructor path.
func cutWindow(path string) (string, bool) {
	for _, prefix := range []string{"window.", "self.", "globalThis."} {
		if rest, ok := strings.CutPrefix(path, prefix); ok {
			return rest, true
		}
	}
	return "", false
}

// recordCall captures the context window and, when metadata extraction is
// on, infers the endpoint immediately so it sees the taint state as of this
// point in the file.
func (fc *FileContext) recordCall(site CallSite) {
	site.Span = site.Node.Span()
	site.Context = fc.captureContext(site.Span)
	fc.callSites = append(fc.callSites, site)

	if fc.Options.ExtractMetadata {
		fc.endpoints = append(fc.endpoints, fc.inferEndpoint(site))
	}
}

// NetworkCall converts a call site into its report form.
func (s CallSite) NetworkCall(file string) schemas.NetworkCall {
	args := make([]string, 0, len(s.Args))
	for _, a := range s.Args {
		args = append(args, clippedText(a, maxExpressionLen))
	}
	return schemas.NetworkCall{
		File:             file,
		Line:             s.Span.StartLine,
		Column:           s.Span.StartColumn,
		EndLine:          s.Span.EndLine,
		EndColumn:        s.Span.EndColumn,
		Kind:             s.Kind,
		Callee:           s.Callee,
		Arguments:        args,
		Context:          s.Context.Text,
		ContextStartLine: s.Context.StartLine,
		ContextEndLine:   s.Context.EndLine,
	}
}
