// internal/reporting/openapi_reporter.go
package reporting

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
)

const openAPIVersion = "3.0.3"

var (
	templatePlaceholder = regexp.MustCompile(`\$\{([^}]*)\}`)
	identPlaceholder    = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	nonParamChars       = regexp.MustCompile(`[^A-Za-z0-9_]+`)
)

// headers that OpenAPI describes elsewhere and forbids as header parameters.
var reservedHeaders = map[string]bool{"accept": true, "content-type": true, "authorization": true}

// OpenAPIReporter renders inferred endpoints as an OpenAPI 3.0 document with
// one operation per method and path.
type OpenAPIReporter struct {
	writer  io.WriteCloser
	logger  *zap.Logger
	version string
	doc     *openapi3.T
}

// NewOpenAPIReporter creates a reporter that writes an OpenAPI document.
func NewOpenAPIReporter(writer io.WriteCloser, logger *zap.Logger, toolVersion string) *OpenAPIReporter {
	return &OpenAPIReporter{writer: writer, logger: logger, version: toolVersion}
}

// Write builds the document from the report's endpoints.
func (r *OpenAPIReporter) Write(report *schemas.AnalysisReport) error {
	doc, skipped := BuildOpenAPI(report, r.version)
	if skipped > 0 {
		r.logger.Debug("Endpoints without a path were left out of the OpenAPI document", zap.Int("skipped", skipped))
	}
	if err := doc.Validate(context.Background()); err != nil {
		r.logger.Warn("Generated OpenAPI document does not validate", zap.Error(err))
	}
	r.doc = doc
	return nil
}

// Close writes the document and closes the output.
func (r *OpenAPIReporter) Close() error {
	var encodeErr error
	if r.doc != nil {
		encoder := json.NewEncoder(r.writer)
		encoder.SetIndent("", "  ")
		encodeErr = encoder.Encode(r.doc)
	}
	closeErr := r.writer.Close()
	if encodeErr != nil {
		return fmt.Errorf("failed to encode OpenAPI document: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}

// BuildOpenAPI converts endpoints into an OpenAPI document. Endpoints with an
// unknown URL or a WebSocket method have no HTTP operation and are skipped;
// the count of skipped endpoints is returned.
func BuildOpenAPI(report *schemas.AnalysisReport, toolVersion string) (*openapi3.T, int) {
	doc := &openapi3.T{
		OpenAPI: openAPIVersion,
		Info: &openapi3.Info{
			Title:       "Endpoints recovered from client-side JavaScript",
			Description: fmt.Sprintf("Generated by %s from %d analyzed files.", ToolName, report.Summary.AnalyzedFiles),
			Version:     orDefault(toolVersion, "0.0.0"),
		},
		Paths: openapi3.NewPaths(),
	}

	servers := map[string]bool{}
	needsBearer, needsBasic := false, false
	skipped := 0

	for _, ep := range report.APIEndpoints {
		method := strings.ToUpper(ep.Method)
		if ep.URL == schemas.URLUnknown || ep.URL == "" || method == schemas.MethodWebSocket || method == schemas.MethodUnknown {
			skipped++
			continue
		}
		route := parseRoute(ep.URL)
		if route.server != "" {
			servers[route.server] = true
		}

		var op *openapi3.Operation
		if item := doc.Paths.Value(route.path); item != nil {
			op = item.GetOperation(method)
		}
		if op != nil {
			appendSource(op, ep)
			continue
		}

		op = openapi3.NewOperation()
		op.OperationID = operationID(method, route.path)
		op.Summary = fmt.Sprintf("%s %s", method, ep.URL)
		op.Description = fmt.Sprintf("Risk: %s", ep.Risk)
		if len(ep.TaintedBy) > 0 {
			op.Description += fmt.Sprintf(". Tainted by: %s", strings.Join(ep.TaintedBy, ", "))
		}
		op.Responses = openapi3.NewResponses()
		for _, name := range route.pathParams {
			op.AddParameter(openapi3.NewPathParameter(name).WithSchema(openapi3.NewStringSchema()))
		}
		for _, name := range route.queryParams {
			op.AddParameter(openapi3.NewQueryParameter(name).WithSchema(openapi3.NewStringSchema()))
		}
		for _, name := range sortedKeys(ep.Headers) {
			if reservedHeaders[strings.ToLower(name)] {
				continue
			}
			op.AddParameter(openapi3.NewHeaderParameter(name).WithSchema(openapi3.NewStringSchema()))
		}
		if ep.Body != nil && method != http.MethodGet && method != http.MethodHead {
			content := openapi3.NewContentWithJSONSchema(openapi3.NewSchema())
			content.Get("application/json").Example = ep.Body
			op.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().WithContent(content)}
		}
		if ep.Auth != nil {
			scheme := "bearerAuth"
			if ep.Auth.Type == "basic" {
				scheme = "basicAuth"
				needsBasic = true
			} else {
				needsBearer = true
			}
			reqs := openapi3.NewSecurityRequirements().With(openapi3.NewSecurityRequirement().Authenticate(scheme))
			op.Security = reqs
		}
		op.Extensions = map[string]any{
			"x-jsrecon-risk":    string(ep.Risk),
			"x-jsrecon-sources": []string{sourceRef(ep)},
		}
		doc.AddOperation(route.path, method, op)
	}

	for _, s := range sortedKeys(servers) {
		doc.Servers = append(doc.Servers, &openapi3.Server{URL: s})
	}
	if needsBearer || needsBasic {
		doc.Components = &openapi3.Components{SecuritySchemes: openapi3.SecuritySchemes{}}
		if needsBearer {
			doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{Value: openapi3.NewJWTSecurityScheme()}
		}
		if needsBasic {
			doc.Components.SecuritySchemes["basicAuth"] = &openapi3.SecuritySchemeRef{
				Value: openapi3.NewSecurityScheme().WithType("http").WithScheme("basic"),
			}
		}
	}
	return doc, skipped
}

func appendSource(op *openapi3.Operation, ep schemas.Endpoint) {
	sources, _ := op.Extensions["x-jsrecon-sources"].([]string)
	op.Extensions["x-jsrecon-sources"] = append(sources, sourceRef(ep))
	// An operation is as risky as its riskiest call site.
	if current, _ := op.Extensions["x-jsrecon-risk"].(string); schemas.RiskLevel(current).Rank() < ep.Risk.Rank() {
		op.Extensions["x-jsrecon-risk"] = string(ep.Risk)
	}
}

func sourceRef(ep schemas.Endpoint) string {
	return fmt.Sprintf("%s:%d:%d", ep.File, ep.Line, ep.Column)
}

// route is a reconstructed URL split into OpenAPI parts.
type route struct {
	server      string
	path        string
	pathParams  []string
	queryParams []string
}

// parseRoute converts a reconstructed URL into an OpenAPI path. Placeholders
// ($name, ${expr} and "...") become {param} segments.
func parseRoute(raw string) route {
	var rt route

	rest, query, _ := strings.Cut(raw, "?")
	if scheme, after, ok := strings.Cut(rest, "://"); ok {
		host, path, _ := strings.Cut(after, "/")
		if !strings.ContainsAny(host, "${}") && !strings.Contains(host, schemas.UnknownExpression) {
			rt.server = scheme + "://" + host
		}
		rest = "/" + path
	}
	if !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}

	used := map[string]int{}
	param := func(expr string) string {
		name := paramName(expr)
		used[name]++
		if n := used[name]; n > 1 {
			name = fmt.Sprintf("%s%d", name, n)
		}
		rt.pathParams = append(rt.pathParams, name)
		return "{" + name + "}"
	}

	segments := strings.Split(rest, "/")
	for i, seg := range segments {
		seg = templatePlaceholder.ReplaceAllStringFunc(seg, func(m string) string {
			return param(m[2 : len(m)-1])
		})
		seg = identPlaceholder.ReplaceAllStringFunc(seg, param)
		if strings.Contains(seg, schemas.UnknownExpression) {
			seg = strings.ReplaceAll(seg, schemas.UnknownExpression, param(""))
		}
		segments[i] = seg
	}
	rt.path = strings.Join(segments, "/")

	if query != "" {
		for _, pair := range strings.Split(query, "&") {
			key, _, _ := strings.Cut(pair, "=")
			if key == "" || strings.ContainsAny(key, "${}") || strings.Contains(key, schemas.UnknownExpression) {
				continue
			}
			rt.queryParams = append(rt.queryParams, key)
		}
	}
	return rt
}

// paramName derives a parameter name from a placeholder expression, keeping
// the last identifier of a member path.
func paramName(expr string) string {
	expr = strings.TrimPrefix(strings.TrimSpace(expr), "$")
	if i := strings.LastIndexAny(expr, ".["); i >= 0 && i < len(expr)-1 {
		expr = expr[i+1:]
	}
	name := strings.Trim(nonParamChars.ReplaceAllString(expr, "_"), "_")
	if name == "" {
		return "param"
	}
	return name
}

func operationID(method, path string) string {
	id := strings.Trim(nonParamChars.ReplaceAllString(path, "_"), "_")
	if id == "" {
		id = "root"
	}
	return strings.ToLower(method) + "_" + id
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
