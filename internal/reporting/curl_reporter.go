// internal/reporting/curl_reporter.go
package reporting

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/engine"
)

// CurlReporter renders request specs as a bash script with one curl
// invocation per spec. Credentials are read from TOKEN and CREDENTIALS.
type CurlReporter struct {
	writer  io.WriteCloser
	logger  *zap.Logger
	version string
}

// NewCurlReporter creates a reporter that writes a curl script.
func NewCurlReporter(writer io.WriteCloser, logger *zap.Logger, toolVersion string) *CurlReporter {
	return &CurlReporter{writer: writer, logger: logger, version: toolVersion}
}

// Write renders the script. Reports produced without request specs fall back
// to deriving them from the endpoints.
func (r *CurlReporter) Write(report *schemas.AnalysisReport) error {
	specs := report.RequestSpecs
	if len(specs) == 0 {
		for _, ep := range report.APIEndpoints {
			specs = append(specs, engine.NewRequestSpec(ep))
		}
	}

	w := bufio.NewWriter(r.writer)
	fmt.Fprintln(w, "#!/usr/bin/env bash")
	fmt.Fprintf(w, "# Generated by %s %s at %s\n", ToolName, r.version, report.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintln(w, "# Placeholders such as $name mark values that could not be resolved statically.")
	fmt.Fprintln(w, "set -uo pipefail")
	fmt.Fprintln(w, `TOKEN="${TOKEN:-}"`)
	fmt.Fprintln(w, `CREDENTIALS="${CREDENTIALS:-}"`)

	emitted, skipped := 0, 0
	for _, spec := range specs {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "# %s:%d:%d [%s] %s\n", commentSafe(spec.Source.File), spec.Source.Line, spec.Source.Column, spec.Risk, spec.ID)
		switch {
		case spec.URL == schemas.URLUnknown || spec.URL == "":
			fmt.Fprintln(w, "# skipped: the request URL is configured elsewhere and could not be inferred")
			skipped++
		case spec.Method == schemas.MethodWebSocket:
			fmt.Fprintf(w, "# websocat %s\n", commentSafe(shellQuote(spec.URL)))
			emitted++
		default:
			writeCurl(w, spec)
			emitted++
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write curl script: %w", err)
	}
	r.logger.Debug("Curl script written", zap.Int("requests", emitted), zap.Int("skipped", skipped))
	return nil
}

func writeCurl(w io.Writer, spec schemas.RequestSpec) {
	method := spec.Method
	if method == "" || method == schemas.MethodUnknown {
		method = "GET"
	}
	if strings.IndexFunc(method, func(r rune) bool { return r < 'A' || r > 'Z' }) >= 0 {
		method = shellQuote(method)
	}
	lines := []string{fmt.Sprintf("curl -sS -X %s %s", method, shellQuote(spec.URL))}

	for _, name := range sortedKeys(spec.Headers) {
		if spec.Auth != nil && strings.EqualFold(name, "Authorization") {
			continue
		}
		lines = append(lines, "-H "+shellQuote(name+": "+spec.Headers[name]))
	}
	if spec.Auth != nil {
		switch spec.Auth.Type {
		case "basic":
			lines = append(lines, `-u "${CREDENTIALS}"`)
		default:
			lines = append(lines, `-H "Authorization: Bearer ${TOKEN}"`)
		}
	}
	if spec.Body != nil {
		lines = append(lines, "--data-raw "+shellQuote(bodyString(spec.Body)))
	}
	fmt.Fprintln(w, strings.Join(lines, " \\\n  "))
}

// bodyString renders a body as JSON unless it is already a string.
func bodyString(body any) string {
	if s, ok := body.(string); ok {
		return s
	}
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Sprint(body)
	}
	return string(b)
}

// shellQuote wraps s in single quotes so nothing inside is expanded.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// commentSafe renders s for a "#" comment line. Values holding control
// characters are Go-quoted so a newline cannot end the comment.
func commentSafe(s string) string {
	if strings.IndexFunc(s, unicode.IsControl) < 0 {
		return s
	}
	return strconv.Quote(s)
}

// Close closes the output.
func (r *CurlReporter) Close() error {
	if err := r.writer.Close(); err != nil {
		return fmt.Errorf("failed to close output writer: %w", err)
	}
	return nil
}
