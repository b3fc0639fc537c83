// internal/reporting/reporter.go
package reporting

import (
	"errors"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Output formats accepted by New.
const (
	FormatJSON    = "json"
	FormatSpecs   = "specs"
	FormatSARIF   = "sarif"
	FormatOpenAPI = "openapi"
	FormatCurl    = "curl"
)

// Formats lists every supported output format.
var Formats = []string{FormatJSON, FormatSpecs, FormatSARIF, FormatOpenAPI, FormatCurl}

// Reporter renders an analysis report to an output.
type Reporter interface {
	// Write renders the report. A reporter accepts a single report.
	Write(report *schemas.AnalysisReport) error
	// Close flushes buffered output and closes any underlying file.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format writing to outputPath ("" or "stdout"
// for standard output).
func New(format, outputPath string, logger *zap.Logger, toolVersion string) (Reporter, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if !isSupported(format) {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}
	return NewWithWriter(format, writer, logger, toolVersion)
}

// NewWithWriter creates a reporter that takes ownership of writer.
func NewWithWriter(format string, writer io.WriteCloser, logger *zap.Logger, toolVersion string) (Reporter, error) {
	logger = logger.Named("reporter").With(zap.String("format", format))
	switch format {
	case FormatJSON:
		return &jsonReporter{writer: writer, logger: logger}, nil
	case FormatSpecs:
		return &jsonReporter{writer: writer, logger: logger, specsOnly: true}, nil
	case FormatSARIF:
		return NewSARIFReporter(writer, logger, toolVersion), nil
	case FormatOpenAPI:
		return NewOpenAPIReporter(writer, logger, toolVersion), nil
	case FormatCurl:
		return NewCurlReporter(writer, logger, toolVersion), nil
	default:
		_ = writer.Close()
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

func isSupported(format string) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return false
}

// jsonReporter writes the full report, or only its request specs.
type jsonReporter struct {
	writer    io.WriteCloser
	logger    *zap.Logger
	specsOnly bool
}

func (r *jsonReporter) Write(report *schemas.AnalysisReport) error {
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")

	var payload any = report
	if r.specsOnly {
		specs := report.RequestSpecs
		if specs == nil {
			specs = []schemas.RequestSpec{}
		}
		payload = specs
	}
	if err := encoder.Encode(payload); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	r.logger.Debug("Report written", zap.Int("endpoints", len(report.APIEndpoints)))
	return nil
}

func (r *jsonReporter) Close() error {
	if err := r.writer.Close(); err != nil {
		return fmt.Errorf("failed to close output writer: %w", err)
	}
	return nil
}
