// File: internal/observability/metrics.go
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	FileAnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jsrecon_file_analysis_seconds",
		Help:    "Time spent parsing and analyzing a single script.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"language"})

	FilesAnalyzedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jsrecon_files_analyzed_total",
		Help: "Total number of scripts analyzed successfully.",
	}, []string{"language"})

	FileErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jsrecon_file_errors_total",
		Help: "Total number of scripts recorded as errors, by error kind.",
	}, []string{"kind"})

	EndpointsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jsrecon_endpoints_total",
		Help: "Total number of inferred endpoints, by risk level.",
	}, []string{"risk"})

	DangerousPatternsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jsrecon_dangerous_patterns_total",
		Help: "Total number of dangerous pattern diagnostics, by kind.",
	}, []string{"kind"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "jsrecon_run_seconds",
		Help:    "Wall time of a complete analysis run.",
		Buckets: prometheus.DefBuckets,
	})

	RunsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jsrecon_runs_in_flight",
		Help: "Number of analysis runs currently executing.",
	})

	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jsrecon_commands_total",
		Help: "Total number of command server requests, by command and status.",
	}, []string{"command", "status"})

	RemoteFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jsrecon_remote_fetches_total",
		Help: "Total number of remote script and page fetches, by outcome.",
	}, []string{"status"})
)
