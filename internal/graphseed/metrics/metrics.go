package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MetricsPrefix = "graphseed_"

type Metrics struct {
	artifactsGenerated   *prometheus.CounterVec
	generationFailures   *prometheus.CounterVec
	artifactsImported    *prometheus.CounterVec
	importRetries        *prometheus.CounterVec
	artifactsDeadLetters *prometheus.CounterVec
	importDuration       *prometheus.HistogramVec
}

var m = newMetrics(MetricsPrefix)

// Get returns the process wide metrics, registered once against the default prometheus registry.
func Get() *Metrics {
	return m
}

func newMetrics(prefix string) *Metrics {
	return &Metrics{
		artifactsGenerated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "artifacts_generated",
			Help: "Number of artifacts written by generation tasks, grouped by phase",
		}, []string{"phase"}),
		generationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "generation_failures",
			Help: "Number of generation tasks that failed, grouped by phase",
		}, []string{"phase"}),
		artifactsImported: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "artifacts_imported",
			Help: "Number of artifacts imported into the graph store, grouped by phase",
		}, []string{"phase"}),
		importRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "import_retries",
			Help: "Number of failed import attempts that were retried, grouped by phase",
		}, []string{"phase"}),
		artifactsDeadLetters: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "artifacts_dead_lettered",
			Help: "Number of artifacts given up on after exhausting retries, grouped by phase",
		}, []string{"phase"}),
		importDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "import_duration_seconds",
			Help:    "Time taken to import a single artifact, including retries",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}, []string{"phase"}),
	}
}

func (m *Metrics) RecordArtifactGenerated(phase string) {
	m.artifactsGenerated.WithLabelValues(phase).Inc()
}

func (m *Metrics) RecordGenerationFailure(phase string) {
	m.generationFailures.WithLabelValues(phase).Inc()
}

func (m *Metrics) RecordArtifactImported(phase string, d time.Duration) {
	m.artifactsImported.WithLabelValues(phase).Inc()
	m.importDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (m *Metrics) RecordImportRetry(phase string) {
	m.importRetries.WithLabelValues(phase).Inc()
}

func (m *Metrics) RecordDeadLetter(phase string) {
	m.artifactsDeadLetters.WithLabelValues(phase).Inc()
}
