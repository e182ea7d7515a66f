// Package telemetry counts what a run did, in Prometheus form.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of a processed file or collaborator call.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeUnsupported = "unsupported"
)

// Metrics holds one run's collectors on a private registry, so concurrent
// runs in one process never collide. All methods are safe for concurrent use
// and do nothing on a nil receiver.
type Metrics struct {
	registry    *prometheus.Registry
	files       *prometheus.CounterVec
	calls       *prometheus.CounterVec
	callSeconds *prometheus.HistogramVec
	issues      *prometheus.CounterVec
	runDuration prometheus.Gauge
}

// New creates and registers the run collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gitmetrics_files_processed_total",
			Help: "Files visited by a stage, by outcome.",
		}, []string{"stage", "outcome"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gitmetrics_collaborator_calls_total",
			Help: "Text-generation calls, by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		callSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gitmetrics_collaborator_call_seconds",
			Help:    "Latency of text-generation calls.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"purpose"}),
		issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gitmetrics_issues_total",
			Help: "Defect issues found, by criticality.",
		}, []string{"criticality"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gitmetrics_run_duration_seconds",
			Help: "Wall time of the analysis run.",
		}),
	}
	m.registry.MustRegister(m.files, m.calls, m.callSeconds, m.issues, m.runDuration)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// FileProcessed counts one file visited by stage.
func (m *Metrics) FileProcessed(stage, outcome string) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(stage, outcome).Inc()
}

// IssuesFound adds n issues of the given criticality.
func (m *Metrics) IssuesFound(criticality string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.issues.WithLabelValues(criticality).Add(float64(n))
}

// ObserveCall records a collaborator call. It satisfies llm.Observer.
func (m *Metrics) ObserveCall(purpose string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.calls.WithLabelValues(purpose, outcome).Inc()
	m.callSeconds.WithLabelValues(purpose).Observe(elapsed.Seconds())
}

// RunFinished records the run's wall time.
func (m *Metrics) RunFinished(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Set(elapsed.Seconds())
}

// WriteTextfile writes all metrics in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
