package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	EventsWritten    *prometheus.CounterVec
	WriteFailures    *prometheus.CounterVec
	DeriveSkipped    *prometheus.CounterVec
	ScopeResolutions *prometheus.CounterVec
	QueryLatency     prometheus.Histogram
	QueryResultSize  prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		EventsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_events_written_total",
			Help: "Total number of audit events persisted, labeled by write path",
		}, []string{"path"}),
		WriteFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_write_failures_total",
			Help: "Total number of failed audit event writes, labeled by write path",
		}, []string{"path"}),
		DeriveSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_derive_skipped_total",
			Help: "Total number of skipped automatic derivations, labeled by reason",
		}, []string{"reason"}),
		ScopeResolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_scope_resolutions_total",
			Help: "Total number of read-scope resolutions, labeled by resolved mode",
		}, []string{"mode"}),
		QueryLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "audittrail_query_latency_seconds",
			Help:    "Latency of audit log list queries in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		QueryResultSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "audittrail_query_result_size",
			Help:    "Number of items returned per audit log list query",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}),
	}
}

// EventWritten increments the written counter for the given write path
// ("explicit" or "derived"). Nil-safe so components can run without metrics.
func (m *Metrics) EventWritten(path string) {
	if m == nil {
		return
	}
	m.EventsWritten.WithLabelValues(path).Inc()
}

// WriteFailed increments the failure counter for the given write path.
func (m *Metrics) WriteFailed(path string) {
	if m == nil {
		return
	}
	m.WriteFailures.WithLabelValues(path).Inc()
}

// DeriveSkippedFor increments the skip counter for the given reason.
func (m *Metrics) DeriveSkippedFor(reason string) {
	if m == nil {
		return
	}
	m.DeriveSkipped.WithLabelValues(reason).Inc()
}

// ScopeResolved increments the resolution counter for the given mode.
func (m *Metrics) ScopeResolved(mode string) {
	if m == nil {
		return
	}
	m.ScopeResolutions.WithLabelValues(mode).Inc()
}

// ObserveQuery records the latency and result size of a list query.
func (m *Metrics) ObserveQuery(seconds float64, items int) {
	if m == nil {
		return
	}
	m.QueryLatency.Observe(seconds)
	m.QueryResultSize.Observe(float64(items))
}
