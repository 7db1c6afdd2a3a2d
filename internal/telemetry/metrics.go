// Package telemetry owns the Prometheus collectors for the import pipeline.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tally"

// Metrics is a set of collectors on a private registry. A nil *Metrics is
// valid and records nothing, so components can take it optionally.
type Metrics struct {
	registry        *prometheus.Registry
	imports         *prometheus.CounterVec
	importDuration  prometheus.Histogram
	recordsIngested *prometheus.CounterVec
	reconciliation  *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// New registers every collector on a fresh registry, along with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Import attempts by outcome.",
		}, []string{"status"}),
		importDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_duration_seconds",
			Help:      "Wall time of the import transaction.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		recordsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_ingested_total",
			Help:      "Leaf records committed, by record type.",
		}, []string{"type"}),
		reconciliation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_checks_total",
			Help:      "Reconciliation checks by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Post-import notifications by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route pattern and status code.",
		}, []string{"route", "code"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.imports,
		m.importDuration,
		m.recordsIngested,
		m.reconciliation,
		m.notifications,
		m.httpRequests,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveImport records one import attempt. status is "completed", "invalid",
// "timeout" or "failed".
func (m *Metrics) ObserveImport(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.imports.WithLabelValues(status).Inc()
	if status == "completed" {
		m.importDuration.Observe(elapsed.Seconds())
	}
}

// AddRecords counts committed records of one type.
func (m *Metrics) AddRecords(recordType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsIngested.WithLabelValues(recordType).Add(float64(n))
}

// ObserveReconciliation counts one verification, "match" or "mismatch".
func (m *Metrics) ObserveReconciliation(match bool) {
	if m == nil {
		return
	}
	result := "mismatch"
	if match {
		result = "match"
	}
	m.reconciliation.WithLabelValues(result).Inc()
}

// ObserveNotification counts one notification outcome: "delivered", "failed" or "dropped".
func (m *Metrics) ObserveNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

// ObserveRequest counts one HTTP request.
func (m *Metrics) ObserveRequest(route, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, code).Inc()
}
