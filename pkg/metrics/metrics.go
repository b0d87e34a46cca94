// Package metrics instruments the manager with Prometheus collectors:
// journal occupancy gauges, transfer outcome counters and the janitor
// eviction counter.
//
// The teacher's pkg/metrics splits an interface package from a
// pkg/metrics/prometheus implementation, registering the constructor
// through an indirection (RegisterCacheMetricsConstructor) purely to
// avoid an import cycle between pkg/metrics and the domain packages
// (pkg/cache, pkg/content/store/s3) that would otherwise both need to
// import each other. crashmgr has no such cycle — pkg/journal,
// pkg/janitor and pkg/transfer never import pkg/metrics, they only
// satisfy the small interfaces those packages declare locally — so this
// is a single package building its collectors directly with promauto,
// grounded on the call shape in the teacher's
// pkg/metrics/prometheus/s3.go.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the manager's registry and every collector registered
// against it.
type Metrics struct {
	registry *prometheus.Registry

	JournalDataSizeBytes  prometheus.Gauge
	JournalEntryCount     prometheus.Gauge
	TransferTotal         *prometheus.CounterVec
	JanitorEvictionsTotal prometheus.Counter
}

// New builds a Metrics with its own private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}

	m.JournalDataSizeBytes = promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Name: "crashmgr_journal_data_size_bytes",
		Help: "Total on-disk byte size of non-removed crash archives.",
	})
	m.JournalEntryCount = promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Name: "crashmgr_journal_entry_count",
		Help: "Number of non-removed crash journal rows.",
	})
	m.TransferTotal = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "crashmgr_transfer_total",
		Help: "Completed archive transfer attempts by outcome.",
	}, []string{"status"})
	m.JanitorEvictionsTotal = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "crashmgr_janitor_evictions_total",
		Help: "Archives evicted by the quota janitor.",
	})

	return m
}

// SetDataSize reports the journal's current tracked archive byte total.
func (m *Metrics) SetDataSize(n int64) { m.JournalDataSizeBytes.Set(float64(n)) }

// SetEntryCount reports the journal's current non-removed row count.
func (m *Metrics) SetEntryCount(n int64) { m.JournalEntryCount.Set(float64(n)) }

// ObserveTransfer records one completed transfer attempt, keyed by
// whether it succeeded.
func (m *Metrics) ObserveTransfer(err error) {
	if err != nil {
		m.TransferTotal.WithLabelValues("failed").Inc()
		return
	}
	m.TransferTotal.WithLabelValues("ok").Inc()
}

// ObserveEviction records one janitor eviction.
func (m *Metrics) ObserveEviction() { m.JanitorEvictionsTotal.Inc() }

// Handler returns the HTTP handler exposing this registry in the
// Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
