package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DashboardMetrics exposes the composed KPIs and engine health as Prometheus series.
// A nil receiver is a no-op.
type DashboardMetrics struct {
	kpis       *prometheus.GaugeVec
	rejections *prometheus.GaugeVec
	compose    *prometheus.HistogramVec
	coalesced  *prometheus.CounterVec
	version    prometheus.Gauge
}

// NewDashboardMetrics registers dashboard collectors. A nil registerer uses the default one.
func NewDashboardMetrics(registerer prometheus.Registerer) *DashboardMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	kpis := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "salespulse_dashboard_kpi",
		Help: "Latest organisation KPI values computed by the refresh job.",
	}, []string{"scope", "kpi"})
	rejections := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "salespulse_ingest_rejected_records",
		Help: "Rows excluded at ingestion in the latest snapshot, by collection.",
	}, []string{"collection"})
	compose := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "salespulse_dashboard_compose_duration_seconds",
		Help:    "Time spent loading a snapshot and composing a dashboard bundle.",
		Buckets: prometheus.DefBuckets,
	}, []string{"scope"})
	coalesced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salespulse_dashboard_coalesced_total",
		Help: "Dashboard requests served from a concurrent identical computation.",
	}, []string{"scope"})
	version := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "salespulse_snapshot_version",
		Help: "Latest snapshot version observed by this process.",
	})
	registerer.MustRegister(kpis, rejections, compose, coalesced, version)
	return &DashboardMetrics{kpis: kpis, rejections: rejections, compose: compose, coalesced: coalesced, version: version}
}

// SetKPI records a KPI value for a scope.
func (m *DashboardMetrics) SetKPI(scope, kpi string, value float64) {
	if m == nil {
		return
	}
	m.kpis.WithLabelValues(scope, kpi).Set(value)
}

// SetRejections records the rejected row count for a collection.
func (m *DashboardMetrics) SetRejections(collection string, count int) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(collection).Set(float64(count))
}

// ObserveCompose records how long a composition took.
func (m *DashboardMetrics) ObserveCompose(scope string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.compose.WithLabelValues(scope).Observe(elapsed.Seconds())
}

// IncCoalesced counts a request that shared another caller's result.
func (m *DashboardMetrics) IncCoalesced(scope string) {
	if m == nil {
		return
	}
	m.coalesced.WithLabelValues(scope).Inc()
}

// SetSnapshotVersion records the latest snapshot version.
func (m *DashboardMetrics) SetSnapshotVersion(version int64) {
	if m == nil {
		return
	}
	m.version.Set(float64(version))
}
