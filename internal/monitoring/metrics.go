// Package monitoring holds the Prometheus metrics for the pipeline.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. A nil
// *Metrics is valid and records nothing, which keeps dry runs and
// tests free of registry state.
type Metrics struct {
	ItemsFetchedTotal  *prometheus.CounterVec
	FetchErrorsTotal   *prometheus.CounterVec
	PagesDiscovered    *prometheus.CounterVec
	EscalationsTotal   *prometheus.CounterVec
	ItemsEnrichedTotal *prometheus.CounterVec
	PhaseDurationSecs  *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		ItemsFetchedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "refstream_items_fetched_total",
			Help: "Items fetched successfully, by vendor and engine tier",
		}, []string{"vendor", "engine"}),
		FetchErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "refstream_fetch_errors_total",
			Help: "Fetch failures, by vendor and error kind",
		}, []string{"vendor", "kind"}),
		PagesDiscovered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "refstream_pages_discovered_total",
			Help: "Listing pages walked during discovery",
		}, []string{"vendor"}),
		EscalationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "refstream_escalations_total",
			Help: "Fetches escalated from the primary to the secondary engine",
		}, []string{"vendor"}),
		ItemsEnrichedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "refstream_items_enriched_total",
			Help: "Items enriched by the classifier",
		}, []string{"vendor"}),
		PhaseDurationSecs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "refstream_phase_duration_seconds",
			Help:    "Wall-clock duration of each pipeline phase per vendor",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"phase"}),
	}
}

func (m *Metrics) IncItemsFetched(vendor, engine string) {
	if m == nil {
		return
	}
	m.ItemsFetchedTotal.WithLabelValues(vendor, engine).Inc()
}

func (m *Metrics) IncFetchErrors(vendor, kind string) {
	if m == nil {
		return
	}
	m.FetchErrorsTotal.WithLabelValues(vendor, kind).Inc()
}

func (m *Metrics) AddPagesDiscovered(vendor string, n int) {
	if m == nil {
		return
	}
	m.PagesDiscovered.WithLabelValues(vendor).Add(float64(n))
}

func (m *Metrics) IncEscalations(vendor string) {
	if m == nil {
		return
	}
	m.EscalationsTotal.WithLabelValues(vendor).Inc()
}

func (m *Metrics) IncItemsEnriched(vendor string) {
	if m == nil {
		return
	}
	m.ItemsEnrichedTotal.WithLabelValues(vendor).Inc()
}

func (m *Metrics) ObservePhaseDuration(phase string, seconds float64) {
	if m == nil {
		return
	}
	m.PhaseDurationSecs.WithLabelValues(phase).Observe(seconds)
}
