package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for provider orchestration.
type Metrics struct {
	ProviderCalls     *prometheus.CounterVec   // labels: provider, operation, outcome={success,error}
	ProviderFallbacks *prometheus.CounterVec   // labels: operation
	QuotaRemaining    *prometheus.GaugeVec     // labels: provider
	CacheLookups      *prometheus.CounterVec   // labels: kind={timelines,events}, result={hit,miss}
	RouteSegments     *prometheus.HistogramVec // labels: mode={single,hybrid}
	EventsPublished   prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ProviderCalls,
		m.ProviderFallbacks,
		m.QuotaRemaining,
		m.CacheLookups,
		m.RouteSegments,
		m.EventsPublished,
	)
	return m
}

// NewMetricsForTesting creates unregistered metrics so tests can build as
// many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "road_weather",
			Name:      "provider_calls_total",
			Help:      "Provider calls made by the factory, by provider, operation and outcome.",
		}, []string{"provider", "operation", "outcome"}),
		ProviderFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "road_weather",
			Name:      "provider_fallbacks_total",
			Help:      "Times a request moved on to the next provider after a failure.",
		}, []string{"operation"}),
		QuotaRemaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "road_weather",
			Name:      "provider_quota_remaining",
			Help:      "Remaining daily calls per provider as last observed.",
		}, []string{"provider"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "road_weather",
			Name:      "cache_lookups_total",
			Help:      "Weather cache lookups by payload kind and result.",
		}, []string{"kind", "result"}),
		RouteSegments: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "road_weather",
			Name:      "route_segments",
			Help:      "Segments returned per route analysis.",
			Buckets:   []float64{0, 1, 2, 4, 6, 8, 10, 12},
		}, []string{"mode"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "road_weather",
			Name:      "events_published_total",
			Help:      "Derived weather events published downstream.",
		}),
	}
}
