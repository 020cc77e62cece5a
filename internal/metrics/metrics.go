package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gifsearch",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gifsearch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5},
	}, []string{"method", "path"})

	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gifsearch",
		Name:      "provider_requests_total",
		Help:      "Search provider round trips by outcome.",
	}, []string{"outcome"})

	ProviderRequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gifsearch",
		Name:      "provider_request_duration_seconds",
		Help:      "Search provider round trip duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
	})

	PageCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gifsearch",
		Name:      "page_cache_total",
		Help:      "Page cache lookups by result (hit, miss).",
	}, []string{"result"})

	SessionEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gifsearch",
		Name:      "session_events_total",
		Help:      "Session input events by type.",
	}, []string{"type"})

	StaleResultsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gifsearch",
		Name:      "stale_results_total",
		Help:      "Fetch completions discarded because their term was no longer active.",
	})

	FavoriteWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gifsearch",
		Name:      "favorite_writes_total",
		Help:      "Favorite store writes by action (add, remove) and outcome.",
	}, []string{"action", "outcome"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gifsearch",
		Name:      "active_sessions",
		Help:      "Number of currently open search sessions.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		PageCacheTotal,
		SessionEventsTotal,
		StaleResultsTotal,
		FavoriteWritesTotal,
		ActiveSessions,
	)
}
