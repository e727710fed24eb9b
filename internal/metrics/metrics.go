package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "discovery",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	SourceRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "source_requests_total",
		Help:      "Total requests to upstream catalogs by source name and result status.",
	}, []string{"source", "status"})

	SourceRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "discovery",
		Name:      "source_request_duration_seconds",
		Help:      "Upstream catalog request duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"source"})

	SourceAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "discovery",
		Name:      "source_available",
		Help:      "Whether an upstream catalog is available (1) or blocked by circuit breaker (0).",
	}, []string{"source"})

	RawItemsFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "raw_items_fetched_total",
		Help:      "Raw catalog items examined before filtering and dedup, by source.",
	}, []string{"source"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "cache_hits_total",
		Help:      "Total number of search cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "cache_misses_total",
		Help:      "Total number of search cache misses.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SourceRequestsTotal,
		SourceRequestDuration,
		SourceAvailable,
		RawItemsFetched,
		CacheHitsTotal,
		CacheMissesTotal,
	)
}
