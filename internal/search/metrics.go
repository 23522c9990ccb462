package search

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for query parsing, compilation and search.
type Metrics struct {
	// Parse metrics
	ParseTotal       *prometheus.CounterVec
	ParseErrorsTotal *prometheus.CounterVec

	// Compilation metrics
	CompilationTotal    *prometheus.CounterVec
	CompilationDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Search metrics
	SearchTotal    *prometheus.CounterVec
	SearchDuration *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with registerer when it is not nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		ParseTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagsearch_parse_total",
				Help: "Total number of parsed queries",
			},
			[]string{"status"},
		),
		ParseErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagsearch_parse_errors_total",
				Help: "Total number of rejected queries by error kind",
			},
			[]string{"kind"},
		),
		CompilationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagsearch_compilation_total",
				Help: "Total number of query compilations",
			},
			[]string{"backend"},
		),
		CompilationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tagsearch_compilation_duration_seconds",
				Help:    "Query compilation duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"backend"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tagsearch_cache_hits_total",
				Help: "Total number of compiled query cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tagsearch_cache_misses_total",
				Help: "Total number of compiled query cache misses",
			},
		),
		SearchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagsearch_search_total",
				Help: "Total number of post searches",
			},
			[]string{"backend", "status"},
		),
		SearchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tagsearch_search_duration_seconds",
				Help:    "Post search duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagsearch_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tagsearch_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.ParseTotal,
			m.ParseErrorsTotal,
			m.CompilationTotal,
			m.CompilationDuration,
			m.CacheHitsTotal,
			m.CacheMissesTotal,
			m.SearchTotal,
			m.SearchDuration,
			m.HTTPRequestsTotal,
			m.HTTPRequestDuration,
		)
	}
	return m
}
