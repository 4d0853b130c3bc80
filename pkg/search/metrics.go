package search

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the search pipeline.
type Metrics struct {
	SearchesTotal    *prometheus.CounterVec
	SearchDuration   *prometheus.HistogramVec
	RefreshesTotal   *prometheus.CounterVec
	RefreshDuration  *prometheus.HistogramVec
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all search metrics on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgsearch_searches_total",
				Help: "Total number of search executions",
			},
			[]string{"view", "status"},
		),
		SearchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgsearch_search_duration_seconds",
				Help:    "Search execution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"view"},
		),
		RefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgsearch_refreshes_total",
				Help: "Total number of materialized view refreshes",
			},
			[]string{"view", "status"},
		),
		RefreshDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgsearch_refresh_duration_seconds",
				Help:    "Materialized view refresh duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"view"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgsearch_cache_hits_total",
				Help: "Total number of result cache hits",
			},
			[]string{"view"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgsearch_cache_misses_total",
				Help: "Total number of result cache misses",
			},
			[]string{"view"},
		),
	}

	registry.MustRegister(
		m.SearchesTotal,
		m.SearchDuration,
		m.RefreshesTotal,
		m.RefreshDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}
