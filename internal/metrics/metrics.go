// Package metrics holds the Prometheus collectors of the screener.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunDuration measures end-to-end strategy run latency
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "screener_run_duration_seconds",
			Help:    "Strategy run latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"route"},
	)

	// RunsTotal counts strategy runs by route and outcome
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screener_runs_total",
			Help: "Total number of strategy runs",
		},
		[]string{"route", "outcome"},
	)

	// RecordsEvaluated counts records passed through the evaluation engine
	RecordsEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "screener_records_evaluated_total",
			Help: "Total number of records evaluated against a strategy",
		},
	)

	// QuoteRequests counts requests to the quote provider
	QuoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screener_quote_requests_total",
			Help: "Total number of quote provider requests",
		},
		[]string{"endpoint", "status"},
	)

	// CacheLookups counts cache hits and misses
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screener_cache_lookups_total",
			Help: "Total number of cache lookups",
		},
		[]string{"kind", "result"},
	)

	// CachePurged counts entries dropped by the scheduled purge
	CachePurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "screener_cache_purged_total",
			Help: "Total number of expired cache entries purged",
		},
	)

	// BusDropped counts messages dropped because a subscriber buffer was full
	BusDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screener_bus_dropped_total",
			Help: "Total number of bus messages dropped",
		},
		[]string{"topic"},
	)

	// HTTPRequests counts API requests
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screener_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)
)
