// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics track HTTP request patterns and performance
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPResponseSize measures HTTP response body size in bytes.
	// Synthesised audio dominates the upper buckets.
	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 4, 10),
		},
		[]string{"method", "path"},
	)

	// ActiveRequests tracks the number of in-flight HTTP requests
	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_requests",
			Help: "Number of in-flight HTTP requests",
		},
	)
)

// Session metrics track conversation bookkeeping
var (
	// SessionsCreatedTotal counts new sessions, by reason.
	SessionsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_created_total",
			Help: "Total number of sessions created",
		},
		[]string{"reason"}, // new, expired, unknown
	)

	// SessionsReusedTotal counts sessions continued within the idle timeout.
	SessionsReusedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_reused_total",
			Help: "Total number of sessions reused within the idle timeout",
		},
	)

	// SessionsPrunedTotal counts sessions removed by retention.
	SessionsPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_pruned_total",
			Help: "Total number of sessions deleted by the retention job",
		},
	)

	// InteractionsTotal counts logged interactions by type and outcome.
	InteractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interactions_total",
			Help: "Total number of logged user interactions",
		},
		[]string{"type", "status"},
	)
)

// Database metrics track the connection pool
var (
	// DBConnectionsInUse tracks connections currently in use
	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "Number of database connections in use",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	// DBConnectionWaitSeconds is the cumulative time spent waiting for a connection
	DBConnectionWaitSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connection_wait_seconds",
			Help: "Total time blocked waiting for a database connection",
		},
	)
)

// RecordHTTPRequest records an HTTP request with its metadata
func RecordHTTPRequest(method, path, status string, duration time.Duration, responseSize int) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())

	if responseSize > 0 {
		HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
	}
}
