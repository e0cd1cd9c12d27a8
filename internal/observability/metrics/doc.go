// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package holds the process-wide metrics that are not owned by a single
// component:
//   - HTTP request metrics (duration, count, response size)
//   - Session and interaction bookkeeping
//   - Database connection pool gauges
//
// Component metrics (capability health, synthesis, recovery) are created by
// their packages against an injected prometheus.Registerer.
//
// All metrics here are registered with the Prometheus default registry and
// exposed via the /metrics endpoint.
//
// Example usage:
//
//	import "nexus-voice/internal/observability/metrics"
//
//	func afterCreate() {
//	    metrics.RecordSessionCreated(metrics.SessionReasonNew)
//	}
package metrics
