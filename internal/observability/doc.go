// Package observability groups the logging, metrics, tracing and SLO
// subpackages shared by every nexus-voice component.
//
// Subpackages:
//   - logging: structured logging with slog and request id propagation
//   - metrics: process-wide Prometheus metrics (HTTP, sessions, database pool)
//   - tracing: OpenTelemetry provider setup and HTTP server spans
//   - slo: per-capability availability and latency objectives
//
// Example usage:
//
//	func main() {
//	    logger := logging.NewLogger()
//	    shutdown := tracing.InitTracer("nexus-voice")
//	    defer shutdown(context.Background())
//
//	    metrics.RecordSessionCreated(metrics.SessionReasonNew)
//	}
package observability
