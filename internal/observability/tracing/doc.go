// Package tracing provides OpenTelemetry tracing integration.
//
// InitTracer installs the process-wide tracer provider. Middleware opens a
// server span per HTTP request and echoes its trace id in X-Trace-Id.
// Services open child spans through GetTracer.
//
// Example usage:
//
//	func main() {
//	    shutdown := tracing.InitTracer("nexus-voice")
//	    defer shutdown(context.Background())
//	}
//
//	func synthesize(ctx context.Context) {
//	    ctx, span := tracing.GetTracer().Start(ctx, "synthesis.Synthesize")
//	    defer span.End()
//	}
package tracing
