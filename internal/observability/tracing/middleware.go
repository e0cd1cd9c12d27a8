package tracing

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"nexus-voice/internal/handler/http/pathutil"
	"nexus-voice/internal/handler/http/requestid"
	"nexus-voice/internal/handler/http/responsewriter"
)

// Middleware starts a server span per request, continuing any W3C trace
// context in the headers, and returns the trace id in X-Trace-Id.
//
// Spans are named by route template so session ids and user ids do not
// leak into span names. Install it inside requestid.Middleware so the span
// carries the request id. Responses with a 5xx status mark the span as an
// error.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := pathutil.NormalizePath(r.URL.Path)
		ctx, span := GetTracer().Start(ctx, r.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()

		w.Header().Set("X-Trace-Id", span.SpanContext().TraceID().String())

		rw := responsewriter.Wrap(w)
		next.ServeHTTP(rw, r.WithContext(ctx))

		status := rw.StatusCode()
		span.SetAttributes(
			attribute.Int("http.status_code", status),
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
			attribute.String("http.route", route),
			attribute.Int("http.response_size", rw.BytesWritten()),
		)
		if id := requestid.FromContext(ctx); id != "" {
			span.SetAttributes(attribute.String("http.request_id", id))
		}

		if status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}
