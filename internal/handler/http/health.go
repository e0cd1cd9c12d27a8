// Package http contains the REST surface of the voice service: health and
// readiness probes, request middleware and Prometheus instrumentation.
// Feature handlers live in the voice, system and conversation subpackages.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nexus-voice/internal/domain/entity"
	"nexus-voice/internal/handler/http/respond"
	"nexus-voice/internal/resilience/health"
)

// HealthChecker reports aggregated capability health.
type HealthChecker interface {
	CheckHealth(ctx context.Context) health.HealthStatus
	Metrics(c entity.Capability) (health.CapabilityMetrics, bool)
}

// Pinger verifies a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    health.Overall                     `json:"status"`
	Timestamp string                             `json:"timestamp"`
	Services  map[entity.Capability]health.State `json:"services"`
	System    *health.SystemStats                `json:"system,omitempty"`
	Version   string                             `json:"version"`
}

// HealthHandler serves the aggregated health report. A degraded service
// still answers 200 because every capability has a fallback path.
type HealthHandler struct {
	Monitor HealthChecker
	Version string
}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Monitor.CheckHealth(ctx)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	respond.JSON(w, http.StatusOK, HealthResponse{
		Status:    status.Overall,
		Timestamp: status.LastCheck.UTC().Format(time.RFC3339),
		Services:  status.Capabilities,
		System:    status.System,
		Version:   h.Version,
	})
}

// SynthesisProber runs a live synthesis check.
type SynthesisProber interface {
	Probe(ctx context.Context) bool
}

// TTSHealthHandler runs a live synthesis probe. It answers 503 when the
// probe fails. Within MinInterval of the last probe the previous result is
// served again instead of contacting the engine; probes never overlap.
type TTSHealthHandler struct {
	Prober      SynthesisProber
	Monitor     HealthChecker
	Timeout     time.Duration
	MinInterval time.Duration

	mu        sync.Mutex
	lastAt    time.Time
	lastOK    bool
	lastTook  time.Duration
	hasResult bool
	now       func() time.Time
}

func (h *TTSHealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ok, elapsed, cached := h.probe(r.Context())

	body := map[string]any{
		"service":          entity.CapabilitySynthesis,
		"status":           health.StateHealthy,
		"probe_duration_s": elapsed.Seconds(),
		"cached":           cached,
	}
	if m, found := h.Monitor.Metrics(entity.CapabilitySynthesis); found {
		body["metrics"] = m
	}

	code := http.StatusOK
	if !ok {
		body["status"] = health.StateUnhealthy
		code = http.StatusServiceUnavailable
		if !cached {
			slog.Default().Warn("synthesis probe failed", slog.Duration("elapsed", elapsed))
		}
	}
	respond.JSON(w, code, body)
}

func (h *TTSHealthHandler) probe(ctx context.Context) (ok bool, elapsed time.Duration, cached bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now
	if h.now != nil {
		now = h.now
	}
	if h.hasResult && h.MinInterval > 0 && now().Sub(h.lastAt) < h.MinInterval {
		return h.lastOK, h.lastTook, true
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := now()
	ok = h.Prober.Probe(ctx)
	elapsed = now().Sub(start)

	h.lastAt, h.lastOK, h.lastTook, h.hasResult = start, ok, elapsed, true
	return ok, elapsed, false
}

// ReadyHandler answers 200 once the store is reachable. Without a store
// the service runs stateless and is always ready.
type ReadyHandler struct {
	Store Pinger
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.Store != nil {
		if err := h.Store.Ping(ctx); err != nil {
			http.Error(w, "store not ready: "+respond.SanitizeError(err), http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// LiveHandler answers 200 while the process can serve requests.
type LiveHandler struct{}

func (LiveHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}
