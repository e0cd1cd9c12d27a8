// Package grpc exposes capability health over the standard grpc.health.v1
// protocol so load balancers and sidecars can probe the voice service.
package grpc

import (
	"log/slog"
	"sync"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"nexus-voice/internal/domain/entity"
	"nexus-voice/internal/resilience/health"
)

// ServicePrefix namespaces per-capability service names.
const ServicePrefix = "nexus.voice."

// ServiceName returns the health service name of a capability.
func ServiceName(c entity.Capability) string {
	return ServicePrefix + string(c)
}

// HealthServer mirrors the monitor's view into a grpc health server.
// The empty service name reports the process: it stays SERVING while
// degraded because every capability has a fallback.
type HealthServer struct {
	srv    *grpchealth.Server
	logger *slog.Logger

	mu   sync.Mutex
	last map[string]healthpb.HealthCheckResponse_ServingStatus
}

func NewHealthServer(logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	h := &HealthServer{
		srv:    grpchealth.NewServer(),
		logger: logger,
		last:   make(map[string]healthpb.HealthCheckResponse_ServingStatus),
	}
	h.set("", healthpb.HealthCheckResponse_SERVING)
	for _, c := range entity.AllCapabilities() {
		h.set(ServiceName(c), healthpb.HealthCheckResponse_SERVING)
	}
	return h
}

// Register attaches the health service to s.
func (h *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// Update applies a health snapshot. It is used as the recovery pass hook.
func (h *HealthServer) Update(status health.HealthStatus) {
	for c, st := range status.Capabilities {
		serving := healthpb.HealthCheckResponse_SERVING
		if st == health.StateUnhealthy {
			serving = healthpb.HealthCheckResponse_NOT_SERVING
		}
		h.set(ServiceName(c), serving)
	}
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (h *HealthServer) Shutdown() {
	h.srv.Shutdown()
}

func (h *HealthServer) set(service string, st healthpb.HealthCheckResponse_ServingStatus) {
	h.mu.Lock()
	prev, seen := h.last[service]
	h.last[service] = st
	h.mu.Unlock()

	if seen && prev != st {
		h.logger.Info("grpc health status changed",
			slog.String("service", service),
			slog.String("from", prev.String()),
			slog.String("to", st.String()))
	}
	h.srv.SetServingStatus(service, st)
}
