// Package system serves capability metrics and the recovery controls.
package system

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"nexus-voice/internal/domain/entity"
	"nexus-voice/internal/handler/http/respond"
	"nexus-voice/internal/resilience/health"
	"nexus-voice/internal/usecase/recovery"
)

// MetricsSource exposes per-capability counters.
type MetricsSource interface {
	Metrics(c entity.Capability) (health.CapabilityMetrics, bool)
	AllMetrics() map[entity.Capability]health.CapabilityMetrics
}

// Recoverer runs and reports recovery attempts.
type Recoverer interface {
	TriggerRecovery(ctx context.Context, c entity.Capability) (recovery.Report, error)
	Status() recovery.StatusReport
}

type Handler struct {
	Monitor  MetricsSource
	Recovery Recoverer
	// TriggerTimeout bounds a manual recovery attempt.
	TriggerTimeout time.Duration
	Logger         *slog.Logger
	now            func() time.Time
}

func Register(mux *http.ServeMux, h *Handler) {
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	if h.TriggerTimeout <= 0 {
		h.TriggerTimeout = time.Minute
	}
	if h.now == nil {
		h.now = time.Now
	}
	mux.HandleFunc("GET /api/metrics", h.Metrics)
	mux.HandleFunc("GET /api/recovery/status", h.RecoveryStatus)
	mux.HandleFunc("POST /api/recovery/trigger", h.TriggerRecovery)
}

// Metrics answers GET /api/metrics. With ?service= it returns that
// capability only.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("service")
	if name == "" {
		all := h.Monitor.AllMetrics()
		out := make(map[string]health.CapabilityMetrics, len(all))
		for c, m := range all {
			out[string(c)] = m
		}
		respond.JSON(w, http.StatusOK, out)
		return
	}

	c, err := entity.ParseCapability(name)
	if err != nil {
		respond.Classified(w, err)
		return
	}
	m, ok := h.Monitor.Metrics(c)
	if !ok {
		respond.Error(w, http.StatusNotFound, fmt.Errorf("service %s not found", name))
		return
	}
	respond.JSON(w, http.StatusOK, m)
}

func (h *Handler) RecoveryStatus(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, h.Recovery.Status())
}

type triggerRequest struct {
	Service string `json:"service"`
}

// TriggerResponse is the body of POST /api/recovery/trigger.
type TriggerResponse struct {
	Message   string `json:"message"`
	Service   string `json:"service"`
	Recovered bool   `json:"recovered"`
	Attempts  int    `json:"attempts"`
	Duration  string `json:"duration"`
	Timestamp string `json:"timestamp"`
}

// TriggerRecovery runs one recovery attempt now. The service defaults to
// synthesis when the body is empty.
func (h *Handler) TriggerRecovery(w http.ResponseWriter, r *http.Request) {
	req := triggerRequest{Service: string(entity.CapabilitySynthesis)}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respond.Error(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.Service == "" {
		req.Service = string(entity.CapabilitySynthesis)
	}
	c, err := entity.ParseCapability(req.Service)
	if err != nil {
		respond.Classified(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.TriggerTimeout)
	defer cancel()
	report, err := h.Recovery.TriggerRecovery(ctx, c)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			respond.Classified(w, entity.NewError(entity.KindTimeout, "trigger recovery", err))
			return
		}
		respond.Classified(w, err)
		return
	}

	msg := fmt.Sprintf("Recovery triggered for %s", c)
	if !report.Recovered {
		msg = fmt.Sprintf("Recovery attempted for %s but the probe still fails", c)
	}
	h.Logger.Info("manual recovery finished",
		slog.String("capability", string(c)),
		slog.Bool("recovered", report.Recovered),
		slog.Duration("duration", report.Duration))
	respond.JSON(w, http.StatusOK, TriggerResponse{
		Message:   msg,
		Service:   string(c),
		Recovered: report.Recovered,
		Attempts:   report.Attempts,
		Duration:  report.Duration.String(),
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}
