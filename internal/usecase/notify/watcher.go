package notify

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"nexus-voice/internal/domain/entity"
	"nexus-voice/internal/resilience/health"
)

// Dispatcher is implemented by Service.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert *entity.Alert) error
}

// MetricsSource supplies the counters attached to an alert.
type MetricsSource interface {
	Metrics(c entity.Capability) (health.CapabilityMetrics, bool)
}

// Watcher turns capability state changes into alerts. Every capability
// starts healthy, so a steady state never alerts.
type Watcher struct {
	dispatcher  Dispatcher
	source      MetricsSource
	maxAttempts int
	logger      *slog.Logger
	now         func() time.Time

	mu   sync.Mutex
	last map[entity.Capability]health.State
}

// NewWatcher creates a watcher. maxAttempts is the automatic recovery
// budget shown in alerts; zero hides it.
func NewWatcher(d Dispatcher, source MetricsSource, maxAttempts int, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		dispatcher:  d,
		source:      source,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
		last:        make(map[entity.Capability]health.State),
	}
	for _, c := range entity.AllCapabilities() {
		w.last[c] = health.StateHealthy
	}
	return w
}

// Observe compares status with the previous observation and dispatches one
// alert per changed capability. It returns the alerts dispatched.
func (w *Watcher) Observe(ctx context.Context, status health.HealthStatus) []*entity.Alert {
	w.mu.Lock()
	var changed []entity.Capability
	for _, c := range entity.AllCapabilities() {
		state, ok := status.Capabilities[c]
		if !ok || state == w.last[c] {
			continue
		}
		w.last[c] = state
		changed = append(changed, c)
	}
	w.mu.Unlock()

	var sent []*entity.Alert
	for _, c := range changed {
		alert := w.alertFor(c, status.Capabilities[c] == health.StateHealthy)
		if err := w.dispatcher.Dispatch(ctx, alert); err != nil {
			w.logger.Warn("alert not dispatched",
				slog.String("capability", c.String()),
				slog.Any("error", err))
			continue
		}
		sent = append(sent, alert)
	}
	return sent
}

func (w *Watcher) alertFor(c entity.Capability, healthy bool) *entity.Alert {
	alert := &entity.Alert{
		Capability:          c,
		Healthy:             healthy,
		MaxRecoveryAttempts: w.maxAttempts,
		At:                  w.now(),
	}
	if m, ok := w.source.Metrics(c); ok {
		alert.ConsecutiveFailures = m.ConsecutiveFailures
		alert.RecoveryAttempts = m.RecoveryAttempts
		alert.ErrorKinds = maps.Clone(m.ErrorKinds)
	}
	return alert
}
