// Package health tracks per-capability call outcomes and derives health state.
//
// Every protected capability (synthesis, recognition, chat, storage) owns a set of
// counters that are updated on each call outcome. A capability turns unhealthy once
// its consecutive-failure counter reaches the configured threshold and becomes healthy
// again on the next success. The overall state is degraded while any capability is
// unhealthy.
//
// The monitor also owns the per-capability recovery-attempt counters read by the
// recovery coordinator.
//
// Usage Example:
//
//	monitor := health.NewMonitor(health.DefaultMonitorConfig())
//	monitor.RecordOutcome(entity.CapabilitySynthesis, health.Failure(entity.KindTimeout, elapsed))
//	status := monitor.CheckHealth(ctx)
package health

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nexus-voice/internal/domain/entity"
)

// State is the health state of a single capability.
type State string

const (
	StateHealthy   State = "healthy"
	StateUnhealthy State = "unhealthy"
)

// Overall is the aggregated health state.
type Overall string

const (
	OverallHealthy  Overall = "healthy"
	OverallDegraded Overall = "degraded"
)

// MonitorConfig holds the thresholds of the monitor.
type MonitorConfig struct {
	// FailureThreshold is the number of consecutive failures that marks a capability unhealthy.
	FailureThreshold int

	// MaxRecoveryAttempts bounds automatic recovery attempts per capability.
	MaxRecoveryAttempts int

	// WindowSize is the number of response-time samples kept per capability.
	WindowSize int
}

// DefaultMonitorConfig returns the default thresholds.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		FailureThreshold:    3,
		MaxRecoveryAttempts: 3,
		WindowSize:          100,
	}
}

// Outcome describes the result of one call against a capability.
type Outcome struct {
	Success      bool
	ResponseTime time.Duration
	ErrorKind    entity.ErrorKind
}

// Success builds a successful outcome.
func Success(responseTime time.Duration) Outcome {
	return Outcome{Success: true, ResponseTime: responseTime}
}

// Failure builds a failed outcome.
func Failure(kind entity.ErrorKind, responseTime time.Duration) Outcome {
	return Outcome{Success: false, ResponseTime: responseTime, ErrorKind: kind}
}

// HealthStatus is the derived health snapshot returned by CheckHealth.
type HealthStatus struct {
	Overall      Overall                      `json:"overall"`
	Capabilities map[entity.Capability]State `json:"services"`
	LastCheck    time.Time                    `json:"last_check"`
	System       *SystemStats                 `json:"system,omitempty"`
}

// CapabilityMetrics is the metrics view of one capability.
type CapabilityMetrics struct {
	Capability          entity.Capability `json:"capability"`
	State               State             `json:"state"`
	TotalRequests       int64             `json:"total_requests"`
	SuccessfulRequests  int64             `json:"successful_requests"`
	FailedRequests      int64             `json:"failed_requests"`
	SuccessRate         float64           `json:"success_rate"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	LastSuccess         *time.Time        `json:"last_success"`
	LastFailure         *time.Time        `json:"last_failure"`
	AvgResponseTime     time.Duration     `json:"avg_response_time_ns"`
	ErrorKinds          map[string]int64  `json:"error_types"`
	RecoveryAttempts    int               `json:"recovery_attempts"`
}

// OutcomeRecorder is implemented by Monitor. Components that only report
// outcomes depend on this interface.
type OutcomeRecorder interface {
	RecordOutcome(c entity.Capability, o Outcome)
}

// capabilityStats holds the counters of one capability.
// All fields are guarded by mu so that one outcome is applied atomically.
type capabilityStats struct {
	mu sync.Mutex

	total               int64
	success             int64
	failure             int64
	consecutiveFailures int
	lastSuccess         time.Time
	lastFailure         time.Time
	window              *responseWindow
	errorKinds          map[entity.ErrorKind]int64
	state               State
	recoveryAttempts    int
}

// Monitor is the process-wide health monitor. It is safe for concurrent use.
type Monitor struct {
	cfg      MonitorConfig
	now      func() time.Time
	sampler  SystemSampler
	recorder Recorder
	logger   *slog.Logger

	// stats is populated at construction and never mutated afterwards,
	// so lookups need no lock.
	stats map[entity.Capability]*capabilityStats

	autoRecovery atomic.Bool

	checkMu   sync.Mutex
	lastCheck time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithSystemSampler attaches a system resource sampler used by CheckHealth.
func WithSystemSampler(s SystemSampler) Option {
	return func(m *Monitor) { m.sampler = s }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Monitor) { m.recorder = r }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// NewMonitor creates a monitor tracking every capability in entity.AllCapabilities.
func NewMonitor(cfg MonitorConfig, opts ...Option) *Monitor {
	def := DefaultMonitorConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.MaxRecoveryAttempts <= 0 {
		cfg.MaxRecoveryAttempts = def.MaxRecoveryAttempts
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}

	m := &Monitor{
		cfg:      cfg,
		now:      time.Now,
		recorder: noopRecorder{},
		logger:   slog.Default(),
		stats:    make(map[entity.Capability]*capabilityStats),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.autoRecovery.Store(true)

	for _, c := range entity.AllCapabilities() {
		m.stats[c] = &capabilityStats{
			window:     newResponseWindow(cfg.WindowSize),
			errorKinds: make(map[entity.ErrorKind]int64),
			state:      StateHealthy,
		}
		m.recorder.SetHealthy(c, true)
	}
	return m
}

// Config returns the monitor thresholds.
func (m *Monitor) Config() MonitorConfig {
	return m.cfg
}

// RecordOutcome applies one call outcome to the capability's counters.
// Unknown capabilities are ignored.
func (m *Monitor) RecordOutcome(c entity.Capability, o Outcome) {
	st, ok := m.stats[c]
	if !ok {
		m.logger.Debug("outcome for unknown capability ignored", slog.String("capability", string(c)))
		return
	}

	now := m.now()

	st.mu.Lock()
	st.total++
	if o.Success {
		st.success++
		st.lastSuccess = now
		st.consecutiveFailures = 0
	} else {
		st.failure++
		st.lastFailure = now
		st.consecutiveFailures++
		kind := o.ErrorKind
		if kind == entity.KindNone {
			kind = entity.KindUpstreamException
		}
		st.errorKinds[kind]++
	}
	if o.ResponseTime > 0 {
		st.window.add(o.ResponseTime)
	}

	prev := st.state
	switch {
	case o.Success:
		st.state = StateHealthy
	case st.consecutiveFailures >= m.cfg.FailureThreshold:
		st.state = StateUnhealthy
	}
	next := st.state
	consecutive := st.consecutiveFailures
	st.mu.Unlock()

	m.recorder.ObserveOutcome(c, o)

	if prev != next {
		m.recorder.SetHealthy(c, next == StateHealthy)
		if next == StateUnhealthy {
			m.logger.Warn("capability marked unhealthy",
				slog.String("capability", string(c)),
				slog.Int("consecutive_failures", consecutive),
				slog.String("last_error_kind", string(o.ErrorKind)))
		} else {
			m.logger.Info("capability healthy again", slog.String("capability", string(c)))
		}
	}
}

// CheckHealth recomputes the overall state and stamps the check time.
// It always succeeds; a failing system sampler only leaves System empty.
func (m *Monitor) CheckHealth(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Overall:      OverallHealthy,
		Capabilities: make(map[entity.Capability]State, len(m.stats)),
	}

	var unhealthy []string
	for _, c := range entity.AllCapabilities() {
		st := m.stats[c]
		st.mu.Lock()
		state := st.state
		st.mu.Unlock()

		status.Capabilities[c] = state
		if state == StateUnhealthy {
			unhealthy = append(unhealthy, string(c))
		}
	}
	if len(unhealthy) > 0 {
		status.Overall = OverallDegraded
		m.logger.Warn("health check found unhealthy capabilities",
			slog.Any("capabilities", unhealthy))
	}

	if m.sampler != nil {
		sys, err := m.sampler.Sample(ctx)
		if err != nil {
			m.logger.Warn("system stats sampling failed", slog.Any("error", err))
		} else {
			status.System = &sys
		}
	}

	m.checkMu.Lock()
	m.lastCheck = m.now()
	status.LastCheck = m.lastCheck
	m.checkMu.Unlock()

	return status
}

// LastCheck returns the time of the most recent CheckHealth call.
func (m *Monitor) LastCheck() time.Time {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()
	return m.lastCheck
}

// State returns the current state of one capability.
func (m *Monitor) State(c entity.Capability) State {
	st, ok := m.stats[c]
	if !ok {
		return StateHealthy
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// Metrics returns the metrics of one capability. ok is false for unknown capabilities.
func (m *Monitor) Metrics(c entity.Capability) (CapabilityMetrics, bool) {
	st, ok := m.stats[c]
	if !ok {
		return CapabilityMetrics{}, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	total := st.total
	if total < 1 {
		total = 1
	}
	out := CapabilityMetrics{
		Capability:          c,
		State:               st.state,
		TotalRequests:       st.total,
		SuccessfulRequests:  st.success,
		FailedRequests:      st.failure,
		SuccessRate:         float64(st.success) / float64(total) * 100,
		ConsecutiveFailures: st.consecutiveFailures,
		AvgResponseTime:     st.window.average(),
		ErrorKinds:          make(map[string]int64, len(st.errorKinds)),
		RecoveryAttempts:    st.recoveryAttempts,
	}
	if !st.lastSuccess.IsZero() {
		t := st.lastSuccess
		out.LastSuccess = &t
	}
	if !st.lastFailure.IsZero() {
		t := st.lastFailure
		out.LastFailure = &t
	}
	for k, v := range st.errorKinds {
		out.ErrorKinds[string(k)] = v
	}
	return out, true
}

// AllMetrics returns the metrics of every capability keyed by name.
func (m *Monitor) AllMetrics() map[entity.Capability]CapabilityMetrics {
	out := make(map[entity.Capability]CapabilityMetrics, len(m.stats))
	for _, c := range entity.AllCapabilities() {
		mt, _ := m.Metrics(c)
		out[c] = mt
	}
	return out
}

// SetAutoRecovery enables or disables automatic recovery.
func (m *Monitor) SetAutoRecovery(enabled bool) {
	m.autoRecovery.Store(enabled)
	m.logger.Info("auto recovery toggled", slog.Bool("enabled", enabled))
}

// AutoRecoveryEnabled reports whether automatic recovery is enabled.
func (m *Monitor) AutoRecoveryEnabled() bool {
	return m.autoRecovery.Load()
}

// ShouldRecover reports whether the capability has reached the failure
// threshold and still has automatic recovery budget left.
func (m *Monitor) ShouldRecover(c entity.Capability) bool {
	if !m.autoRecovery.Load() {
		return false
	}
	st, ok := m.stats[c]
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.consecutiveFailures >= m.cfg.FailureThreshold &&
		st.recoveryAttempts < m.cfg.MaxRecoveryAttempts
}

// RecordRecoveryAttempt increments the capability's recovery-attempt counter
// and returns the new value.
func (m *Monitor) RecordRecoveryAttempt(c entity.Capability) int {
	st, ok := m.stats[c]
	if !ok {
		return 0
	}
	st.mu.Lock()
	st.recoveryAttempts++
	n := st.recoveryAttempts
	st.mu.Unlock()

	m.recorder.SetRecoveryAttempts(c, n)
	m.logger.Info("recovery attempt recorded",
		slog.String("capability", string(c)),
		slog.Int("attempt", n),
		slog.Int("max_attempts", m.cfg.MaxRecoveryAttempts))
	return n
}

// ResetRecoveryAttempts clears the capability's recovery-attempt counter.
func (m *Monitor) ResetRecoveryAttempts(c entity.Capability) {
	st, ok := m.stats[c]
	if !ok {
		return
	}
	st.mu.Lock()
	st.recoveryAttempts = 0
	st.mu.Unlock()

	m.recorder.SetRecoveryAttempts(c, 0)
	m.logger.Info("recovery attempts reset", slog.String("capability", string(c)))
}

// RecoveryAttempts returns a snapshot of every capability's attempt counter.
func (m *Monitor) RecoveryAttempts() map[entity.Capability]int {
	out := make(map[entity.Capability]int, len(m.stats))
	for c, st := range m.stats {
		st.mu.Lock()
		out[c] = st.recoveryAttempts
		st.mu.Unlock()
	}
	return out
}
