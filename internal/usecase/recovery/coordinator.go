// Package recovery drives unhealthy capabilities back to health.
//
// A Coordinator runs a ticker loop that asks the health monitor which
// capabilities need recovery and runs one hook + probe attempt for each of
// them. Attempts are bounded by the monitor's recovery budget; a manual
// trigger bypasses the budget.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"nexus-voice/internal/domain/entity"
	"nexus-voice/internal/resilience/health"
	"nexus-voice/internal/resilience/retry"
)

// Monitor is the part of health.Monitor the coordinator depends on.
type Monitor interface {
	CheckHealth(ctx context.Context) health.HealthStatus
	ShouldRecover(c entity.Capability) bool
	RecordRecoveryAttempt(c entity.Capability) int
	ResetRecoveryAttempts(c entity.Capability)
	RecoveryAttempts() map[entity.Capability]int
	AutoRecoveryEnabled() bool
	Config() health.MonitorConfig
	State(c entity.Capability) health.State
	RecordOutcome(c entity.Capability, o health.Outcome)
}

// Action is the capability-specific part of a recovery attempt.
// Hook remediates, Probe verifies. Either may be nil.
type Action struct {
	Hook  func(ctx context.Context) error
	Probe func(ctx context.Context) bool
}

// Report describes one finished recovery attempt.
type Report struct {
	Capability entity.Capability `json:"service"`
	Recovered  bool              `json:"recovered"`
	Attempts   int               `json:"attempts"`
	Duration   time.Duration     `json:"duration_ns"`
}

// StatusReport is a snapshot of the coordinator state.
type StatusReport struct {
	AutoRecoveryEnabled bool           `json:"auto_recovery_enabled"`
	Attempts            map[string]int `json:"recovery_attempts"`
	MaxAttempts         int            `json:"max_recovery_attempts"`
	Running             bool           `json:"running"`
	LastPass            *time.Time     `json:"last_pass,omitempty"`
}

// Coordinator runs recovery attempts for unhealthy capabilities.
type Coordinator struct {
	monitor Monitor
	cfg     Config
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
	onPass  func(health.HealthStatus)

	mu      sync.RWMutex
	actions map[entity.Capability]Action

	// one attempt per capability at a time
	locks map[entity.Capability]*sync.Mutex

	running  atomic.Bool
	lastPass atomic.Pointer[time.Time]
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithPassHook registers fn to receive the health status taken at the start
// of every loop pass.
func WithPassHook(fn func(health.HealthStatus)) Option {
	return func(c *Coordinator) { c.onPass = fn }
}

// NewCoordinator returns a coordinator for the monitor's capabilities.
func NewCoordinator(monitor Monitor, cfg Config, opts ...Option) (*Coordinator, error) {
	if monitor == nil {
		return nil, errors.New("recovery: monitor is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("recovery: invalid config: %w", err)
	}

	c := &Coordinator{
		monitor: monitor,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
		actions: make(map[entity.Capability]Action),
		locks:   make(map[entity.Capability]*sync.Mutex),
	}
	for _, capability := range entity.AllCapabilities() {
		c.locks[capability] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(prometheus.NewRegistry())
	}
	return c, nil
}

// Register sets the recovery action for a capability, replacing any
// previous one. Nil fields fall back to the default settle hook and an
// always-passing probe.
func (c *Coordinator) Register(capability entity.Capability, a Action) error {
	if !capability.Valid() {
		return fmt.Errorf("register %q: %w", capability, entity.ErrUnknownCapability)
	}
	c.mu.Lock()
	c.actions[capability] = a
	c.mu.Unlock()
	return nil
}

// Run executes the recovery loop until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("recovery: coordinator already running")
	}
	defer c.running.Store(false)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.logger.Info("recovery loop started", slog.Duration("interval", c.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("recovery loop stopped")
			return nil
		case <-ticker.C:
			c.pass(ctx)
		}
	}
}

// pass runs one loop iteration. It never panics.
func (c *Coordinator) pass(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in recovery loop",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	status := c.monitor.CheckHealth(ctx)
	if c.onPass != nil {
		c.onPass(status)
	}

	for _, capability := range entity.AllCapabilities() {
		if ctx.Err() != nil {
			return
		}
		if !c.monitor.ShouldRecover(capability) {
			continue
		}
		c.attempt(ctx, capability)
	}

	now := c.now()
	c.lastPass.Store(&now)
	c.metrics.passes.Inc()
}

// TriggerRecovery runs one attempt for the capability immediately,
// regardless of the automatic budget.
func (c *Coordinator) TriggerRecovery(ctx context.Context, capability entity.Capability) (Report, error) {
	if !capability.Valid() {
		return Report{}, fmt.Errorf("trigger recovery %q: %w", capability, entity.ErrUnknownCapability)
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	c.logger.Info("manual recovery triggered", slog.String("capability", string(capability)))
	report := c.attempt(ctx, capability)
	if !report.Recovered && ctx.Err() != nil {
		return report, ctx.Err()
	}
	return report, nil
}

// Status returns the coordinator and budget state.
func (c *Coordinator) Status() StatusReport {
	attempts := c.monitor.RecoveryAttempts()
	out := StatusReport{
		AutoRecoveryEnabled: c.monitor.AutoRecoveryEnabled(),
		Attempts:            make(map[string]int, len(attempts)),
		MaxAttempts:         c.monitor.Config().MaxRecoveryAttempts,
		Running:             c.running.Load(),
		LastPass:            c.lastPass.Load(),
	}
	for capability, n := range attempts {
		out.Attempts[string(capability)] = n
	}
	return out
}

// attempt records an attempt, runs the hook, waits RecoveryDelay and probes.
// A passing probe resets the capability's recovery budget and, if the probe
// did not report to the monitor itself, records a success so the capability
// leaves the unhealthy state.
func (c *Coordinator) attempt(ctx context.Context, capability entity.Capability) (report Report) {
	lock := c.locks[capability]
	lock.Lock()
	defer lock.Unlock()

	start := c.now()
	report.Capability = capability
	report.Attempts = c.monitor.RecordRecoveryAttempt(capability)
	logger := c.logger.With(
		slog.String("capability", string(capability)),
		slog.Int("attempt", report.Attempts))

	defer func() {
		report.Duration = c.now().Sub(start)
		if r := recover(); r != nil {
			report.Recovered = false
			c.metrics.observeAttempt(capability, resultPanic)
			logger.Error("panic during recovery attempt",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	action := c.action(capability)

	logger.Info("running recovery hook")
	if err := action.Hook(ctx); err != nil {
		logger.Warn("recovery hook failed", slog.Any("error", err))
	}

	if err := retry.Sleep(ctx, c.cfg.RecoveryDelay); err != nil {
		c.metrics.observeAttempt(capability, resultFailed)
		return report
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()
	probeStart := c.now()
	if !action.Probe(probeCtx) {
		c.metrics.observeAttempt(capability, resultFailed)
		logger.Warn("recovery probe failed")
		return report
	}

	if c.monitor.State(capability) != health.StateHealthy {
		c.monitor.RecordOutcome(capability, health.Success(c.now().Sub(probeStart)))
	}
	c.monitor.ResetRecoveryAttempts(capability)
	c.metrics.observeAttempt(capability, resultRecovered)
	report.Recovered = true
	logger.Info("capability recovered")
	return report
}

func (c *Coordinator) action(capability entity.Capability) Action {
	c.mu.RLock()
	a := c.actions[capability]
	c.mu.RUnlock()

	if a.Hook == nil {
		settle := c.cfg.SettleDelay
		a.Hook = func(ctx context.Context) error { return retry.Sleep(ctx, settle) }
	}
	if a.Probe == nil {
		a.Probe = func(context.Context) bool { return true }
	}
	return a
}
