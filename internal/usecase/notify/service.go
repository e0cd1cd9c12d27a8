package notify

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"

	"nexus-voice/internal/domain/entity"
	"nexus-voice/internal/resilience/circuitbreaker"
)

const (
	defaultPoolTimeout = 5 * time.Second
	defaultSendTimeout = 30 * time.Second
)

// ChannelHealthStatus is the breaker view of one channel.
type ChannelHealthStatus struct {
	Name               string `json:"name"`
	Enabled            bool   `json:"enabled"`
	CircuitBreakerOpen bool   `json:"circuit_breaker_open"`
	State              string `json:"state"`
}

// Service dispatches alerts to every enabled channel in the background.
type Service struct {
	channels    []Channel
	breakers    map[string]*circuitbreaker.CircuitBreaker
	workerPool  chan struct{}
	sendTimeout time.Duration
	poolTimeout time.Duration
	metrics     *Metrics
	logger      *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithSendTimeout bounds one channel send including retries.
func WithSendTimeout(d time.Duration) Option {
	return func(s *Service) { s.sendTimeout = d }
}

// NewService creates a service over channels with at most maxConcurrent
// sends in flight.
func NewService(channels []Channel, maxConcurrent int, opts ...Option) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		channels:    channels,
		breakers:    make(map[string]*circuitbreaker.CircuitBreaker, len(channels)),
		workerPool:  make(chan struct{}, maxConcurrent),
		sendTimeout: defaultSendTimeout,
		poolTimeout: defaultPoolTimeout,
		logger:      slog.Default(),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(prometheus.NewRegistry())
	}

	enabled := 0
	for _, ch := range channels {
		name := ch.Name()
		cfg := circuitbreaker.NotifierConfig(name)
		cfg.OnStateChange = func(_ string, _, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				s.metrics.circuitOpen.WithLabelValues(name).Inc()
			}
		}
		s.breakers[name] = circuitbreaker.New(cfg)
		if ch.IsEnabled() {
			enabled++
		}
	}
	s.metrics.channelsEnabled.Set(float64(enabled))
	return s
}

// Dispatch sends alert to every enabled channel without blocking. Send
// failures are logged and counted, never returned.
func (s *Service) Dispatch(ctx context.Context, alert *entity.Alert) error {
	if alert == nil || alert.Validate() != nil {
		return ErrInvalidAlert
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrServiceClosed
	}

	requestID, ok := ctx.Value(requestIDKey).(string)
	if !ok || requestID == "" {
		requestID = uuid.New().String()
	}

	for _, ch := range s.channels {
		if !ch.IsEnabled() {
			continue
		}
		s.wg.Add(1)
		go s.send(requestID, ch, alert)
	}
	return nil
}

type contextKey string

const requestIDKey contextKey = "request_id"

func (s *Service) send(requestID string, ch Channel, alert *entity.Alert) {
	defer s.wg.Done()
	s.metrics.active.Inc()
	defer s.metrics.active.Dec()

	log := s.logger.With(
		slog.String("request_id", requestID),
		slog.String("channel", ch.Name()),
		slog.String("capability", alert.Capability.String()),
		slog.Bool("healthy", alert.Healthy))

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in alert channel",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	select {
	case s.workerPool <- struct{}{}:
		defer func() { <-s.workerPool }()
	case <-time.After(s.poolTimeout):
		log.Warn("alert dropped: worker pool full")
		s.metrics.dropped.WithLabelValues(ch.Name(), "pool_full").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.sendTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	s.metrics.dispatched.WithLabelValues(ch.Name()).Inc()
	start := time.Now()
	err := s.breakers[ch.Name()].Run(func() error {
		return ch.Send(ctx, alert)
	})
	if circuitbreaker.IsRejection(err) {
		log.Warn("alert dropped: channel circuit open")
		s.metrics.dropped.WithLabelValues(ch.Name(), "circuit_open").Inc()
		return
	}

	elapsed := time.Since(start)
	s.metrics.recordResult(ch.Name(), err, elapsed)
	if err != nil {
		log.Warn("alert send failed", slog.Duration("send_duration", elapsed), slog.Any("error", err))
		return
	}
	log.Info("alert sent", slog.Duration("send_duration", elapsed))
}

// ChannelHealth reports the breaker state of every channel.
func (s *Service) ChannelHealth() []ChannelHealthStatus {
	out := make([]ChannelHealthStatus, 0, len(s.channels))
	for _, ch := range s.channels {
		cb := s.breakers[ch.Name()]
		out = append(out, ChannelHealthStatus{
			Name:               ch.Name(),
			Enabled:            ch.IsEnabled(),
			CircuitBreakerOpen: cb.IsOpen(),
			State:              cb.State().String(),
		})
	}
	return out
}

// Shutdown stops accepting alerts and waits for in-flight sends. When ctx
// expires first the remaining sends are canceled.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info("notification service shutdown complete")
		return nil
	case <-ctx.Done():
		s.cancel()
		s.logger.Warn("notification service shutdown timeout")
		return ctx.Err()
	}
}
