package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"nexus-voice/internal/domain/entity"
	"nexus-voice/internal/observability/tracing"
	"nexus-voice/internal/resilience/circuitbreaker"
	"nexus-voice/internal/resilience/health"
	"nexus-voice/internal/resilience/retry"
)

// ServiceConfig configures the reliability wrapper around a provider.
type ServiceConfig struct {
	// Timeout bounds one Reply call including retries.
	Timeout time.Duration

	// MaxHistory is the number of most recent messages sent upstream.
	MaxHistory int

	Retry   retry.Config
	Breaker circuitbreaker.Config
}

// DefaultServiceConfig returns the production settings for provider.
func DefaultServiceConfig(provider string) ServiceConfig {
	return ServiceConfig{
		Timeout:    60 * time.Second,
		MaxHistory: 20,
		Retry:      retry.ChatConfig(),
		Breaker:    circuitbreaker.ChatConfig(provider),
	}
}

// Service answers conversations through a provider, protected by a circuit
// breaker and a retry policy. Every call is reported to the health monitor
// under the chat capability.
type Service struct {
	provider Provider
	breaker  *circuitbreaker.CircuitBreaker
	cfg      ServiceConfig
	monitor  health.OutcomeRecorder
	tracer   trace.Tracer
	now      func() time.Time
}

// NewService wraps provider.
func NewService(provider Provider, monitor health.OutcomeRecorder, cfg ServiceConfig) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 20
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.ChatConfig()
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = circuitbreaker.ChatConfig(provider.Name())
	}
	cfg.Retry.Retryable = isRetryable

	return &Service{
		provider: provider,
		breaker:  circuitbreaker.New(cfg.Breaker),
		cfg:      cfg,
		monitor:  monitor,
		tracer:   tracing.GetTracer(),
		now:      time.Now,
	}
}

// Reply returns the assistant's answer to history. Failures carry an
// entity error kind: timeout when the deadline expired, upstream_exception
// otherwise.
func (s *Service) Reply(ctx context.Context, history []Message) (string, error) {
	if len(history) == 0 {
		return "", &entity.ValidationError{Field: "history", Message: "must contain at least one message"}
	}
	if len(history) > s.cfg.MaxHistory {
		history = history[len(history)-s.cfg.MaxHistory:]
	}

	ctx, span := s.tracer.Start(ctx, "chat.Reply", trace.WithAttributes(
		attribute.String("provider", s.provider.Name()),
		attribute.Int("history", len(history)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := s.now()
	var reply string
	err := retry.WithBackoff(ctx, s.cfg.Retry, func() error {
		return s.breaker.Run(func() error {
			var err error
			reply, err = s.provider.Reply(ctx, history)
			return err
		})
	})
	elapsed := s.now().Sub(start)

	if err != nil {
		kind := classify(ctx, err)
		s.monitor.RecordOutcome(entity.CapabilityChat, health.Failure(kind, elapsed))
		span.SetStatus(codes.Error, string(kind))
		if circuitbreaker.IsRejection(err) {
			slog.WarnContext(ctx, "chat circuit breaker open, request rejected",
				slog.String("circuit", s.breaker.Name()),
				slog.String("state", s.breaker.State().String()))
		}
		return "", entity.NewError(kind, "chat reply", err)
	}

	s.monitor.RecordOutcome(entity.CapabilityChat, health.Success(elapsed))
	slog.InfoContext(ctx, "chat reply generated",
		slog.String("provider", s.provider.Name()),
		slog.Int("input_runes", utf8.RuneCountInString(lastUserContent(history))),
		slog.Int("reply_runes", utf8.RuneCountInString(reply)),
		slog.Duration("duration", elapsed))
	return reply, nil
}

// Ping checks the provider through the breaker. It does not record an
// outcome; recovery uses it as a probe.
func (s *Service) Ping(ctx context.Context) error {
	return s.breaker.Run(func() error { return s.provider.Ping(ctx) })
}

// Probe adapts Ping to a recovery probe.
func (s *Service) Probe(ctx context.Context) bool {
	return s.Ping(ctx) == nil
}

// BreakerState returns the breaker state name.
func (s *Service) BreakerState() string {
	return s.breaker.State().String()
}

func isRetryable(err error) bool {
	if circuitbreaker.IsRejection(err) {
		return false
	}
	return retry.IsRetryable(err)
}

func classify(ctx context.Context, err error) entity.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return entity.KindTimeout
	}
	return entity.KindUpstreamException
}
