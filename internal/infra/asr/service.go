package asr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nexus-voice/internal/domain/entity"
	"nexus-voice/internal/resilience/circuitbreaker"
	"nexus-voice/internal/resilience/health"
	"nexus-voice/internal/resilience/retry"
)

// MaxAudioBytes is the largest clip accepted by Service.
const MaxAudioBytes = 10 << 20

// ServiceConfig configures the reliability wrapper around a recognizer.
type ServiceConfig struct {
	Timeout time.Duration
	Retry   retry.Config
	Breaker circuitbreaker.Config
}

// DefaultServiceConfig returns the production recognition settings.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Timeout: 30 * time.Second,
		Retry:   retry.RecognitionConfig(),
		Breaker: circuitbreaker.RecognitionConfig(),
	}
}

// Service recognises speech through a Recognizer behind a circuit breaker
// and reports every call under the recognition capability.
type Service struct {
	recognizer Recognizer
	breaker    *circuitbreaker.CircuitBreaker
	cfg        ServiceConfig
	monitor    health.OutcomeRecorder
	now        func() time.Time
}

// NewService wraps recognizer.
func NewService(recognizer Recognizer, monitor health.OutcomeRecorder, cfg ServiceConfig) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.RecognitionConfig()
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = circuitbreaker.RecognitionConfig()
	}
	cfg.Retry.Retryable = func(err error) bool {
		return !circuitbreaker.IsRejection(err) && retry.IsRetryable(err)
	}

	return &Service{
		recognizer: recognizer,
		breaker:    circuitbreaker.New(cfg.Breaker),
		cfg:        cfg,
		monitor:    monitor,
		now:        time.Now,
	}
}

// Recognize returns the transcript of audio. Failures carry an entity
// error kind.
func (s *Service) Recognize(ctx context.Context, audio []byte, format string) (Transcript, error) {
	switch {
	case len(audio) == 0:
		return Transcript{}, &entity.ValidationError{Field: "audio", Message: "is required"}
	case len(audio) > MaxAudioBytes:
		return Transcript{}, &entity.ValidationError{
			Field:   "audio",
			Message: fmt.Sprintf("exceeds %d bytes", MaxAudioBytes),
		}
	case format == "":
		format = "wav"
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := s.now()
	var t Transcript
	err := retry.WithBackoff(ctx, s.cfg.Retry, func() error {
		return s.breaker.Run(func() error {
			var err error
			t, err = s.recognizer.Recognize(ctx, audio, format)
			return err
		})
	})
	elapsed := s.now().Sub(start)

	if err != nil {
		kind := entity.KindUpstreamException
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = entity.KindTimeout
		}
		s.monitor.RecordOutcome(entity.CapabilityRecognition, health.Failure(kind, elapsed))
		slog.WarnContext(ctx, "speech recognition failed",
			slog.String("kind", string(kind)),
			slog.String("breaker_state", s.breaker.State().String()),
			slog.Any("error", err))
		return Transcript{}, entity.NewError(kind, "recognize", err)
	}

	s.monitor.RecordOutcome(entity.CapabilityRecognition, health.Success(elapsed))
	slog.DebugContext(ctx, "speech recognised",
		slog.Int("audio_bytes", len(audio)),
		slog.Float64("confidence", t.Confidence),
		slog.Duration("duration", elapsed))
	return t, nil
}

// Probe pings the recognizer when it supports it. Recognizers without a
// health endpoint always pass.
func (s *Service) Probe(ctx context.Context) bool {
	p, ok := s.recognizer.(interface{ Ping(context.Context) error })
	if !ok {
		return true
	}
	return s.breaker.Run(func() error { return p.Ping(ctx) }) == nil
}
