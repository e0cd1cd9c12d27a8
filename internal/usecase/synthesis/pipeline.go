// Package synthesis turns text into audio through an external speech engine.
//
// The Pipeline bounds concurrency with a non-blocking gate, serves repeated
// requests from a bounded cache, retries undersized or failed engine results and
// reports one outcome per uncached call to the health monitor. Callers always get
// a Result; engine errors are classified into an entity.ErrorKind and never
// returned raw.
package synthesis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"nexus-voice/internal/domain/entity"
	"nexus-voice/internal/observability/tracing"
	"nexus-voice/internal/resilience/health"
	"nexus-voice/internal/resilience/retry"
)

// Chunk is one piece of a streamed engine response. A non-nil Err ends the stream.
type Chunk struct {
	Data []byte
	Err  error
}

// Engine is the external speech synthesis engine.
//
// Stream starts a synthesis and returns a channel of audio chunks that is closed
// when the response is complete. Implementations must stop sending and close the
// channel once ctx is done.
type Engine interface {
	Stream(ctx context.Context, text, voice string) (<-chan Chunk, error)
}

// Result is the outcome of one Synthesize call. Audio is empty iff Kind is set.
type Result struct {
	Audio    []byte
	Kind     entity.ErrorKind
	Voice    string
	Cached   bool
	Attempts int
}

// OK reports whether the result carries usable audio.
func (r Result) OK() bool {
	return r.Kind == entity.KindNone
}

// Err converts a failed result into an *entity.Error, or nil on success.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return entity.NewError(r.Kind, "synthesize", nil)
}

// Pipeline is the process-wide synthesis front end. It is safe for concurrent use.
type Pipeline struct {
	engine  Engine
	monitor health.OutcomeRecorder
	cfg     Config
	catalog *Catalog

	gate    *gate
	cache   *audioCache
	limiter *rate.Limiter

	metrics *Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCatalog replaces the built-in voice catalog.
func WithCatalog(c *Catalog) Option {
	return func(p *Pipeline) { p.catalog = c }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock overrides the clock used for response times.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a pipeline. cfg must be valid.
func NewPipeline(engine Engine, monitor health.OutcomeRecorder, cfg Config, opts ...Option) (*Pipeline, error) {
	if engine == nil {
		return nil, errors.New("synthesis engine is required")
	}
	if monitor == nil {
		return nil, errors.New("outcome recorder is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid synthesis config: %w", err)
	}

	p := &Pipeline{
		engine:  engine,
		monitor: monitor,
		cfg:     cfg,
		catalog: DefaultCatalog(),
		gate:    newGate(cfg.ConcurrencyLimit),
		cache:   newAudioCache(max(cfg.CacheEntries, 1)),
		tracer:  tracing.GetTracer(),
		logger:  slog.Default(),
		now:     time.Now,
		sleep:   retry.Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = NewMetrics(prometheus.NewRegistry())
	}
	if cfg.UpstreamRPS > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.UpstreamRPS), cfg.UpstreamBurst)
	}
	return p, nil
}

// Synthesize converts text to audio with the requested voice.
//
// A full gate fails fast with KindConcurrencyExceeded and is not reported to the
// health monitor. Cache hits are returned without contacting the engine. Every
// other call reports exactly one outcome.
func (p *Pipeline) Synthesize(ctx context.Context, text, voice string) Result {
	ctx, span := p.tracer.Start(ctx, "synthesis.Synthesize")
	defer span.End()

	if !p.gate.tryAcquire() {
		p.metrics.rejected.Inc()
		p.logger.Warn("synthesis rejected, concurrency limit reached",
			slog.Int("limit", p.cfg.ConcurrencyLimit))
		span.SetAttributes(attribute.String("synthesis.kind", string(entity.KindConcurrencyExceeded)))
		span.SetStatus(codes.Error, string(entity.KindConcurrencyExceeded))
		return Result{Kind: entity.KindConcurrencyExceeded}
	}
	defer p.gate.release()
	p.metrics.inFlight.Inc()
	defer p.metrics.inFlight.Dec()

	voice = p.catalog.Canonical(voice)
	text = normalizeText(text, p.cfg.FallbackText, p.cfg.TextLimit)
	key := cacheKey(text, voice)

	span.SetAttributes(
		attribute.String("synthesis.voice", voice),
		attribute.Int("synthesis.text_runes", len([]rune(text))),
	)

	if p.cfg.CacheEnabled {
		if audio, ok := p.cache.get(key); ok {
			p.metrics.cacheHits.Inc()
			span.SetAttributes(attribute.Bool("synthesis.cached", true))
			return Result{Audio: audio, Voice: voice, Cached: true}
		}
		p.metrics.cacheMisses.Inc()
	}

	res := p.run(ctx, text, voice)

	// Fallback audio is stored under the voice that produced it, so the
	// requested voice is tried again on the next call.
	if res.OK() && p.cfg.CacheEnabled {
		if n := p.cache.put(cacheKey(text, res.Voice), res.Audio); n > 0 {
			p.metrics.evictions.Add(float64(n))
		}
	}

	span.SetAttributes(
		attribute.Bool("synthesis.cached", false),
		attribute.Int("synthesis.attempts", res.Attempts),
		attribute.String("synthesis.kind", string(res.Kind)),
	)
	if !res.OK() {
		span.SetStatus(codes.Error, string(res.Kind))
	}
	return res
}

// Probe synthesizes the fallback text with the default voice, bypassing the
// cache, and reports whether usable audio came back. It holds a gate slot like
// any other call; a full gate fails the probe without reporting an outcome.
// Otherwise the outcome is reported to the health monitor like any other
// uncached call.
func (p *Pipeline) Probe(ctx context.Context) bool {
	ctx, span := p.tracer.Start(ctx, "synthesis.Probe")
	defer span.End()

	if !p.gate.tryAcquire() {
		p.metrics.rejected.Inc()
		p.logger.Warn("synthesis probe rejected, concurrency limit reached",
			slog.Int("limit", p.cfg.ConcurrencyLimit))
		span.SetAttributes(attribute.String("synthesis.kind", string(entity.KindConcurrencyExceeded)))
		return false
	}
	defer p.gate.release()
	p.metrics.inFlight.Inc()
	defer p.metrics.inFlight.Dec()

	res := p.run(ctx, p.cfg.FallbackText, p.catalog.Default())
	span.SetAttributes(attribute.String("synthesis.kind", string(res.Kind)))
	return res.OK()
}

// PurgeCache drops every cached result and returns the number removed.
func (p *Pipeline) PurgeCache() int {
	n := p.cache.purge()
	p.logger.Info("synthesis cache purged", slog.Int("entries", n))
	return n
}

// RecoveryHook returns the remediation step run before a synthesis recovery
// probe: it drops cached audio and then waits settle for the engine to
// recover.
func (p *Pipeline) RecoveryHook(settle time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		p.PurgeCache()
		return p.sleep(ctx, settle)
	}
}

// InFlight returns the number of calls currently admitted by the gate.
func (p *Pipeline) InFlight() int {
	return p.gate.current()
}

// CacheEnabled reports whether results are cached.
func (p *Pipeline) CacheEnabled() bool {
	return p.cfg.CacheEnabled
}

// Limit returns the configured concurrency limit.
func (p *Pipeline) Limit() int {
	return p.cfg.ConcurrencyLimit
}

// CacheLen returns the number of cached results.
func (p *Pipeline) CacheLen() int {
	return p.cache.len()
}

// Catalog returns the voice catalog in use.
func (p *Pipeline) Catalog() *Catalog {
	return p.catalog
}

// run performs the attempts and the optional fallback under the total timeout
// and reports the outcome.
func (p *Pipeline) run(ctx context.Context, text, voice string) (res Result) {
	start := p.now()
	res.Voice = voice

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("synthesis panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			res = Result{Kind: entity.KindUpstreamException, Voice: voice, Attempts: res.Attempts}
		}
		elapsed := p.now().Sub(start)
		if res.OK() {
			p.monitor.RecordOutcome(entity.CapabilitySynthesis, health.Success(elapsed))
		} else {
			p.monitor.RecordOutcome(entity.CapabilitySynthesis, health.Failure(res.Kind, elapsed))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.TotalTimeout)
	defer cancel()

	var kind entity.ErrorKind
	for attempt := 1; attempt <= p.cfg.Backoff.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := p.cfg.Backoff.Delay(attempt - 1)
			p.logger.Warn("synthesis attempt failed, retrying",
				slog.Int("attempt", attempt-1),
				slog.String("kind", string(kind)),
				slog.Duration("delay", delay))
			if err := p.sleep(ctx, delay); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					kind = entity.KindTimeout
				}
				break
			}
		}

		var audio []byte
		audio, kind = p.attempt(ctx, text, voice)
		res.Attempts++
		if kind == entity.KindNone {
			res.Audio = audio
			return res
		}
		if ctx.Err() != nil {
			break
		}
	}

	def := p.catalog.Default()
	if voice != def && ctx.Err() == nil &&
		(kind == entity.KindUpstreamException || kind == entity.KindAudioEmpty) {
		p.metrics.fallbacks.Inc()
		p.logger.Warn("synthesis falling back to default voice",
			slog.String("voice", voice),
			slog.String("default_voice", def),
			slog.String("kind", string(kind)))

		audio, fbKind := p.attempt(ctx, text, def)
		res.Attempts++
		if fbKind == entity.KindNone {
			res.Audio = audio
			res.Voice = def
			return res
		}
		kind = fbKind
	}

	p.logger.Error("synthesis failed",
		slog.String("voice", voice),
		slog.String("kind", string(kind)),
		slog.Int("attempts", res.Attempts))
	res.Kind = kind
	return res
}

// attempt performs one engine call and classifies its result.
func (p *Pipeline) attempt(ctx context.Context, text, voice string) ([]byte, entity.ErrorKind) {
	audio, kind := p.stream(ctx, text, voice)
	if kind == entity.KindNone {
		p.metrics.attempts.WithLabelValues("success").Inc()
	} else {
		p.metrics.attempts.WithLabelValues(string(kind)).Inc()
	}
	return audio, kind
}

func (p *Pipeline) stream(ctx context.Context, text, voice string) ([]byte, entity.ErrorKind) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, p.classifyErr(ctx, err)
		}
	}

	chunks, err := p.engine.Stream(ctx, text, voice)
	if err != nil {
		p.logger.Warn("synthesis engine call failed",
			slog.String("voice", voice),
			slog.Any("error", err))
		return nil, p.classifyErr(ctx, err)
	}

	var buf bytes.Buffer
	for {
		select {
		case <-ctx.Done():
			return p.classifyPartial(buf.Bytes())
		case c, ok := <-chunks:
			if !ok {
				if ctx.Err() != nil {
					return p.classifyPartial(buf.Bytes())
				}
				return p.classifySize(buf.Bytes())
			}
			if c.Err != nil {
				if ctx.Err() != nil || errors.Is(c.Err, context.DeadlineExceeded) {
					return p.classifyPartial(buf.Bytes())
				}
				p.logger.Warn("synthesis stream failed",
					slog.String("voice", voice),
					slog.Int("received_bytes", buf.Len()),
					slog.Any("error", c.Err))
				return nil, entity.KindOf(c.Err)
			}
			buf.Write(c.Data)
		}
	}
}

// classifySize classifies a completed response by its length.
func (p *Pipeline) classifySize(audio []byte) ([]byte, entity.ErrorKind) {
	switch {
	case len(audio) == 0:
		return nil, entity.KindAudioEmpty
	case len(audio) < p.cfg.MinAudioBytes:
		return nil, entity.KindAudioTooSmall
	}
	return audio, entity.KindNone
}

// classifyPartial classifies the data received before the deadline expired.
func (p *Pipeline) classifyPartial(audio []byte) ([]byte, entity.ErrorKind) {
	if len(audio) == 0 {
		return nil, entity.KindTimeout
	}
	out, kind := p.classifySize(audio)
	if kind == entity.KindNone {
		p.logger.Warn("synthesis deadline reached, accepting partial audio",
			slog.Int("bytes", len(audio)))
	}
	return out, kind
}

func (p *Pipeline) classifyErr(ctx context.Context, err error) entity.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return entity.KindTimeout
	}
	return entity.KindOf(err)
}
