package synthesis

import (
	"errors"
	"fmt"
	"time"

	"nexus-voice/internal/resilience/retry"
)

// Config holds the pipeline limits. It is immutable after NewPipeline.
type Config struct {
	// ConcurrencyLimit is the maximum number of in-flight synthesis calls.
	ConcurrencyLimit int

	// CacheEnabled toggles the audio cache.
	CacheEnabled bool

	// CacheEntries is the maximum number of cached results.
	CacheEntries int

	// TextLimit is the maximum input length in runes after normalization.
	TextLimit int

	// FallbackText replaces empty input.
	FallbackText string

	// MinAudioBytes is the smallest result accepted as usable audio.
	MinAudioBytes int

	// TotalTimeout bounds one Synthesize call including retries and backoff.
	TotalTimeout time.Duration

	// Backoff controls the number of attempts and the delay between them.
	Backoff retry.Config

	// UpstreamRPS limits engine calls per second across all callers. Zero disables the limit.
	UpstreamRPS float64

	// UpstreamBurst is the burst size of the upstream limiter.
	UpstreamBurst int
}

// DefaultConfig returns the default pipeline limits.
func DefaultConfig() Config {
	return Config{
		ConcurrencyLimit: 3,
		CacheEnabled:     true,
		CacheEntries:     50,
		TextLimit:        1000,
		FallbackText:     "测试",
		MinAudioBytes:    1000,
		TotalTimeout:     60 * time.Second,
		Backoff:          retry.SynthesisConfig(),
		UpstreamRPS:      0,
		UpstreamBurst:    1,
	}
}

// Validate checks every field and returns all problems at once.
func (c Config) Validate() error {
	var errs []error

	if c.ConcurrencyLimit < 1 {
		errs = append(errs, fmt.Errorf("concurrency limit must be at least 1, got %d", c.ConcurrencyLimit))
	}
	if c.CacheEnabled && c.CacheEntries < 1 {
		errs = append(errs, fmt.Errorf("cache entries must be at least 1 when the cache is enabled, got %d", c.CacheEntries))
	}
	if c.TextLimit < 1 {
		errs = append(errs, fmt.Errorf("text limit must be at least 1, got %d", c.TextLimit))
	}
	if c.FallbackText == "" {
		errs = append(errs, errors.New("fallback text must not be empty"))
	}
	if c.MinAudioBytes < 1 {
		errs = append(errs, fmt.Errorf("min audio bytes must be at least 1, got %d", c.MinAudioBytes))
	}
	if c.TotalTimeout <= 0 {
		errs = append(errs, fmt.Errorf("total timeout must be positive, got %v", c.TotalTimeout))
	}
	if c.Backoff.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be at least 1, got %d", c.Backoff.MaxAttempts))
	}
	if c.Backoff.InitialDelay < 0 || c.Backoff.MaxJitter < 0 {
		errs = append(errs, errors.New("retry delay and jitter must not be negative"))
	}
	if c.UpstreamRPS < 0 {
		errs = append(errs, fmt.Errorf("upstream rps must not be negative, got %v", c.UpstreamRPS))
	}
	if c.UpstreamRPS > 0 && c.UpstreamBurst < 1 {
		errs = append(errs, fmt.Errorf("upstream burst must be at least 1, got %d", c.UpstreamBurst))
	}

	return errors.Join(errs...)
}
