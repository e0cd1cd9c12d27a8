// Package config assembles the process configuration of the voice service
// from the environment. Loading is fail-open: an invalid value keeps its
// default, is logged and is counted in config_fallbacks_total.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nexus-voice/internal/infra/chat"
	pkgconfig "nexus-voice/internal/pkg/config"
	"nexus-voice/internal/resilience/health"
	"nexus-voice/internal/usecase/recovery"
	"nexus-voice/internal/usecase/synthesis"
)

// AppConfig is the immutable configuration of the api process.
type AppConfig struct {
	// HTTPAddr is the listen address of the REST API. Default ":8080".
	HTTPAddr string

	// GRPCAddr is the listen address of the gRPC health service. Default ":9090".
	GRPCAddr string

	// TTSURL is the base URL of the synthesis engine.
	TTSURL string

	// ASRURL is the base URL of the recognition service. Empty disables
	// the transcribe endpoint.
	ASRURL    string
	ASRAPIKey string

	Chat chat.ProviderConfig

	// SessionTimeout is the idle gap after which a conversation gets a new session.
	SessionTimeout time.Duration

	// AutoRecovery enables the background recovery loop.
	AutoRecovery bool

	Recovery  recovery.Config
	Monitor   health.MonitorConfig
	Synthesis synthesis.Config

	// VoiceCatalogFile is an optional YAML file with the supported voices.
	VoiceCatalogFile string

	// DiskPath is the filesystem sampled for the disk gauge.
	DiskPath string

	// TraceSampleRatio is the share of root traces sampled, in [0, 1].
	TraceSampleRatio float64

	// ShutdownTimeout bounds graceful shutdown of the servers.
	ShutdownTimeout time.Duration
}

// DefaultAppConfig returns the defaults used for every unset variable.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		HTTPAddr:         ":8080",
		GRPCAddr:         ":9090",
		TTSURL:           "http://localhost:5050",
		Chat:             chat.DefaultProviderConfig(),
		SessionTimeout:   5 * time.Minute,
		AutoRecovery:     true,
		Recovery:         recovery.DefaultConfig(),
		Monitor:          health.DefaultMonitorConfig(),
		Synthesis:        synthesis.DefaultConfig(),
		DiskPath:         "/",
		TraceSampleRatio: 1,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Validate reports every invalid field at once. Chat credentials are not
// checked here; a missing key disables the chat endpoint instead.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http address cannot be empty"))
	}
	if err := pkgconfig.ValidateHTTPURL(c.TTSURL); err != nil {
		errs = append(errs, fmt.Errorf("tts url: %w", err))
	}
	if c.ASRURL != "" {
		if err := pkgconfig.ValidateHTTPURL(c.ASRURL); err != nil {
			errs = append(errs, fmt.Errorf("asr url: %w", err))
		}
	}
	if c.SessionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("session timeout must be positive, got %v", c.SessionTimeout))
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		errs = append(errs, fmt.Errorf("trace sample ratio must be within [0, 1], got %v", c.TraceSampleRatio))
	}
	if err := c.Recovery.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("recovery: %w", err))
	}
	if err := c.Synthesis.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("synthesis: %w", err))
	}
	return errors.Join(errs...)
}

// ChatEnabled reports whether a chat provider can be built.
func (c *AppConfig) ChatEnabled() bool {
	return c.Chat.Validate() == nil
}

// LoadAppConfig reads the api configuration from the environment.
//
// Environment variables:
//   - HTTP_ADDR, GRPC_ADDR
//   - TTS_URL, ASR_URL, ASR_API_KEY
//   - CHAT_PROVIDER (openai|claude), CHAT_API_KEY, CHAT_BASE_URL, CHAT_MODEL
//   - SESSION_TIMEOUT (default 5m)
//   - AUTO_RECOVERY (default true), RECOVERY_INTERVAL (default 30s)
//   - HEALTH_FAILURE_THRESHOLD (default 3), MAX_RECOVERY_ATTEMPTS (default 3)
//   - TTS_CONCURRENCY_LIMIT (default 3), TTS_CACHE_SIZE (default 50), TTS_UPSTREAM_RPS (default 0)
//   - VOICE_CATALOG_FILE, DISK_PATH, TRACE_SAMPLE_RATIO, SHUTDOWN_TIMEOUT
func LoadAppConfig(logger *slog.Logger, metrics *pkgconfig.Metrics) *AppConfig {
	cfg := DefaultAppConfig()
	l := pkgconfig.NewLoader("app", logger, metrics)

	cfg.HTTPAddr = pkgconfig.LoadEnvString("HTTP_ADDR", cfg.HTTPAddr)
	cfg.GRPCAddr = pkgconfig.LoadEnvString("GRPC_ADDR", cfg.GRPCAddr)
	cfg.TTSURL = pkgconfig.Field(l, "tts_url",
		pkgconfig.LoadEnvWithFallback("TTS_URL", cfg.TTSURL, pkgconfig.ValidateHTTPURL))
	cfg.ASRURL = pkgconfig.Field(l, "asr_url",
		pkgconfig.LoadEnvWithFallback("ASR_URL", cfg.ASRURL, pkgconfig.ValidateHTTPURL))
	cfg.ASRAPIKey = pkgconfig.LoadEnvString("ASR_API_KEY", "")

	cfg.Chat.Provider = pkgconfig.Field(l, "chat_provider",
		pkgconfig.LoadEnvWithFallback("CHAT_PROVIDER", cfg.Chat.Provider, pkgconfig.OneOf(chat.ProviderOpenAI, chat.ProviderClaude)))
	cfg.Chat.APIKey = pkgconfig.LoadEnvString("CHAT_API_KEY", "")
	cfg.Chat.BaseURL = pkgconfig.LoadEnvString("CHAT_BASE_URL", "")
	cfg.Chat.Model = pkgconfig.LoadEnvString("CHAT_MODEL", cfg.Chat.Model)

	cfg.SessionTimeout = pkgconfig.Field(l, "session_timeout",
		pkgconfig.LoadEnvDuration("SESSION_TIMEOUT", cfg.SessionTimeout, pkgconfig.ValidatePositiveDuration))

	cfg.AutoRecovery = pkgconfig.Field(l, "auto_recovery",
		pkgconfig.LoadEnvBool("AUTO_RECOVERY", cfg.AutoRecovery))
	cfg.Recovery.Interval = pkgconfig.Field(l, "recovery_interval",
		pkgconfig.LoadEnvDuration("RECOVERY_INTERVAL", cfg.Recovery.Interval, func(d time.Duration) error {
			return pkgconfig.ValidateDuration(d, time.Second, time.Hour)
		}))
	cfg.Monitor.FailureThreshold = pkgconfig.Field(l, "failure_threshold",
		pkgconfig.LoadEnvInt("HEALTH_FAILURE_THRESHOLD", cfg.Monitor.FailureThreshold, func(v int) error {
			return pkgconfig.ValidateIntRange(v, 1, 100)
		}))
	cfg.Monitor.MaxRecoveryAttempts = pkgconfig.Field(l, "max_recovery_attempts",
		pkgconfig.LoadEnvInt("MAX_RECOVERY_ATTEMPTS", cfg.Monitor.MaxRecoveryAttempts, func(v int) error {
			return pkgconfig.ValidateIntRange(v, 1, 100)
		}))

	cfg.Synthesis.ConcurrencyLimit = pkgconfig.Field(l, "tts_concurrency_limit",
		pkgconfig.LoadEnvInt("TTS_CONCURRENCY_LIMIT", cfg.Synthesis.ConcurrencyLimit, func(v int) error {
			return pkgconfig.ValidateIntRange(v, 1, 64)
		}))
	cfg.Synthesis.CacheEntries = pkgconfig.Field(l, "tts_cache_size",
		pkgconfig.LoadEnvInt("TTS_CACHE_SIZE", cfg.Synthesis.CacheEntries, func(v int) error {
			return pkgconfig.ValidateIntRange(v, 1, 10000)
		}))
	cfg.Synthesis.UpstreamRPS = pkgconfig.Field(l, "tts_upstream_rps",
		pkgconfig.LoadEnvFloat("TTS_UPSTREAM_RPS", cfg.Synthesis.UpstreamRPS, pkgconfig.ValidateNonNegativeFloat))

	cfg.VoiceCatalogFile = pkgconfig.LoadEnvString("VOICE_CATALOG_FILE", "")
	cfg.DiskPath = pkgconfig.LoadEnvString("DISK_PATH", cfg.DiskPath)
	cfg.TraceSampleRatio = pkgconfig.Field(l, "trace_sample_ratio",
		pkgconfig.LoadEnvFloat("TRACE_SAMPLE_RATIO", cfg.TraceSampleRatio, func(v float64) error {
			if v < 0 || v > 1 {
				return fmt.Errorf("ratio must be within [0, 1], got %v", v)
			}
			return nil
		}))
	cfg.ShutdownTimeout = pkgconfig.Field(l, "shutdown_timeout",
		pkgconfig.LoadEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout, pkgconfig.ValidatePositiveDuration))

	l.Finish()
	return &cfg
}
