// Package pagination parses page/limit query parameters and builds the
// paged response envelope used by the history endpoints.
package pagination

import (
	"fmt"
	"log/slog"

	"nexus-voice/internal/pkg/config"
)

// Config bounds the page size.
type Config struct {
	DefaultLimit int
	MaxLimit     int
}

// DefaultConfig returns limit 20, at most 100.
func DefaultConfig() Config {
	return Config{DefaultLimit: 20, MaxLimit: 100}
}

// LoadConfig reads PAGINATION_DEFAULT_LIMIT and PAGINATION_MAX_LIMIT.
// A default above the max is clamped to the max.
func LoadConfig(logger *slog.Logger, metrics *config.Metrics) Config {
	cfg := DefaultConfig()
	l := config.NewLoader("pagination", logger, metrics)

	cfg.MaxLimit = config.Field(l, "max_limit",
		config.LoadEnvInt("PAGINATION_MAX_LIMIT", cfg.MaxLimit, func(v int) error {
			return config.ValidateIntRange(v, 1, 1000)
		}))
	cfg.DefaultLimit = config.Field(l, "default_limit",
		config.LoadEnvInt("PAGINATION_DEFAULT_LIMIT", cfg.DefaultLimit, func(v int) error {
			if v < 1 {
				return fmt.Errorf("value %d must be positive", v)
			}
			return nil
		}))
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}

	l.Finish()
	return cfg
}
