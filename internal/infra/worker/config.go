package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nexus-voice/internal/pkg/config"
)

// WorkerConfig holds the maintenance schedule.
//
// Environment variables:
//   - SESSION_PRUNE_SCHEDULE: cron expression (default "0 4 * * *")
//   - WORKER_TIMEZONE: IANA timezone of the schedule (default "Asia/Shanghai")
//   - SESSION_RETENTION: age after which ended or idle sessions are deleted (default 2160h)
//   - SESSION_PRUNE_TIMEOUT: bound of one prune run (default 5m)
//   - DB_STATS_SCHEDULE: cron expression for pool gauges (default "@every 15s")
type WorkerConfig struct {
	PruneSchedule    string
	Timezone         string
	SessionRetention time.Duration
	PruneTimeout     time.Duration
	StatsSchedule    string
}

// DefaultConfig returns the default maintenance schedule: prune daily at
// 04:00 and keep ninety days of history.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		PruneSchedule:    "0 4 * * *",
		Timezone:         "Asia/Shanghai",
		SessionRetention: 90 * 24 * time.Hour,
		PruneTimeout:     5 * time.Minute,
		StatsSchedule:    "@every 15s",
	}
}

// Validate checks every field and returns all problems at once.
func (c *WorkerConfig) Validate() error {
	var errs []error

	if err := config.ValidateCronSchedule(c.PruneSchedule); err != nil {
		errs = append(errs, fmt.Errorf("prune schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := config.ValidateDuration(c.SessionRetention, time.Hour, 5*365*24*time.Hour); err != nil {
		errs = append(errs, fmt.Errorf("session retention: %w", err))
	}
	if err := config.ValidateDuration(c.PruneTimeout, time.Second, time.Hour); err != nil {
		errs = append(errs, fmt.Errorf("prune timeout: %w", err))
	}
	if err := config.ValidateCronSchedule(c.StatsSchedule); err != nil {
		errs = append(errs, fmt.Errorf("stats schedule: %w", err))
	}

	return errors.Join(errs...)
}

// LoadConfigFromEnv loads the worker configuration with the fail-open
// strategy: every invalid field keeps its default, is logged and counted.
// The returned configuration is always valid.
func LoadConfigFromEnv(logger *slog.Logger, metrics *config.Metrics) *WorkerConfig {
	cfg := DefaultConfig()
	l := config.NewLoader("worker", logger, metrics)

	cfg.PruneSchedule = config.Field(l, "prune_schedule",
		config.LoadEnvWithFallback("SESSION_PRUNE_SCHEDULE", cfg.PruneSchedule, config.ValidateCronSchedule))
	cfg.Timezone = config.Field(l, "timezone",
		config.LoadEnvWithFallback("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone))
	cfg.SessionRetention = config.Field(l, "session_retention",
		config.LoadEnvDuration("SESSION_RETENTION", cfg.SessionRetention, func(d time.Duration) error {
			return config.ValidateDuration(d, time.Hour, 5*365*24*time.Hour)
		}))
	cfg.PruneTimeout = config.Field(l, "prune_timeout",
		config.LoadEnvDuration("SESSION_PRUNE_TIMEOUT", cfg.PruneTimeout, func(d time.Duration) error {
			return config.ValidateDuration(d, time.Second, time.Hour)
		}))
	cfg.StatsSchedule = config.Field(l, "stats_schedule",
		config.LoadEnvWithFallback("DB_STATS_SCHEDULE", cfg.StatsSchedule, config.ValidateCronSchedule))

	l.Finish()
	return &cfg
}
