// Package config provides fail-open environment loading for component
// configuration. Invalid values fall back to the default with a warning log
// and a config_fallbacks_total increment instead of stopping the process.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadResult is the outcome of loading one configuration value.
//
// Example:
//
//	result := LoadEnvDuration("SESSION_RETENTION", 90*24*time.Hour, ValidatePositiveDuration)
//	if result.FallbackApplied {
//	    logger.Warn("configuration fallback applied", slog.String("warning", result.Warning))
//	}
type LoadResult[T any] struct {
	Value           T
	Warning         string
	FallbackApplied bool
}

// LoadEnvString loads a string value without validation.
// Unset or empty variables return the default.
func LoadEnvString(envKey, defaultValue string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	return defaultValue
}

// LoadEnvWithFallback loads a string and validates it.
// A value that fails validation is replaced by the default.
func LoadEnvWithFallback(envKey, defaultValue string, validator func(string) error) LoadResult[string] {
	return load(envKey, defaultValue, func(s string) (string, error) { return s, nil }, validator)
}

// LoadEnvDuration loads a time.ParseDuration value.
func LoadEnvDuration(envKey string, defaultValue time.Duration, validator func(time.Duration) error) LoadResult[time.Duration] {
	return load(envKey, defaultValue, time.ParseDuration, validator)
}

// LoadEnvInt loads a base 10 integer.
func LoadEnvInt(envKey string, defaultValue int, validator func(int) error) LoadResult[int] {
	return load(envKey, defaultValue, func(s string) (int, error) {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, fmt.Errorf("invalid integer format")
		}
		return v, nil
	}, validator)
}

// LoadEnvFloat loads a float64.
func LoadEnvFloat(envKey string, defaultValue float64, validator func(float64) error) LoadResult[float64] {
	return load(envKey, defaultValue, func(s string) (float64, error) {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number format")
		}
		return v, nil
	}, validator)
}

// LoadEnvBool loads a boolean accepting the strconv.ParseBool spellings.
func LoadEnvBool(envKey string, defaultValue bool) LoadResult[bool] {
	return load(envKey, defaultValue, func(s string) (bool, error) {
		v, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return false, fmt.Errorf("invalid boolean format, expected 'true' or 'false'")
		}
		return v, nil
	}, nil)
}

func load[T any](envKey string, defaultValue T, parse func(string) (T, error), validator func(T) error) LoadResult[T] {
	raw := os.Getenv(envKey)
	if raw == "" {
		return LoadResult[T]{Value: defaultValue}
	}

	value, err := parse(raw)
	if err == nil && validator != nil {
		err = validator(value)
	}
	if err != nil {
		return LoadResult[T]{
			Value: defaultValue,
			Warning: fmt.Sprintf("Invalid %s='%s': %v, falling back to default '%v'",
				envKey, raw, err, defaultValue),
			FallbackApplied: true,
		}
	}
	return LoadResult[T]{Value: value}
}

// Loader loads the fields of one component and reports every fallback.
// It is not safe for concurrent use; build one per load.
//
// Example:
//
//	l := config.NewLoader("worker", logger, metrics)
//	cfg.PruneSchedule = config.Field(l, "prune_schedule", config.LoadEnvWithFallback("SESSION_PRUNE_SCHEDULE", cfg.PruneSchedule, config.ValidateCronSchedule))
//	l.Finish()
type Loader struct {
	component string
	logger    *slog.Logger
	metrics   *Metrics
	fallbacks []string
}

// NewLoader creates a loader for component. A nil metrics disables counting.
func NewLoader(component string, logger *slog.Logger, metrics *Metrics) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{component: component, logger: logger, metrics: metrics}
}

// Field records a fallback of result under field and returns its value.
func Field[T any](l *Loader, field string, result LoadResult[T]) T {
	if result.FallbackApplied {
		l.fallbacks = append(l.fallbacks, field)
		if l.metrics != nil {
			l.metrics.RecordValidationError(l.component, field)
			l.metrics.RecordFallback(l.component, field)
		}
		l.logger.Warn("Configuration fallback applied",
			slog.String("component", l.component),
			slog.String("field", field),
			slog.String("warning", result.Warning))
	}
	return result.Value
}

// Finish updates the fallback gauge and load timestamp and returns the
// fields that fell back.
func (l *Loader) Finish() []string {
	if l.metrics != nil {
		l.metrics.SetFallbackActive(l.component, len(l.fallbacks) > 0)
		l.metrics.RecordLoadTimestamp(l.component)
	}
	return l.fallbacks
}
