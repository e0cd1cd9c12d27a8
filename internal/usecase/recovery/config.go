package recovery

import (
	"errors"
	"fmt"
	"time"
)

// Config controls the recovery loop cadence and the timing of one attempt.
type Config struct {
	// Interval between two passes of the automatic loop.
	Interval time.Duration

	// RecoveryDelay is waited between a hook and its probe.
	RecoveryDelay time.Duration

	// SettleDelay is the hook duration used for capabilities without a
	// registered hook.
	SettleDelay time.Duration

	// ProbeTimeout bounds a single probe.
	ProbeTimeout time.Duration
}

// DefaultConfig returns the production recovery timings.
func DefaultConfig() Config {
	return Config{
		Interval:      30 * time.Second,
		RecoveryDelay: 3 * time.Second,
		SettleDelay:   2 * time.Second,
		ProbeTimeout:  30 * time.Second,
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %s", c.Interval))
	}
	if c.RecoveryDelay < 0 {
		errs = append(errs, fmt.Errorf("recovery delay must not be negative, got %s", c.RecoveryDelay))
	}
	if c.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("settle delay must not be negative, got %s", c.SettleDelay))
	}
	if c.ProbeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("probe timeout must be positive, got %s", c.ProbeTimeout))
	}
	return errors.Join(errs...)
}
