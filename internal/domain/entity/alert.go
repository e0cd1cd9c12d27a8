package entity

import "time"

// Alert describes a capability changing health state.
type Alert struct {
	Capability Capability
	// Healthy is the new state.
	Healthy bool
	// ConsecutiveFailures and ErrorKinds are the monitor counters when
	// the change was observed.
	ConsecutiveFailures int
	ErrorKinds          map[string]int64
	RecoveryAttempts    int
	MaxRecoveryAttempts int
	At                  time.Time
}

// Summary is a one line description of the alert.
func (a *Alert) Summary() string {
	if a.Healthy {
		return string(a.Capability) + " recovered"
	}
	return string(a.Capability) + " is unhealthy"
}

// Validate checks the fields every channel renders.
func (a *Alert) Validate() error {
	if !a.Capability.Valid() {
		return &ValidationError{Field: "capability", Message: "is unknown"}
	}
	if a.At.IsZero() {
		return &ValidationError{Field: "at", Message: "is required"}
	}
	return nil
}
