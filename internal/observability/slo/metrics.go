package slo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"nexus-voice/internal/domain/entity"
	"nexus-voice/internal/resilience/health"
)

// SLO targets define the service level objectives per capability.
const (
	// AvailabilitySLO is the target success percentage of calls against a capability.
	AvailabilitySLO = 99.0

	// LatencySLO is the target average response time in seconds.
	LatencySLO = 2.0

	// MinSamples is the number of calls required before a capability can breach.
	MinSamples = 20
)

// SLO tracking metrics, refreshed on every health pass.
var (
	// SLOAvailability tracks the success ratio (0-1) of each capability.
	SLOAvailability = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slo_availability_ratio",
			Help: "Current success ratio (0-1) per capability, target: 0.99",
		},
		[]string{"capability"},
	)

	// SLOLatency tracks the windowed average response time in seconds.
	SLOLatency = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slo_latency_avg_seconds",
			Help: "Windowed average response time in seconds per capability, target: 2.0",
		},
		[]string{"capability"},
	)

	// SLOBreached is 1 while a capability misses one of its targets.
	SLOBreached = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slo_breached",
			Help: "1 if the capability currently misses its SLO, 0 otherwise",
		},
		[]string{"capability"},
	)
)

// Breached reports whether m misses a target. Capabilities with fewer than
// MinSamples calls never breach.
func Breached(m health.CapabilityMetrics) bool {
	if m.TotalRequests < MinSamples {
		return false
	}
	return m.SuccessRate < AvailabilitySLO || m.AvgResponseTime.Seconds() > LatencySLO
}

// Update refreshes the SLO gauges from a metrics snapshot and returns the
// capabilities currently in breach.
//
// Example usage:
//
//	breached := slo.Update(monitor.AllMetrics())
func Update(snapshot map[entity.Capability]health.CapabilityMetrics) []entity.Capability {
	var breached []entity.Capability
	for _, c := range entity.AllCapabilities() {
		m, ok := snapshot[c]
		if !ok {
			continue
		}
		label := string(c)
		SLOAvailability.WithLabelValues(label).Set(m.SuccessRate / 100)
		SLOLatency.WithLabelValues(label).Set(m.AvgResponseTime.Seconds())

		if Breached(m) {
			SLOBreached.WithLabelValues(label).Set(1)
			breached = append(breached, c)
		} else {
			SLOBreached.WithLabelValues(label).Set(0)
		}
	}
	return breached
}
