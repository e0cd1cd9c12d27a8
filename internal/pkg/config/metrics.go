package config

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks configuration loading across components.
//
//   - config_load_timestamp{component}: Unix time of the last load
//   - config_validation_errors_total{component,field}
//   - config_fallbacks_total{component,field}
//   - config_fallback_active{component}: 1 while any field runs on its default
type Metrics struct {
	LoadTimestamp         *prometheus.GaugeVec
	ValidationErrorsTotal *prometheus.CounterVec
	FallbacksTotal        *prometheus.CounterVec
	FallbackActive        *prometheus.GaugeVec
}

// NewMetrics registers the configuration metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LoadTimestamp: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "config_load_timestamp",
			Help: "Unix timestamp of the last configuration load",
		}, []string{"component"}),

		ValidationErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "config_validation_errors_total",
			Help: "Total number of configuration validation errors",
		}, []string{"component", "field"}),

		FallbacksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "config_fallbacks_total",
			Help: "Total number of configuration fallbacks to defaults",
		}, []string{"component", "field"}),

		FallbackActive: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "config_fallback_active",
			Help: "1 if any configuration fallback is active for the component, 0 otherwise",
		}, []string{"component"}),
	}
}

// RecordLoadTimestamp sets the load timestamp of component to now.
func (m *Metrics) RecordLoadTimestamp(component string) {
	m.LoadTimestamp.WithLabelValues(component).SetToCurrentTime()
}

// RecordValidationError counts a rejected value.
func (m *Metrics) RecordValidationError(component, field string) {
	m.ValidationErrorsTotal.WithLabelValues(component, field).Inc()
}

// RecordFallback counts a default substituted for a rejected value.
func (m *Metrics) RecordFallback(component, field string) {
	m.FallbacksTotal.WithLabelValues(component, field).Inc()
}

// SetFallbackActive flags whether component runs on any default.
func (m *Metrics) SetFallbackActive(component string, active bool) {
	v := 0.0
	if active {
		v = 1
	}
	m.FallbackActive.WithLabelValues(component).Set(v)
}
