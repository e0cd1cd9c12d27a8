package health

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"nexus-voice/internal/domain/entity"
)

// Recorder exports monitor state to a metrics backend.
type Recorder interface {
	ObserveOutcome(c entity.Capability, o Outcome)
	SetHealthy(c entity.Capability, healthy bool)
	SetRecoveryAttempts(c entity.Capability, n int)
}

type noopRecorder struct{}

func (noopRecorder) ObserveOutcome(entity.Capability, Outcome)  {}
func (noopRecorder) SetHealthy(entity.Capability, bool)         {}
func (noopRecorder) SetRecoveryAttempts(entity.Capability, int) {}

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	requests         *prometheus.CounterVec
	errors           *prometheus.CounterVec
	responseTime     *prometheus.HistogramVec
	healthy          *prometheus.GaugeVec
	recoveryAttempts *prometheus.GaugeVec
}

// NewPrometheusRecorder registers the capability collectors with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capability_requests_total",
				Help: "Total number of calls per capability",
			},
			[]string{"capability"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capability_errors_total",
				Help: "Total number of failed calls per capability and error kind",
			},
			[]string{"capability", "kind"},
		),
		responseTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capability_response_seconds",
				Help:    "Response time of capability calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"capability"},
		),
		healthy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "capability_healthy",
				Help: "Capability health state (1=healthy, 0=unhealthy)",
			},
			[]string{"capability"},
		),
		recoveryAttempts: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "capability_recovery_attempts",
				Help: "Current recovery attempt counter per capability",
			},
			[]string{"capability"},
		),
	}
}

// ObserveOutcome implements Recorder.
func (r *PrometheusRecorder) ObserveOutcome(c entity.Capability, o Outcome) {
	r.requests.WithLabelValues(string(c)).Inc()
	if !o.Success {
		kind := o.ErrorKind
		if kind == entity.KindNone {
			kind = entity.KindUpstreamException
		}
		r.errors.WithLabelValues(string(c), string(kind)).Inc()
	}
	if o.ResponseTime > 0 {
		r.responseTime.WithLabelValues(string(c)).Observe(o.ResponseTime.Seconds())
	}
}

// SetHealthy implements Recorder.
func (r *PrometheusRecorder) SetHealthy(c entity.Capability, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	r.healthy.WithLabelValues(string(c)).Set(v)
}

// SetRecoveryAttempts implements Recorder.
func (r *PrometheusRecorder) SetRecoveryAttempts(c entity.Capability, n int) {
	r.recoveryAttempts.WithLabelValues(string(c)).Set(float64(n))
}
