package recovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"nexus-voice/internal/domain/entity"
)

// Attempt results used as the "result" label.
const (
	resultRecovered = "recovered"
	resultFailed    = "failed"
	resultPanic     = "panic"
)

// Metrics holds the coordinator's Prometheus collectors.
type Metrics struct {
	attempts *prometheus.CounterVec
	passes   prometheus.Counter
}

// NewMetrics registers the coordinator collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recovery_attempts_total",
				Help: "Recovery attempts by capability and result",
			},
			[]string{"capability", "result"},
		),
		passes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "recovery_loop_passes_total",
				Help: "Completed passes of the automatic recovery loop",
			},
		),
	}
}

func (m *Metrics) observeAttempt(c entity.Capability, result string) {
	m.attempts.WithLabelValues(string(c), result).Inc()
}
