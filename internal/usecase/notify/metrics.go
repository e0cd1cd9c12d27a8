package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the alerting collectors.
type Metrics struct {
	dispatched      *prometheus.CounterVec
	sent            *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	circuitOpen     *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	active          prometheus.Gauge
	channelsEnabled prometheus.Gauge
}

// NewMetrics registers the alerting collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		dispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notification_dispatched_total",
				Help: "Total number of alerts dispatched to a channel",
			},
			[]string{"channel"},
		),
		sent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notification_sent_total",
				Help: "Total number of alerts sent by result",
			},
			[]string{"channel", "status"}, // success|failure
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notification_duration_seconds",
				Help:    "Alert send duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"channel"},
		),
		circuitOpen: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notification_circuit_breaker_open_total",
				Help: "Total number of channel circuit breaker open events",
			},
			[]string{"channel"},
		),
		dropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notification_dropped_total",
				Help: "Total number of dropped alerts",
			},
			[]string{"channel", "reason"}, // pool_full|circuit_open
		),
		active: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "notification_active_goroutines",
				Help: "Alert sends currently in flight",
			},
		),
		channelsEnabled: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "notification_channels_enabled",
				Help: "Number of enabled alert channels",
			},
		),
	}
}

func (m *Metrics) recordResult(channel string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.sent.WithLabelValues(channel, status).Inc()
	m.duration.WithLabelValues(channel).Observe(d.Seconds())
}
