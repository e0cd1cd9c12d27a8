package synthesis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	evictions   prometheus.Counter
	inFlight    prometheus.Gauge
	attempts    *prometheus.CounterVec
	rejected    prometheus.Counter
	fallbacks   prometheus.Counter
}

// NewMetrics registers the pipeline collectors with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "synthesis_cache_hits_total",
			Help: "Total number of synthesis calls served from the audio cache",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "synthesis_cache_misses_total",
			Help: "Total number of synthesis calls that missed the audio cache",
		}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "synthesis_cache_evictions_total",
			Help: "Total number of audio cache entries evicted for capacity",
		}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "synthesis_inflight",
			Help: "Number of synthesis calls currently admitted by the concurrency gate",
		}),
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "synthesis_attempts_total",
			Help: "Total number of engine attempts by result",
		}, []string{"result"}),
		rejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "synthesis_rejected_total",
			Help: "Total number of synthesis calls rejected by the concurrency gate",
		}),
		fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "synthesis_voice_fallbacks_total",
			Help: "Total number of fallback attempts made with the default voice",
		}),
	}
}
