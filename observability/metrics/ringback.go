package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RingbackMetrics tracks marketplace transitions.
type RingbackMetrics struct {
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	toneCount   prometheus.Gauge
	received    prometheus.Counter
}

var (
	ringbackOnce     sync.Once
	ringbackRegistry *RingbackMetrics
)

func newRingbackMetrics() *RingbackMetrics {
	return &RingbackMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rbt_transitions_total",
			Help: "Count of applied transactions by instruction and outcome.",
		}, []string{"instruction", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rbt_transition_duration_seconds",
			Help:    "Latency of transaction application by instruction.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"instruction"}),
		toneCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rbt_tone_count",
			Help: "Number of ring-back-tones created on the platform.",
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rbt_subscription_amount_total",
			Help: "Sum of amounts paid for subscriptions.",
		}),
	}
}

// Ringback returns the process wide collectors, registering them on first use.
func Ringback() *RingbackMetrics {
	ringbackOnce.Do(func() {
		ringbackRegistry = newRingbackMetrics()
		prometheus.MustRegister(
			ringbackRegistry.transitions,
			ringbackRegistry.duration,
			ringbackRegistry.toneCount,
			ringbackRegistry.received,
		)
	})
	return ringbackRegistry
}

// ObserveTransition records the outcome and latency of one transaction. An
// empty outcome is reported as "ok".
func (m *RingbackMetrics) ObserveTransition(instruction, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if instruction == "" {
		instruction = "unknown"
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.transitions.WithLabelValues(instruction, outcome).Inc()
	m.duration.WithLabelValues(instruction).Observe(elapsed.Seconds())
}

func (m *RingbackMetrics) SetToneCount(count uint64) {
	if m == nil {
		return
	}
	m.toneCount.Set(float64(count))
}

func (m *RingbackMetrics) AddSubscriptionAmount(amount uint64) {
	if m == nil {
		return
	}
	m.received.Add(float64(amount))
}
