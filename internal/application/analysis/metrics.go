package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors updated by sync cycles. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	cycles   *prometheus.CounterVec
	entries  *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "navigate",
			Subsystem: "analysis",
			Name:      "sync_cycles_total",
			Help:      "Sync cycles by outcome (ran, contention, error).",
		}, []string{"outcome"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "navigate",
			Subsystem: "analysis",
			Name:      "queue_entries_total",
			Help:      "Analysis queue entries processed by terminal status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "navigate",
			Subsystem: "analysis",
			Name:      "sync_cycle_duration_seconds",
			Help:      "Wall time of sync cycles that acquired the lock.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.cycles, m.entries, m.duration)
	}
	return m
}

func (m *Metrics) cycle(outcome string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
}

func (m *Metrics) entry(status string) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(status).Inc()
}

func (m *Metrics) observe(seconds float64) {
	if m == nil {
		return
	}
	m.duration.Observe(seconds)
}
