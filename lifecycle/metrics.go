package lifecycle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the lifecycle counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	announcedTotal   prometheus.Counter
	joinsTotal       prometheus.Counter
	leavesTotal      prometheus.Counter
	endedTotal       prometheus.Counter
	sweepsTotal      prometheus.Counter
	stepFailures     *prometheus.CounterVec
	sweepDuration    prometheus.Histogram
	lastSweepExpired prometheus.Gauge
}

// NewMetrics creates the lifecycle metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		announcedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ctfbot",
			Name:      "ctf_announced_total",
			Help:      "Number of CTF events announced.",
		}),
		joinsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ctfbot",
			Name:      "ctf_joins_total",
			Help:      "Number of role grants from marker reactions.",
		}),
		leavesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ctfbot",
			Name:      "ctf_leaves_total",
			Help:      "Number of role revocations from removed marker reactions.",
		}),
		endedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ctfbot",
			Name:      "ctf_ended_total",
			Help:      "Number of CTF events deactivated.",
		}),
		sweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ctfbot",
			Name:      "sweeps_total",
			Help:      "Number of completed cleanup sweeps.",
		}),
		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctfbot",
			Name:      "teardown_step_failures_total",
			Help:      "Number of failed teardown steps by step.",
		}, []string{"step"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ctfbot",
			Name:      "sweep_duration_seconds",
			Help:      "Time spent in a cleanup sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		lastSweepExpired: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ctfbot",
			Name:      "last_sweep_expired_events",
			Help:      "Number of expired events found by the last sweep.",
		}),
	}

	reg.MustRegister(
		m.announcedTotal,
		m.joinsTotal,
		m.leavesTotal,
		m.endedTotal,
		m.sweepsTotal,
		m.stepFailures,
		m.sweepDuration,
		m.lastSweepExpired,
	)
	return m
}

func (m *Metrics) announced() {
	if m != nil {
		m.announcedTotal.Inc()
	}
}

func (m *Metrics) joined() {
	if m != nil {
		m.joinsTotal.Inc()
	}
}

func (m *Metrics) left() {
	if m != nil {
		m.leavesTotal.Inc()
	}
}

func (m *Metrics) ended() {
	if m != nil {
		m.endedTotal.Inc()
	}
}

func (m *Metrics) stepFailed(step string) {
	if m != nil {
		m.stepFailures.WithLabelValues(step).Inc()
	}
}

func (m *Metrics) swept(expired int, took time.Duration) {
	if m != nil {
		m.sweepsTotal.Inc()
		m.sweepDuration.Observe(took.Seconds())
		m.lastSweepExpired.Set(float64(expired))
	}
}
