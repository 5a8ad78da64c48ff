package poller

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presencelog",
		Subsystem: "poller",
		Name:      "cycles_total",
		Help:      "Completed poll cycles by result.",
	}, []string{"result"})

	metricTicksSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "presencelog",
		Subsystem: "poller",
		Name:      "ticks_skipped_total",
		Help:      "Ticks skipped because the previous cycle was still running.",
	})

	metricMemberOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presencelog",
		Subsystem: "poller",
		Name:      "member_outcomes_total",
		Help:      "Per-member cycle outcomes.",
	}, []string{"outcome"})

	metricCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "presencelog",
		Subsystem: "poller",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of a poll cycle.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(
		metricCycles,
		metricTicksSkipped,
		metricMemberOutcomes,
		metricCycleDuration,
	)
}
