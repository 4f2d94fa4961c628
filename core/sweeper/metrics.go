package sweeper

import "github.com/prometheus/client_golang/prometheus"

var (
	sweepRuns     prometheus.Counter
	sweepFailures prometheus.Counter
	sweepDuration prometheus.Histogram
	removed       *prometheus.CounterVec
)

func newCollectors() (prometheus.Counter, prometheus.Counter, prometheus.Histogram, *prometheus.CounterVec) {
	runs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agvkernel_sweeper_runs_total",
		Help: "Number of order retention sweeps",
	})
	fails := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agvkernel_sweeper_failures_total",
		Help: "Number of sweeps with at least one failed removal",
	})
	dur := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "agvkernel_sweeper_duration_seconds",
		Help:    "Duration of order retention sweeps",
		Buckets: prometheus.DefBuckets,
	})
	rem := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agvkernel_sweeper_removed_total",
		Help: "Number of entities removed by the sweeper",
	}, []string{"kind"})
	return runs, fails, dur, rem
}

func init() {
	sweepRuns, sweepFailures, sweepDuration, removed = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers sweeper metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(sweepRuns, sweepFailures, sweepDuration, removed)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	sweepRuns, sweepFailures, sweepDuration, removed = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
