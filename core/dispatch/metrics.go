package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	dispatchRuns     prometheus.Counter
	dispatchDuration prometheus.Histogram
	assignments      prometheus.Counter
	solverFallbacks  prometheus.Counter
	withdrawals      *prometheus.CounterVec
	reroutes         *prometheus.CounterVec
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Counter, prometheus.Histogram, prometheus.Counter, prometheus.Counter, *prometheus.CounterVec, *prometheus.CounterVec) {
	runs := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agvkernel_dispatch_runs_total",
			Help: "Number of dispatch runs",
		},
	)
	dur := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agvkernel_dispatch_duration_seconds",
			Help:    "Duration of dispatch runs",
			Buckets: prometheus.DefBuckets,
		},
	)
	asn := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agvkernel_dispatch_assignments_total",
			Help: "Number of transport orders assigned to vehicles",
		},
	)
	fb := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agvkernel_dispatch_solver_fallbacks_total",
			Help: "Number of LP assignment failures answered by the greedy solver",
		},
	)
	wd := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agvkernel_dispatch_withdrawals_total",
			Help: "Number of transport order withdrawals",
		},
		[]string{"kind"},
	)
	rr := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agvkernel_dispatch_reroutes_total",
			Help: "Number of successful reroutes",
		},
		[]string{"kind"},
	)
	return runs, dur, asn, fb, wd, rr
}

func init() {
	dispatchRuns, dispatchDuration, assignments, solverFallbacks, withdrawals, reroutes = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(dispatchRuns, dispatchDuration, assignments, solverFallbacks, withdrawals, reroutes)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	dispatchRuns, dispatchDuration, assignments, solverFallbacks, withdrawals, reroutes = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
