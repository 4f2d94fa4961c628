package kernel

import "github.com/prometheus/client_golang/prometheus"

var (
	stateGauge         prometheus.Gauge
	transitions        *prometheus.CounterVec
	transitionDuration prometheus.Histogram
	gatedRejections    *prometheus.CounterVec
)

func newCollectors() (prometheus.Gauge, *prometheus.CounterVec, prometheus.Histogram, *prometheus.CounterVec) {
	st := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agvkernel_kernel_state",
		Help: "Current kernel state (0=MODELLING, 1=OPERATING, 2=SHUTDOWN)",
	})
	tr := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agvkernel_kernel_transitions_total",
		Help: "Number of kernel state transitions",
	}, []string{"from", "to"})
	dur := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "agvkernel_kernel_transition_duration_seconds",
		Help:    "Duration of kernel state transitions",
		Buckets: prometheus.DefBuckets,
	})
	gated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agvkernel_kernel_rejected_operations_total",
		Help: "Number of operations rejected because of the kernel state",
	}, []string{"operation"})
	return st, tr, dur, gated
}

func init() {
	stateGauge, transitions, transitionDuration, gatedRejections = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers kernel metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(stateGauge, transitions, transitionDuration, gatedRejections)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	stateGauge, transitions, transitionDuration, gatedRejections = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
