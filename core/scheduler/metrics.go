package scheduler

import "github.com/prometheus/client_golang/prometheus"

var (
	allocated prometheus.Gauge
	conflicts prometheus.Counter
)

func newCollectors() (prometheus.Gauge, prometheus.Counter) {
	a := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agvkernel_scheduler_allocated_resources",
		Help: "Number of resources currently allocated",
	})
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agvkernel_scheduler_conflicts_total",
		Help: "Number of rejected allocation requests",
	})
	return a, c
}

func init() {
	allocated, conflicts = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers scheduler metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(allocated, conflicts)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	allocated, conflicts = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
