package statecache

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheWrites prometheus.Counter
	cacheErrors prometheus.Counter
)

func newCollectors() {
	cacheWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agvkernel_statecache_writes_total",
		Help: "Vehicle and order snapshots written to the state cache",
	})
	cacheErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agvkernel_statecache_flush_errors_total",
		Help: "State cache flushes that failed",
	})
}

func init() {
	newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers the state cache collectors on reg, or on the
// default registerer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(cacheWrites, cacheErrors)
}

// ResetMetrics replaces the collectors with fresh ones registered on reg.
func ResetMetrics(reg prometheus.Registerer) {
	newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
