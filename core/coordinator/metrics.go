package coordinator

import "github.com/prometheus/client_golang/prometheus"

var (
	triggers     *prometheus.CounterVec
	coalesced    prometheus.Counter
	actionErrors prometheus.Counter
)

func newCollectors() (*prometheus.CounterVec, prometheus.Counter, prometheus.Counter) {
	trig := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agvkernel_coordinator_triggers_total",
		Help: "Number of strategy calls requested by the dispatch coordinator",
	}, []string{"action"})
	coal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agvkernel_coordinator_dispatch_coalesced_total",
		Help: "Number of dispatch requests merged into an already queued run",
	})
	errs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agvkernel_coordinator_action_errors_total",
		Help: "Number of failed or panicking coordinator actions",
	})
	return trig, coal, errs
}

func init() {
	triggers, coalesced, actionErrors = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers coordinator metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(triggers, coalesced, actionErrors)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	triggers, coalesced, actionErrors = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
