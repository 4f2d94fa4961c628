package orderpool

import "github.com/prometheus/client_golang/prometheus"

var (
	ordersCreated     prometheus.Counter
	ordersRemoved     prometheus.Counter
	orderTransitions  *prometheus.CounterVec
	sequencesFinished prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Counter, prometheus.Counter, *prometheus.CounterVec, prometheus.Counter) {
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agvkernel_transport_orders_created_total",
		Help: "Number of transport orders created",
	})
	removed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agvkernel_transport_orders_removed_total",
		Help: "Number of transport orders removed from the pool",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agvkernel_transport_order_transitions_total",
		Help: "Number of transport order state transitions by target state",
	}, []string{"state"})
	finished := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agvkernel_order_sequences_finished_total",
		Help: "Number of order sequences marked finished",
	})
	return created, removed, transitions, finished
}

func init() {
	ordersCreated, ordersRemoved, orderTransitions, sequencesFinished = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers pool metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(ordersCreated, ordersRemoved, orderTransitions, sequencesFinished)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	ordersCreated, ordersRemoved, orderTransitions, sequencesFinished = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
