package eventstream

import "github.com/prometheus/client_golang/prometheus"

var exported *prometheus.CounterVec

func newCollectors() {
	exported = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agvkernel_eventstream_events_total",
		Help: "Kernel events exported to Kafka by outcome",
	}, []string{"result"})
}

func init() {
	newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers the exporter collectors on reg, or on the
// default registerer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(exported)
}

// ResetMetrics replaces the collectors with fresh ones registered on reg.
func ResetMetrics(reg prometheus.Registerer) {
	newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
