package mqtt

import "github.com/prometheus/client_golang/prometheus"

var (
	commandsSent   *prometheus.CounterVec
	ackLatency     prometheus.Histogram
	statusMessages *prometheus.CounterVec
	connectionLost prometheus.Counter
	tokenErrors    prometheus.Counter
)

func newCollectors() {
	commandsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agvkernel_mqtt_commands_total",
		Help: "Commands published to vehicles by kind and outcome",
	}, []string{"kind", "result"})
	ackLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "agvkernel_mqtt_ack_latency_seconds",
		Help:    "Time between publishing a drive order and its acknowledgment",
		Buckets: prometheus.DefBuckets,
	})
	statusMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agvkernel_mqtt_status_messages_total",
		Help: "Vehicle status reports by outcome",
	}, []string{"result"})
	connectionLost = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agvkernel_mqtt_connection_lost_total",
		Help: "Number of lost broker connections",
	})
	tokenErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agvkernel_mqtt_token_errors_total",
		Help: "Failed OAuth2 token requests for broker credentials",
	})
}

func init() {
	newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers the MQTT collectors on reg, or on the default
// registerer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(commandsSent, ackLatency, statusMessages, connectionLost, tokenErrors)
}

// ResetMetrics replaces the collectors with fresh ones registered on reg.
// Tests use it to observe counters in isolation.
func ResetMetrics(reg prometheus.Registerer) {
	newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
