package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/agvkernel/core/metrics"
)

// PromSink records order lifecycle and fleet events in Prometheus metrics.
type PromSink struct {
	orders     *prometheus.CounterVec
	leadTime   *prometheus.HistogramVec
	rejections prometheus.Counter
	energy     *prometheus.GaugeVec
	procState  *prometheus.GaugeVec
	strategy   *prometheus.CounterVec
}

// NewPromSink registers the sink metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// that are already registered are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agvkernel_order_transitions_total",
			Help: "Transport order state changes by resulting state",
		}, []string{"state", "type"}),
		leadTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agvkernel_order_lead_time_seconds",
			Help:    "Time from order creation to its final state",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"state"}),
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agvkernel_order_rejections_observed_total",
			Help: "Rejections carried by final transport orders",
		}),
		energy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agvkernel_vehicle_energy_level",
			Help: "Last reported energy level in percent",
		}, []string{"vehicle"}),
		procState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agvkernel_vehicle_proc_state",
			Help: "Processing state of a vehicle, 1 for the current state",
		}, []string{"vehicle", "state"}),
		strategy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agvkernel_strategy_events_total",
			Help: "Strategy decisions by strategy and action",
		}, []string{"strategy", "action"}),
	}
	var err error
	if s.orders, err = register(reg, s.orders); err != nil {
		return nil, err
	}
	if s.leadTime, err = register(reg, s.leadTime); err != nil {
		return nil, err
	}
	if s.rejections, err = register(reg, s.rejections); err != nil {
		return nil, err
	}
	if s.energy, err = register(reg, s.energy); err != nil {
		return nil, err
	}
	if s.procState, err = register(reg, s.procState); err != nil {
		return nil, err
	}
	if s.strategy, err = register(reg, s.strategy); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordOrderEvent counts the transition and observes the lead time of final
// orders.
func (s *PromSink) RecordOrderEvent(ev coremetrics.OrderEvent) error {
	if !ev.Created && ev.State == ev.Previous {
		return nil
	}
	s.orders.WithLabelValues(ev.State.String(), ev.Type).Inc()
	if ev.State.IsFinal() && !ev.Created {
		s.leadTime.WithLabelValues(ev.State.String()).Observe(ev.LeadTime.Seconds())
		s.rejections.Add(float64(ev.Rejections))
	}
	return nil
}

// RecordVehicleState exports the energy level and processing state.
func (s *PromSink) RecordVehicleState(ev coremetrics.VehicleStateEvent) error {
	v := ev.Vehicle
	s.energy.WithLabelValues(v.Name).Set(float64(v.EnergyLevel))
	s.procState.DeletePartialMatch(prometheus.Labels{"vehicle": v.Name})
	s.procState.WithLabelValues(v.Name, v.ProcState.String()).Set(1)
	return nil
}

func (s *PromSink) RecordStrategyEvent(ev coremetrics.StrategyEvent) error {
	s.strategy.WithLabelValues(ev.Strategy, ev.Action).Inc()
	return nil
}
