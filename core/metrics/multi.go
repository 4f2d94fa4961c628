package metrics

import "errors"

// MultiSink fans events out to multiple sinks. Every sink is called even when
// an earlier one fails; the errors are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordOrderEvent(ev OrderEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordOrderEvent(ev))
	}
	return errors.Join(errs...)
}

// RecordVehicleState forwards vehicle snapshots to the sinks that support them.
func (m *MultiSink) RecordVehicleState(ev VehicleStateEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(VehicleStateRecorder); ok {
			errs = append(errs, rec.RecordVehicleState(ev))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordKernelState(ev KernelStateEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(KernelStateRecorder); ok {
			errs = append(errs, rec.RecordKernelState(ev))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordStrategyEvent(ev StrategyEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(StrategyRecorder); ok {
			errs = append(errs, rec.RecordStrategyEvent(ev))
		}
	}
	return errors.Join(errs...)
}
