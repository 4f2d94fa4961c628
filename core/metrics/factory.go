package metrics

import (
	"fmt"

	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/factory"
)

// sinks maps sink types such as "prometheus" or "influx" to constructors.
// Backends register themselves from init.
var sinks = factory.NewRegistry[MetricsSink]("metrics sink")

// RegisterMetricsSink makes a sink type available to NewMetricsSink.
func RegisterMetricsSink(typ string, f factory.Factory[MetricsSink]) error {
	return sinks.Register(typ, f)
}

// SinkTypes lists the registered sink types.
func SinkTypes() []string { return sinks.Types() }

// NewMetricsSink builds the sink that receives the kernel's order, vehicle
// and strategy events. Entries of type "none" are skipped, no-op sinks are
// dropped and every other type may appear once. Without a remaining sink the
// result is a NopSink; several are combined in a MultiSink.
func NewMetricsSink(cfgs []factory.ModuleConfig) (MetricsSink, error) {
	seen := make(map[string]bool, len(cfgs))
	var out []MetricsSink
	for i, c := range cfgs {
		if c.Type == "none" {
			continue
		}
		if seen[c.Type] {
			return nil, errs.NewIllegalArgumentError("metrics.sinks", fmt.Sprintf("sink type %q is configured more than once", c.Type))
		}
		seen[c.Type] = true
		s, err := sinks.Create(c)
		if err != nil {
			return nil, fmt.Errorf("metrics sink %d: %w", i, err)
		}
		if _, nop := s.(NopSink); nop {
			continue
		}
		out = append(out, s)
	}
	switch len(out) {
	case 0:
		return NopSink{}, nil
	case 1:
		return out[0], nil
	}
	return NewMultiSink(out...), nil
}
