package metrics

import (
	"time"

	"github.com/kilianp07/agvkernel/core/model"
)

// OrderEvent describes a transport order state change.
type OrderEvent struct {
	Order       string
	Type        string
	State       model.OrderState
	Previous    model.OrderState
	Created     bool
	Vehicle     string
	Sequence    string
	DriveOrders int
	Rejections  int
	Dispensable bool
	// LeadTime is the time from creation to a final state. It is zero
	// until the order is final.
	LeadTime time.Duration
	Time     time.Time
}

// MetricsSink records transport order lifecycle events.
type MetricsSink interface {
	RecordOrderEvent(ev OrderEvent) error
}

// VehicleStateEvent is a snapshot of a vehicle after a change.
type VehicleStateEvent struct {
	Vehicle model.Vehicle
	Time    time.Time
}

// VehicleStateRecorder records vehicle snapshots.
type VehicleStateRecorder interface {
	RecordVehicleState(ev VehicleStateEvent) error
}

// KernelStateEvent captures a finished kernel mode transition.
type KernelStateEvent struct {
	Old  model.KernelState
	New  model.KernelState
	Time time.Time
}

// KernelStateRecorder records kernel mode transitions.
type KernelStateRecorder interface {
	RecordKernelState(ev KernelStateEvent) error
}

// StrategyEvent records a notable strategy decision such as a solver
// fallback.
type StrategyEvent struct {
	Strategy string
	Action   string
	Error    string
	Time     time.Time
}

// StrategyRecorder records strategy decisions.
type StrategyRecorder interface {
	RecordStrategyEvent(ev StrategyEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordOrderEvent(OrderEvent) error          { return nil }
func (NopSink) RecordVehicleState(VehicleStateEvent) error { return nil }
func (NopSink) RecordKernelState(KernelStateEvent) error   { return nil }
func (NopSink) RecordStrategyEvent(StrategyEvent) error    { return nil }
