package model

import "fmt"

// OrderState is the lifecycle state of a transport order.
//
//	RAW ──> ACTIVE ──> DISPATCHABLE ──> BEING_PROCESSED ──┬──> FINISHED
//	 │                      ^                             └──> FAILED
//	 └──────────────────────┘
//
// Every non-final state may additionally move to WITHDRAWN.
type OrderState int

const (
	OrderRaw OrderState = iota
	OrderActive
	OrderDispatchable
	OrderBeingProcessed
	OrderWithdrawn
	OrderFailed
	OrderFinished
)

var orderStateNames = map[OrderState]string{
	OrderRaw:            "RAW",
	OrderActive:         "ACTIVE",
	OrderDispatchable:   "DISPATCHABLE",
	OrderBeingProcessed: "BEING_PROCESSED",
	OrderWithdrawn:      "WITHDRAWN",
	OrderFailed:         "FAILED",
	OrderFinished:       "FINISHED",
}

var orderTransitions = map[OrderState][]OrderState{
	OrderRaw:            {OrderActive, OrderDispatchable, OrderWithdrawn},
	OrderActive:         {OrderDispatchable, OrderWithdrawn},
	OrderDispatchable:   {OrderBeingProcessed, OrderWithdrawn},
	OrderBeingProcessed: {OrderFinished, OrderFailed, OrderWithdrawn},
}

func (s OrderState) String() string {
	if n, ok := orderStateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// IsTerminal reports whether s is FINISHED or FAILED.
func (s OrderState) IsTerminal() bool {
	return s == OrderFinished || s == OrderFailed
}

// IsFinal reports whether no further transition out of s exists. WITHDRAWN is
// final but not terminal.
func (s OrderState) IsFinal() bool {
	return s.IsTerminal() || s == OrderWithdrawn
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s OrderState) CanTransitionTo(next OrderState) bool {
	for _, n := range orderTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

func (s OrderState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *OrderState) UnmarshalText(b []byte) error {
	return parseEnum(orderStateNames, string(b), s, "order state")
}

// DriveOrderState tracks the progress of a single drive order.
type DriveOrderState int

const (
	DrivePristine DriveOrderState = iota
	DriveTravelling
	DriveOperating
	DriveFinished
	DriveFailed
)

var driveStateNames = map[DriveOrderState]string{
	DrivePristine:   "PRISTINE",
	DriveTravelling: "TRAVELLING",
	DriveOperating:  "OPERATING",
	DriveFinished:   "FINISHED",
	DriveFailed:     "FAILED",
}

func (s DriveOrderState) String() string {
	if n, ok := driveStateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

func (s DriveOrderState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *DriveOrderState) UnmarshalText(b []byte) error {
	return parseEnum(driveStateNames, string(b), s, "drive order state")
}

// ProcState is a vehicle's processing state with respect to transport orders.
type ProcState int

const (
	ProcIdle ProcState = iota
	ProcAwaitingOrder
	ProcProcessingOrder
	ProcUnavailable
)

var procStateNames = map[ProcState]string{
	ProcIdle:            "IDLE",
	ProcAwaitingOrder:   "AWAITING_ORDER",
	ProcProcessingOrder: "PROCESSING_ORDER",
	ProcUnavailable:     "UNAVAILABLE",
}

func (s ProcState) String() string {
	if n, ok := procStateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

func (s ProcState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *ProcState) UnmarshalText(b []byte) error {
	return parseEnum(procStateNames, string(b), s, "processing state")
}

// VehicleState is the state reported by a vehicle's communication adapter.
type VehicleState int

const (
	VehicleUnknown VehicleState = iota
	VehicleUnavailable
	VehicleError
	VehicleIdle
	VehicleExecuting
	VehicleCharging
)

var vehicleStateNames = map[VehicleState]string{
	VehicleUnknown:     "UNKNOWN",
	VehicleUnavailable: "UNAVAILABLE",
	VehicleError:       "ERROR",
	VehicleIdle:        "IDLE",
	VehicleExecuting:   "EXECUTING",
	VehicleCharging:    "CHARGING",
}

func (s VehicleState) String() string {
	if n, ok := vehicleStateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

func (s VehicleState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *VehicleState) UnmarshalText(b []byte) error {
	return parseEnum(vehicleStateNames, string(b), s, "vehicle state")
}

// IntegrationLevel tells the kernel how far a vehicle takes part in operation.
// The zero value is invalid so an unset level can be told apart from an
// explicit one.
type IntegrationLevel int

const (
	IntegrationUnset IntegrationLevel = iota
	IntegrationToBeIgnored
	IntegrationToBeNoticed
	IntegrationToBeRespected
	IntegrationToBeUtilized
)

var integrationNames = map[IntegrationLevel]string{
	IntegrationToBeIgnored:   "TO_BE_IGNORED",
	IntegrationToBeNoticed:   "TO_BE_NOTICED",
	IntegrationToBeRespected: "TO_BE_RESPECTED",
	IntegrationToBeUtilized:  "TO_BE_UTILIZED",
}

func (l IntegrationLevel) String() string {
	if n, ok := integrationNames[l]; ok {
		return n
	}
	return "UNSET"
}

func (l IntegrationLevel) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *IntegrationLevel) UnmarshalText(b []byte) error {
	if len(b) == 0 || string(b) == "UNSET" {
		*l = IntegrationUnset
		return nil
	}
	return parseEnum(integrationNames, string(b), l, "integration level")
}

// EnergyState is derived from a vehicle's energy level and its thresholds.
type EnergyState int

const (
	EnergyGood EnergyState = iota
	EnergyDegraded
	EnergyCritical
)

func (s EnergyState) String() string {
	switch s {
	case EnergyGood:
		return "GOOD"
	case EnergyDegraded:
		return "DEGRADED"
	case EnergyCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// PointType classifies a point of the topology.
type PointType int

const (
	PointHalt PointType = iota
	PointPark
	PointReport
)

var pointTypeNames = map[PointType]string{
	PointHalt:   "HALT_POSITION",
	PointPark:   "PARK_POSITION",
	PointReport: "REPORT_POSITION",
}

func (t PointType) String() string {
	if n, ok := pointTypeNames[t]; ok {
		return n
	}
	return "UNKNOWN"
}

func (t PointType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *PointType) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = PointHalt
		return nil
	}
	return parseEnum(pointTypeNames, string(b), t, "point type")
}

// ReroutingType selects how aggressively a vehicle is rerouted.
type ReroutingType int

const (
	RerouteRegular ReroutingType = iota
	RerouteForced
)

var reroutingTypeNames = map[ReroutingType]string{
	RerouteRegular: "REGULAR",
	RerouteForced:  "FORCED",
}

func (t ReroutingType) String() string {
	if t == RerouteForced {
		return "FORCED"
	}
	return "REGULAR"
}

func (t ReroutingType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *ReroutingType) UnmarshalText(b []byte) error {
	return parseEnum(reroutingTypeNames, string(b), t, "rerouting type")
}

func parseEnum[T comparable](names map[T]string, s string, out *T, what string) error {
	for k, v := range names {
		if v == s {
			*out = k
			return nil
		}
	}
	return fmt.Errorf("unknown %s %q", what, s)
}

// KernelState is the operating mode of the kernel.
type KernelState int

const (
	KernelModelling KernelState = iota
	KernelOperating
	KernelShutdown
)

var kernelStateNames = map[KernelState]string{
	KernelModelling: "MODELLING",
	KernelOperating: "OPERATING",
	KernelShutdown:  "SHUTDOWN",
}

func (s KernelState) String() string {
	if n, ok := kernelStateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

func (s KernelState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *KernelState) UnmarshalText(b []byte) error {
	return parseEnum(kernelStateNames, string(b), s, "kernel state")
}
