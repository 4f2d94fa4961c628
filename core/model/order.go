package model

import (
	"maps"
	"slices"
	"time"
)

// OperationNop is the operation of a drive order that only moves the vehicle.
const OperationNop = "NOP"

// Destination is the target of a single drive order.
type Destination struct {
	Location   string            `json:"location"`
	Operation  string            `json:"operation"`
	Properties map[string]string `json:"properties,omitempty"`
}

// DriveOrder moves a vehicle to one destination and performs an operation there.
type DriveOrder struct {
	Destination Destination     `json:"destination"`
	Route       []string        `json:"route,omitempty"`
	RouteCost   int64           `json:"route_cost"`
	State       DriveOrderState `json:"state"`
}

// Clone returns a deep copy of d.
func (d DriveOrder) Clone() DriveOrder {
	d.Destination.Properties = maps.Clone(d.Destination.Properties)
	d.Route = slices.Clone(d.Route)
	return d
}

// Rejection records that a vehicle could not process an order.
type Rejection struct {
	Vehicle   string    `json:"vehicle"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// TransportOrder is a unit of work for a single vehicle.
type TransportOrder struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Type              string            `json:"type"`
	DriveOrders       []DriveOrder      `json:"drive_orders"`
	CurrentDriveOrder int               `json:"current_drive_order"`
	State             OrderState        `json:"state"`
	WithdrawalPending bool              `json:"withdrawal_pending"`
	// DisableVehicle takes the processing vehicle out of service when the
	// pending withdrawal resolves.
	DisableVehicle    bool              `json:"disable_vehicle,omitempty"`
	Deadline          time.Time         `json:"deadline"`
	CreationTime      time.Time         `json:"creation_time"`
	FinishedTime      time.Time         `json:"finished_time"`
	IntendedVehicle   string            `json:"intended_vehicle,omitempty"`
	ProcessingVehicle string            `json:"processing_vehicle,omitempty"`
	Dependencies      []string          `json:"dependencies,omitempty"`
	Rejections        []Rejection       `json:"rejections,omitempty"`
	WrappingSequence  string            `json:"wrapping_sequence,omitempty"`
	Dispensable       bool              `json:"dispensable"`
	Properties        map[string]string `json:"properties,omitempty"`
}

// Clone returns a deep copy of o.
func (o TransportOrder) Clone() TransportOrder {
	drives := make([]DriveOrder, len(o.DriveOrders))
	for i, d := range o.DriveOrders {
		drives[i] = d.Clone()
	}
	o.DriveOrders = drives
	o.Dependencies = slices.Clone(o.Dependencies)
	o.Rejections = slices.Clone(o.Rejections)
	o.Properties = maps.Clone(o.Properties)
	return o
}

// CurrentDrive returns the drive order being executed, if any.
func (o TransportOrder) CurrentDrive() (DriveOrder, bool) {
	if o.CurrentDriveOrder < 0 || o.CurrentDriveOrder >= len(o.DriveOrders) {
		return DriveOrder{}, false
	}
	return o.DriveOrders[o.CurrentDriveOrder], true
}

// HasNextDrive reports whether another drive order follows the current one.
func (o TransportOrder) HasNextDrive() bool {
	return o.CurrentDriveOrder+1 < len(o.DriveOrders)
}

// FutureDriveOrders returns the current and all following drive orders.
func (o TransportOrder) FutureDriveOrders() []DriveOrder {
	start := o.CurrentDriveOrder
	if start < 0 {
		start = 0
	}
	if start >= len(o.DriveOrders) {
		return nil
	}
	return o.DriveOrders[start:]
}

// OrderSequence groups transport orders that one vehicle processes in order.
type OrderSequence struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Type              string            `json:"type"`
	Orders            []string          `json:"orders"`
	FinishedIndex     int               `json:"finished_index"`
	Complete          bool              `json:"complete"`
	Finished          bool              `json:"finished"`
	FailureFatal      bool              `json:"failure_fatal"`
	IntendedVehicle   string            `json:"intended_vehicle,omitempty"`
	ProcessingVehicle string            `json:"processing_vehicle,omitempty"`
	CreationTime      time.Time         `json:"creation_time"`
	FinishedTime      time.Time         `json:"finished_time"`
	Properties        map[string]string `json:"properties,omitempty"`
}

// Clone returns a deep copy of s.
func (s OrderSequence) Clone() OrderSequence {
	s.Orders = slices.Clone(s.Orders)
	s.Properties = maps.Clone(s.Properties)
	return s
}

// NextUnfinishedOrder returns the name of the first order after FinishedIndex.
func (s OrderSequence) NextUnfinishedOrder() (string, bool) {
	i := s.FinishedIndex + 1
	if i < 0 || i >= len(s.Orders) {
		return "", false
	}
	return s.Orders[i], true
}

// Contains reports whether the sequence holds the named order.
func (s OrderSequence) Contains(order string) bool {
	return slices.Contains(s.Orders, order)
}
