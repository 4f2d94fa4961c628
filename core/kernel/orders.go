package kernel

import (
	"time"

	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/core/orderpool"
)

func (k *Kernel) operating(op string) error {
	return k.require(op, model.KernelOperating)
}

// CreateTransportOrder creates a RAW order.
func (k *Kernel) CreateTransportOrder(spec orderpool.TransportOrderSpec) (model.TransportOrder, error) {
	if err := k.operating("create transport order"); err != nil {
		return model.TransportOrder{}, err
	}
	return k.pool.CreateTransportOrder(spec)
}

// ActivateTransportOrder activates a RAW order and requests a dispatch run.
func (k *Kernel) ActivateTransportOrder(name string) (model.TransportOrder, error) {
	if err := k.operating("activate transport order"); err != nil {
		return model.TransportOrder{}, err
	}
	o, err := k.pool.ActivateTransportOrder(name)
	if err != nil {
		return model.TransportOrder{}, err
	}
	k.coord.ScheduleDispatch()
	return o, nil
}

// WithdrawTransportOrder withdraws an order through the dispatcher.
func (k *Kernel) WithdrawTransportOrder(name string, immediate, disableVehicle bool) error {
	s, _, err := k.strategies("withdraw transport order")
	if err != nil {
		return err
	}
	if _, err := k.pool.TransportOrder(name); err != nil {
		return err
	}
	return s.Dispatcher.WithdrawOrder(name, immediate, disableVehicle)
}

// WithdrawByVehicle withdraws the order processed by vehicle.
func (k *Kernel) WithdrawByVehicle(vehicle string, immediate, disableVehicle bool) error {
	s, _, err := k.strategies("withdraw by vehicle")
	if err != nil {
		return err
	}
	if _, err := k.plant.Vehicle(vehicle); err != nil {
		return err
	}
	return s.Dispatcher.WithdrawByVehicle(vehicle, immediate, disableVehicle)
}

func (k *Kernel) CreateOrderSequence(spec orderpool.OrderSequenceSpec) (model.OrderSequence, error) {
	if err := k.operating("create order sequence"); err != nil {
		return model.OrderSequence{}, err
	}
	return k.pool.CreateOrderSequence(spec)
}

// SetOrderSequenceComplete marks the sequence complete. A sequence that
// finishes as a result frees its vehicle, so a dispatch run is requested.
func (k *Kernel) SetOrderSequenceComplete(name string) error {
	if err := k.operating("complete order sequence"); err != nil {
		return err
	}
	if err := k.pool.SetOrderSequenceComplete(name); err != nil {
		return err
	}
	k.coord.ScheduleDispatch()
	return nil
}

func (k *Kernel) TransportOrder(name string) (model.TransportOrder, error) {
	if err := k.operating("query transport order"); err != nil {
		return model.TransportOrder{}, err
	}
	return k.pool.TransportOrder(name)
}

// TransportOrders returns the orders matching filter, oldest first.
func (k *Kernel) TransportOrders(filter func(model.TransportOrder) bool) ([]model.TransportOrder, error) {
	if err := k.operating("query transport orders"); err != nil {
		return nil, err
	}
	return k.pool.TransportOrders(filter), nil
}

func (k *Kernel) OrderSequence(name string) (model.OrderSequence, error) {
	if err := k.operating("query order sequence"); err != nil {
		return model.OrderSequence{}, err
	}
	return k.pool.OrderSequence(name)
}

func (k *Kernel) OrderSequences() ([]model.OrderSequence, error) {
	if err := k.operating("query order sequences"); err != nil {
		return nil, err
	}
	return k.pool.OrderSequences(), nil
}

func (k *Kernel) AddDependency(order, dependency string) error {
	if err := k.operating("add dependency"); err != nil {
		return err
	}
	return k.pool.AddDependency(order, dependency)
}

// RemoveDependency drops a dependency and requests a dispatch run, since the
// order may have become dispatchable.
func (k *Kernel) RemoveDependency(order, dependency string) error {
	if err := k.operating("remove dependency"); err != nil {
		return err
	}
	if err := k.pool.RemoveDependency(order, dependency); err != nil {
		return err
	}
	k.coord.ScheduleDispatch()
	return nil
}

func (k *Kernel) UpdateOrderDeadline(order string, deadline time.Time) error {
	if err := k.operating("update order deadline"); err != nil {
		return err
	}
	return k.pool.SetDeadline(order, deadline)
}

func (k *Kernel) UpdateIntendedVehicle(order, vehicle string) error {
	if err := k.operating("update intended vehicle"); err != nil {
		return err
	}
	if err := k.pool.SetIntendedVehicle(order, vehicle); err != nil {
		return err
	}
	k.coord.ScheduleDispatch()
	return nil
}

// DispatchVehicle asks the dispatcher to look for work for one vehicle.
func (k *Kernel) DispatchVehicle(vehicle string) error {
	s, _, err := k.strategies("dispatch vehicle")
	if err != nil {
		return err
	}
	if _, err := k.plant.Vehicle(vehicle); err != nil {
		return err
	}
	s.Dispatcher.DispatchVehicle(vehicle)
	return nil
}

// ReleaseVehicle frees all resources and order bindings of vehicle.
func (k *Kernel) ReleaseVehicle(vehicle string) error {
	s, _, err := k.strategies("release vehicle")
	if err != nil {
		return err
	}
	return s.Dispatcher.ReleaseVehicle(vehicle)
}

// RerouteVehicle recomputes the routes of the vehicle's current order.
func (k *Kernel) RerouteVehicle(vehicle string, kind model.ReroutingType) error {
	s, _, err := k.strategies("reroute vehicle")
	if err != nil {
		return err
	}
	return s.Dispatcher.Reroute(vehicle, kind)
}
