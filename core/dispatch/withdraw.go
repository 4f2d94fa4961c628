package dispatch

import (
	"fmt"

	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/model"
)

// WithdrawOrder withdraws an order and tells its vehicle, if any, to stop.
// An immediate withdrawal releases every resource of the vehicle except its
// current point. With disableVehicle the vehicle becomes UNAVAILABLE once the
// withdrawal completes and is lowered to TO_BE_RESPECTED so it gets no
// further orders.
func (d *Dispatcher) WithdrawOrder(order string, immediate, disableVehicle bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.withdraw(order, immediate, disableVehicle)
}

func (d *Dispatcher) withdraw(order string, immediate, disableVehicle bool) error {
	o, err := d.deps.Pool.TransportOrder(order)
	if err != nil {
		return err
	}
	vehicle := o.ProcessingVehicle
	withdrawn, err := d.deps.Pool.MarkWithdrawal(order, immediate, disableVehicle)
	if err != nil {
		return err
	}
	withdrawals.WithLabelValues(withdrawalKind(immediate)).Inc()
	if vehicle == "" {
		return nil
	}
	if ctrl, err := d.deps.Controllers.Controller(vehicle); err == nil {
		if err := ctrl.AbortDriveOrder(d.ctx, immediate); err != nil {
			d.log.Warnf("abort drive order on %s: %v", vehicle, err)
		}
	}
	if withdrawn {
		if immediate {
			if err := d.releaseAhead(vehicle); err != nil {
				return err
			}
		}
		st := model.ProcAwaitingOrder
		if disableVehicle {
			st = model.ProcUnavailable
		}
		if err := d.deps.Plant.SetVehicleProcState(vehicle, st); err != nil {
			return err
		}
	}
	if disableVehicle {
		return d.deps.Plant.SetVehicleIntegrationLevel(vehicle, model.IntegrationToBeRespected)
	}
	return nil
}

// releaseAhead frees the vehicle's resources and keeps only its current
// point allocated.
func (d *Dispatcher) releaseAhead(vehicle string) error {
	if d.deps.Scheduler == nil {
		return nil
	}
	v, err := d.deps.Plant.Vehicle(vehicle)
	if err != nil {
		return err
	}
	d.deps.Scheduler.FreeAll(vehicle)
	var held []string
	if v.CurrentPosition != "" {
		if err := d.deps.Scheduler.Allocate(vehicle, []string{v.CurrentPosition}); err != nil {
			d.log.Warnf("allocate %s for %s: %v", v.CurrentPosition, vehicle, err)
		} else {
			held = []string{v.CurrentPosition}
		}
	}
	return d.deps.Plant.SetVehicleAllocatedResources(vehicle, held)
}

func withdrawalKind(immediate bool) string {
	if immediate {
		return "immediate"
	}
	return "graceful"
}

// WithdrawByVehicle withdraws the order the vehicle is processing.
func (d *Dispatcher) WithdrawByVehicle(vehicle string, immediate, disableVehicle bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.deps.Plant.Vehicle(vehicle)
	if err != nil {
		return err
	}
	if v.TransportOrder != "" {
		return d.withdraw(v.TransportOrder, immediate, disableVehicle)
	}
	if !disableVehicle {
		return nil
	}
	if err := d.deps.Plant.SetVehicleProcState(vehicle, model.ProcUnavailable); err != nil {
		return err
	}
	return d.deps.Plant.SetVehicleIntegrationLevel(vehicle, model.IntegrationToBeRespected)
}

// ReleaseVehicle withdraws the vehicle's order at once and frees all its
// resources.
func (d *Dispatcher) ReleaseVehicle(vehicle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.deps.Plant.Vehicle(vehicle)
	if err != nil {
		return err
	}
	if v.TransportOrder != "" {
		if err := d.withdraw(v.TransportOrder, true, false); err != nil {
			return err
		}
	}
	if d.deps.Scheduler != nil {
		d.deps.Scheduler.FreeAll(vehicle)
	}
	if err := d.deps.Plant.SetVehicleAllocatedResources(vehicle, nil); err != nil {
		return err
	}
	return d.deps.Plant.SetVehicleProcState(vehicle, model.ProcIdle)
}

// Reroute recomputes the routes of the current and future drive orders of
// the vehicle's order. A regular reroute starts at the point the vehicle is
// heading to, a forced one at its current position.
func (d *Dispatcher) Reroute(vehicle string, kind model.ReroutingType) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reroute(vehicle, kind)
}

func (d *Dispatcher) reroute(vehicle string, kind model.ReroutingType) error {
	v, err := d.deps.Plant.Vehicle(vehicle)
	if err != nil {
		return err
	}
	if v.TransportOrder == "" {
		return nil
	}
	o, err := d.deps.Pool.TransportOrder(v.TransportOrder)
	if err != nil {
		return err
	}
	if o.State != model.OrderBeingProcessed {
		return nil
	}
	from := v.CurrentPosition
	if kind == model.RerouteRegular && v.NextPosition != "" {
		from = v.NextPosition
	}
	if from == "" {
		return errs.NewIllegalStateError("vehicle %q has no known position", vehicle)
	}
	drives, _, err := d.planDrives(v, from, o.FutureDriveOrders(), d.locations())
	if err != nil {
		return fmt.Errorf("reroute %s: %w", vehicle, err)
	}
	reroutes.WithLabelValues(kind.String()).Inc()
	return d.deps.Pool.UpdateFutureDriveOrders(o.Name, drives)
}

// RerouteAll reroutes every vehicle processing an order.
func (d *Dispatcher) RerouteAll(kind model.ReroutingType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, v := range d.deps.Plant.Vehicles() {
		if v.TransportOrder == "" {
			continue
		}
		if err := d.reroute(v.Name, kind); err != nil {
			d.log.Warnf("%v", err)
		}
	}
}
