package kernel

import (
	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/core/orderpool"
)

// UpdateVehiclePosition records the reported position and moves the
// vehicle's resource allocation to the new point.
func (k *Kernel) UpdateVehiclePosition(vehicle, point string) error {
	const op = "update vehicle position"
	err := k.operatingDo(op, func(w *orderpool.Writer) error {
		return w.Plant().SetVehiclePosition(vehicle, point)
	})
	if err != nil {
		return err
	}
	s, _, err := k.strategies(op)
	if err != nil || s.Scheduler == nil {
		return nil
	}
	s.Scheduler.FreeAll(vehicle)
	var held []string
	if point != "" {
		if err := s.Scheduler.Allocate(vehicle, []string{point}); err != nil {
			k.log.Warnf("allocate %s for %s: %v", point, vehicle, err)
		} else {
			held = []string{point}
		}
	}
	return k.operatingDo(op, func(w *orderpool.Writer) error {
		return w.Plant().SetVehicleAllocatedResources(vehicle, held)
	})
}

// UpdateVehicleState records the state reported by the vehicle's adapter.
func (k *Kernel) UpdateVehicleState(vehicle string, st model.VehicleState) error {
	return k.operatingDo("update vehicle state", func(pw *orderpool.Writer) error {
		w := pw.Plant()
		v, err := w.Vehicle(vehicle)
		if err != nil {
			return err
		}
		if err := w.SetVehicleState(vehicle, st); err != nil {
			return err
		}
		// A vehicle that comes online becomes available. One disabled while
		// online stays out.
		if v.ProcState == model.ProcUnavailable && !online(v.State) &&
			(st == model.VehicleIdle || st == model.VehicleCharging) {
			return w.SetVehicleProcState(vehicle, model.ProcIdle)
		}
		return nil
	})
}

func (k *Kernel) UpdateVehicleEnergyLevel(vehicle string, level int) error {
	return k.operatingDo("update vehicle energy level", func(w *orderpool.Writer) error {
		return w.Plant().SetVehicleEnergyLevel(vehicle, level)
	})
}

// DriveOrderFinished advances the vehicle's transport order. The next drive
// order is sent to the vehicle; after the last one the order finishes and
// the vehicle awaits its next order. A pending withdrawal resolves instead,
// leaving the vehicle UNAVAILABLE if the withdrawal asked to disable it.
func (k *Kernel) DriveOrderFinished(vehicle string) error {
	const op = "drive order finished"
	s, ctx, err := k.strategies(op)
	if err != nil {
		return err
	}
	var (
		next  model.TransportOrder
		drive model.DriveOrder
		send  bool
	)
	err = k.operatingDo(op, func(w *orderpool.Writer) error {
		o, err := currentOrder(w, vehicle)
		if err != nil {
			return err
		}
		st := model.ProcAwaitingOrder
		switch {
		case o.WithdrawalPending:
			if err := w.ResolveWithdrawal(o.Name); err != nil {
				return err
			}
			if o.DisableVehicle {
				st = model.ProcUnavailable
			}
		case o.HasNextDrive():
			next, err = w.SetTransportOrderNextDriveOrder(o.Name)
			if err != nil {
				return err
			}
			drive, send = next.CurrentDrive()
			return nil
		default:
			if _, err := w.SetTransportOrderState(o.Name, model.OrderFinished); err != nil {
				return err
			}
		}
		return w.Plant().SetVehicleProcState(vehicle, st)
	})
	if err != nil || !send {
		return err
	}
	ctrl, err := s.Controllers.Controller(vehicle)
	if err != nil {
		return err
	}
	return ctrl.SendDriveOrder(ctx, next, drive)
}

// DriveOrderFailed fails the vehicle's transport order.
func (k *Kernel) DriveOrderFailed(vehicle, reason string) error {
	return k.operatingDo("drive order failed", func(w *orderpool.Writer) error {
		o, err := currentOrder(w, vehicle)
		if err != nil {
			return err
		}
		if err := w.AddRejection(o.Name, vehicle, reason); err != nil {
			return err
		}
		if _, err := w.SetTransportOrderState(o.Name, model.OrderFailed); err != nil {
			return err
		}
		k.log.Warnf("transport order %s failed on %s: %s", o.Name, vehicle, reason)
		return w.Plant().SetVehicleProcState(vehicle, model.ProcAwaitingOrder)
	})
}

func online(st model.VehicleState) bool {
	return st == model.VehicleIdle || st == model.VehicleExecuting || st == model.VehicleCharging
}

func currentOrder(w *orderpool.Writer, vehicle string) (model.TransportOrder, error) {
	v, err := w.Plant().Vehicle(vehicle)
	if err != nil {
		return model.TransportOrder{}, err
	}
	if v.TransportOrder == "" {
		return model.TransportOrder{}, errs.NewIllegalStateError("vehicle %q has no transport order", vehicle)
	}
	return w.TransportOrder(v.TransportOrder)
}
