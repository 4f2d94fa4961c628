package kernel

import (
	"context"
	"fmt"

	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/core/orderpool"
)

func (k *Kernel) modelling(op string) error {
	return k.require(op, model.KernelModelling)
}

// Model returns a snapshot of the plant model.
func (k *Kernel) Model() model.PlantModel { return k.plant.Snapshot() }

// LoadModel replaces the plant model.
func (k *Kernel) LoadModel(m model.PlantModel) error {
	if err := k.modelling("load model"); err != nil {
		return err
	}
	return k.plant.Load(m)
}

// SaveModel persists the current plant model.
func (k *Kernel) SaveModel(ctx context.Context) error {
	if err := k.require("save model", model.KernelModelling, model.KernelOperating); err != nil {
		return err
	}
	if k.store == nil {
		return errs.NewIllegalStateError("no model persister configured")
	}
	if err := k.store.SaveModel(ctx, k.plant.Snapshot()); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	return nil
}

func (k *Kernel) CreatePoint(p model.Point) (model.Point, error) {
	if err := k.modelling("create point"); err != nil {
		return model.Point{}, err
	}
	return k.plant.CreatePoint(p)
}

func (k *Kernel) CreatePath(p model.Path) (model.Path, error) {
	if err := k.modelling("create path"); err != nil {
		return model.Path{}, err
	}
	return k.plant.CreatePath(p)
}

func (k *Kernel) CreateLocationType(t model.LocationType) (model.LocationType, error) {
	if err := k.modelling("create location type"); err != nil {
		return model.LocationType{}, err
	}
	return k.plant.CreateLocationType(t)
}

func (k *Kernel) CreateLocation(l model.Location) (model.Location, error) {
	if err := k.modelling("create location"); err != nil {
		return model.Location{}, err
	}
	return k.plant.CreateLocation(l)
}

func (k *Kernel) CreateVehicle(v model.Vehicle) (model.Vehicle, error) {
	if err := k.modelling("create vehicle"); err != nil {
		return model.Vehicle{}, err
	}
	return k.plant.CreateVehicle(v)
}

func (k *Kernel) RemovePoint(name string) error {
	if err := k.modelling("remove point"); err != nil {
		return err
	}
	return k.plant.RemovePoint(name)
}

func (k *Kernel) RemovePath(name string) error {
	if err := k.modelling("remove path"); err != nil {
		return err
	}
	return k.plant.RemovePath(name)
}

func (k *Kernel) RemoveLocationType(name string) error {
	if err := k.modelling("remove location type"); err != nil {
		return err
	}
	return k.plant.RemoveLocationType(name)
}

func (k *Kernel) RemoveLocation(name string) error {
	if err := k.modelling("remove location"); err != nil {
		return err
	}
	return k.plant.RemoveLocation(name)
}

func (k *Kernel) RemoveVehicle(name string) error {
	if err := k.modelling("remove vehicle"); err != nil {
		return err
	}
	return k.plant.RemoveVehicle(name)
}

func (k *Kernel) Vehicle(name string) (model.Vehicle, error) { return k.plant.Vehicle(name) }

func (k *Kernel) Vehicles() []model.Vehicle { return k.plant.Vehicles() }

func (k *Kernel) Path(name string) (model.Path, error) { return k.plant.Path(name) }

func (k *Kernel) Paths() []model.Path { return k.plant.Paths() }

// LockPath locks or unlocks a path. The coordinator reacts to the change in
// OPERATING.
func (k *Kernel) LockPath(name string, locked bool) error {
	if err := k.require("lock path", model.KernelModelling, model.KernelOperating); err != nil {
		return err
	}
	return k.plant.SetPathLocked(name, locked)
}

// UpdateVehicleNextPosition records the point the vehicle is heading to.
func (k *Kernel) UpdateVehicleNextPosition(vehicle, point string) error {
	if err := k.operating("update vehicle next position"); err != nil {
		return err
	}
	return k.plant.SetVehicleNextPosition(vehicle, point)
}

// UpdateVehicleProcState is used by the dispatcher and the controllers.
func (k *Kernel) UpdateVehicleProcState(vehicle string, st model.ProcState) error {
	if err := k.operating("update vehicle processing state"); err != nil {
		return err
	}
	return k.plant.SetVehicleProcState(vehicle, st)
}

// UpdateVehicleIntegrationLevel changes how far the vehicle takes part in
// operation. Lowering it below TO_BE_RESPECTED releases the vehicle. Raising
// it to TO_BE_UTILIZED makes a disabled online vehicle available again.
func (k *Kernel) UpdateVehicleIntegrationLevel(vehicle string, lvl model.IntegrationLevel) error {
	err := k.operatingDo("update vehicle integration level", func(pw *orderpool.Writer) error {
		w := pw.Plant()
		if err := w.SetVehicleIntegrationLevel(vehicle, lvl); err != nil {
			return err
		}
		v, err := w.Vehicle(vehicle)
		if err != nil {
			return err
		}
		if lvl == model.IntegrationToBeUtilized && v.ProcState == model.ProcUnavailable && online(v.State) {
			return w.SetVehicleProcState(vehicle, model.ProcIdle)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if lvl == model.IntegrationToBeIgnored || lvl == model.IntegrationToBeNoticed {
		if s, _, err := k.strategies("release vehicle"); err == nil {
			if err := s.Dispatcher.ReleaseVehicle(vehicle); err != nil {
				k.log.Warnf("release %s after integration level change: %v", vehicle, err)
			}
		}
	}
	return nil
}

// RouteCosts returns the routing costs between two points for vehicle.
func (k *Kernel) RouteCosts(vehicle, source, destination string) (int64, error) {
	s, _, err := k.strategies("route costs")
	if err != nil {
		return 0, err
	}
	v, err := k.plant.Vehicle(vehicle)
	if err != nil {
		return 0, err
	}
	return s.Router.Costs(v, source, destination)
}

// RouterInfo describes the running router.
func (k *Kernel) RouterInfo() (string, error) {
	s, _, err := k.strategies("router info")
	if err != nil {
		return "", err
	}
	return s.Router.Info(), nil
}

// Allocations returns the scheduler's resource allocations by vehicle.
func (k *Kernel) Allocations() (map[string][]string, error) {
	s, _, err := k.strategies("allocations")
	if err != nil {
		return nil, err
	}
	if s.Scheduler == nil {
		return map[string][]string{}, nil
	}
	return s.Scheduler.Allocations(), nil
}
