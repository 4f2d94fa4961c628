package plantmodel

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/kilianp07/agvkernel/core/domain"
	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/events"
	"github.com/kilianp07/agvkernel/core/model"
)

// Writer accesses the store inside an open domain transaction. It lets other
// components couple plant model updates with their own mutations in one
// critical section. A Writer must not outlive its transaction.
type Writer struct {
	s  *Store
	tx *domain.Tx
}

// With binds the store to tx.
func (s *Store) With(tx *domain.Tx) *Writer {
	return &Writer{s: s, tx: tx}
}

// Snapshot returns a detached copy of the whole plant model.
func (w *Writer) Snapshot() model.PlantModel {
	s := w.s
	return model.PlantModel{
		Name:          s.name,
		Properties:    cloneMap(s.properties),
		Points:        cloneSorted(s.points, model.Point.Clone),
		Paths:         cloneSorted(s.paths, model.Path.Clone),
		LocationTypes: cloneSorted(s.locationTypes, model.LocationType.Clone),
		Locations:     cloneSorted(s.locations, model.Location.Clone),
		Vehicles:      cloneSorted(s.vehicles, model.Vehicle.Clone),
	}
}

func (w *Writer) Point(name string) (model.Point, error) {
	p, ok := w.s.points[name]
	if !ok {
		return model.Point{}, errs.NewObjectUnknownError("point", name)
	}
	return p.Clone(), nil
}

func (w *Writer) Path(name string) (model.Path, error) {
	p, ok := w.s.paths[name]
	if !ok {
		return model.Path{}, errs.NewObjectUnknownError("path", name)
	}
	return p.Clone(), nil
}

func (w *Writer) Paths() []model.Path {
	return cloneSorted(w.s.paths, model.Path.Clone)
}

func (w *Writer) LocationType(name string) (model.LocationType, error) {
	t, ok := w.s.locationTypes[name]
	if !ok {
		return model.LocationType{}, errs.NewObjectUnknownError("location type", name)
	}
	return t.Clone(), nil
}

func (w *Writer) Location(name string) (model.Location, error) {
	l, ok := w.s.locations[name]
	if !ok {
		return model.Location{}, errs.NewObjectUnknownError("location", name)
	}
	return l.Clone(), nil
}

func (w *Writer) Vehicle(name string) (model.Vehicle, error) {
	v, ok := w.s.vehicles[name]
	if !ok {
		return model.Vehicle{}, errs.NewObjectUnknownError("vehicle", name)
	}
	return v.Clone(), nil
}

func (w *Writer) Vehicles() []model.Vehicle {
	return cloneSorted(w.s.vehicles, model.Vehicle.Clone)
}

// HasVehicle reports whether the named vehicle exists.
func (w *Writer) HasVehicle(name string) bool {
	_, ok := w.s.vehicles[name]
	return ok
}

// HasLocation reports whether the named location exists.
func (w *Writer) HasLocation(name string) bool {
	_, ok := w.s.locations[name]
	return ok
}

// updateVehicle applies fn to the named vehicle and emits a change event when
// anything differs afterwards.
func (w *Writer) updateVehicle(name string, fn func(v *model.Vehicle)) error {
	v, ok := w.s.vehicles[name]
	if !ok {
		return errs.NewObjectUnknownError("vehicle", name)
	}
	prev := v.Clone()
	fn(v)
	if !reflect.DeepEqual(prev, *v) {
		w.tx.Emit(events.VehicleChangedEvent{Previous: prev, Current: v.Clone()})
	}
	return nil
}

// SetVehiclePosition sets the point the vehicle reports to be at. An empty
// name means unknown position.
func (w *Writer) SetVehiclePosition(name, point string) error {
	if point != "" && !w.s.hasPoint(point) {
		return errs.NewObjectUnknownError("point", point)
	}
	return w.updateVehicle(name, func(v *model.Vehicle) { v.CurrentPosition = point })
}

func (w *Writer) SetVehicleNextPosition(name, point string) error {
	if point != "" && !w.s.hasPoint(point) {
		return errs.NewObjectUnknownError("point", point)
	}
	return w.updateVehicle(name, func(v *model.Vehicle) { v.NextPosition = point })
}

func (w *Writer) SetVehicleState(name string, st model.VehicleState) error {
	return w.updateVehicle(name, func(v *model.Vehicle) { v.State = st })
}

func (w *Writer) SetVehicleProcState(name string, st model.ProcState) error {
	return w.updateVehicle(name, func(v *model.Vehicle) { v.ProcState = st })
}

// SetVehicleEnergyLevel sets the energy level in percent.
func (w *Writer) SetVehicleEnergyLevel(name string, level int) error {
	if level < 0 || level > 100 {
		return errs.NewIllegalArgumentError("energy_level", fmt.Sprintf("%d is outside 0..100", level))
	}
	return w.updateVehicle(name, func(v *model.Vehicle) { v.EnergyLevel = level })
}

func (w *Writer) SetVehicleIntegrationLevel(name string, lvl model.IntegrationLevel) error {
	if lvl < model.IntegrationToBeIgnored || lvl > model.IntegrationToBeUtilized {
		return errs.NewIllegalArgumentError("integration_level", fmt.Sprintf("invalid level %d", int(lvl)))
	}
	return w.updateVehicle(name, func(v *model.Vehicle) { v.IntegrationLevel = lvl })
}

// SetVehicleTransportOrder sets the vehicle's back-reference to its order.
func (w *Writer) SetVehicleTransportOrder(name, order string) error {
	return w.updateVehicle(name, func(v *model.Vehicle) { v.TransportOrder = order })
}

// SetVehicleOrderSequence sets the vehicle's back-reference to its sequence.
func (w *Writer) SetVehicleOrderSequence(name, seq string) error {
	return w.updateVehicle(name, func(v *model.Vehicle) { v.OrderSequence = seq })
}

func (w *Writer) SetVehicleAllocatedResources(name string, resources []string) error {
	return w.updateVehicle(name, func(v *model.Vehicle) { v.AllocatedResources = slices.Clone(resources) })
}

// ResetVehicleRuntime clears runtime state and order references of a vehicle.
func (w *Writer) ResetVehicleRuntime(name string) error {
	return w.updateVehicle(name, func(v *model.Vehicle) { v.ResetRuntime() })
}

// ResetVehicles resets the runtime state of every vehicle.
func (w *Writer) ResetVehicles() {
	for _, name := range sortedKeys(w.s.vehicles) {
		_ = w.ResetVehicleRuntime(name)
	}
}

// SetPathLocked locks or unlocks a path.
func (w *Writer) SetPathLocked(name string, locked bool) error {
	p, ok := w.s.paths[name]
	if !ok {
		return errs.NewObjectUnknownError("path", name)
	}
	if p.Locked == locked {
		return nil
	}
	prev := p.Clone()
	p.Locked = locked
	w.tx.Emit(events.PathChangedEvent{Previous: prev, Current: p.Clone()})
	return nil
}

// SetLocationLocked locks or unlocks a location.
func (w *Writer) SetLocationLocked(name string, locked bool) error {
	l, ok := w.s.locations[name]
	if !ok {
		return errs.NewObjectUnknownError("location", name)
	}
	if l.Locked == locked {
		return nil
	}
	prev := l.Clone()
	l.Locked = locked
	w.tx.Emit(events.LocationChangedEvent{Previous: prev, Current: l.Clone()})
	return nil
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys[T any](m map[string]*T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
