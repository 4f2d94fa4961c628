// Package plantmodel holds the in-memory plant topology and the vehicles
// operating on it.
//
// The store enforces referential integrity on every mutation and hands out
// deep copies only. Vehicle, path and location changes publish
// VehicleChangedEvent, PathChangedEvent and LocationChangedEvent after the
// domain lock is released.
package plantmodel

import (
	"fmt"
	"maps"
	"slices"

	"github.com/kilianp07/agvkernel/core/domain"
	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/logger"
	"github.com/kilianp07/agvkernel/core/model"
)

// Store is the plant model store. All fields are guarded by the domain lock.
type Store struct {
	dom *domain.Domain
	log logger.Logger

	name          string
	properties    map[string]string
	points        map[string]*model.Point
	paths         map[string]*model.Path
	locationTypes map[string]*model.LocationType
	locations     map[string]*model.Location
	vehicles      map[string]*model.Vehicle
}

// New returns an empty store guarded by dom.
func New(dom *domain.Domain, log logger.Logger) *Store {
	s := &Store{dom: dom, log: logger.OrNop(log)}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.name = ""
	s.properties = map[string]string{}
	s.points = map[string]*model.Point{}
	s.paths = map[string]*model.Path{}
	s.locationTypes = map[string]*model.LocationType{}
	s.locations = map[string]*model.Location{}
	s.vehicles = map[string]*model.Vehicle{}
}

// Domain returns the domain guarding the store.
func (s *Store) Domain() *domain.Domain { return s.dom }

// ModelName returns the name of the loaded model.
func (s *Store) ModelName() string {
	var n string
	s.dom.View(func(*domain.Tx) { n = s.name })
	return n
}

// SetModelName renames the model.
func (s *Store) SetModelName(name string) {
	_ = s.dom.Do(func(*domain.Tx) error {
		s.name = name
		return nil
	})
}

// Properties returns a copy of the model properties.
func (s *Store) Properties() map[string]string {
	var p map[string]string
	s.dom.View(func(*domain.Tx) { p = maps.Clone(s.properties) })
	return p
}

// Snapshot returns a detached copy of the whole plant model, every list sorted
// by name.
func (s *Store) Snapshot() model.PlantModel {
	var m model.PlantModel
	s.dom.View(func(tx *domain.Tx) { m = s.With(tx).Snapshot() })
	return m
}

// Load replaces the store content with m after validating it. Vehicles start
// with reset runtime state and TO_BE_RESPECTED when no integration level is
// given.
func (s *Store) Load(m model.PlantModel) error {
	if err := Validate(m); err != nil {
		return fmt.Errorf("load plant model %q: %w", m.Name, err)
	}
	m = m.Clone()
	return s.dom.Do(func(*domain.Tx) error {
		s.reset()
		s.name = m.Name
		if m.Properties != nil {
			s.properties = m.Properties
		}
		for i := range m.Points {
			s.points[m.Points[i].Name] = &m.Points[i]
		}
		for i := range m.Paths {
			s.paths[m.Paths[i].Name] = &m.Paths[i]
		}
		for i := range m.LocationTypes {
			s.locationTypes[m.LocationTypes[i].Name] = &m.LocationTypes[i]
		}
		for i := range m.Locations {
			s.locations[m.Locations[i].Name] = &m.Locations[i]
		}
		for i := range m.Vehicles {
			v := &m.Vehicles[i]
			prepareVehicle(v)
			s.vehicles[v.Name] = v
		}
		s.log.Infof("plant model %q loaded: %d points, %d paths, %d locations, %d vehicles",
			m.Name, len(s.points), len(s.paths), len(s.locations), len(s.vehicles))
		return nil
	})
}

// Clear removes every entity from the store.
func (s *Store) Clear() {
	_ = s.dom.Do(func(*domain.Tx) error {
		s.reset()
		return nil
	})
}

func prepareVehicle(v *model.Vehicle) {
	if v.IntegrationLevel == model.IntegrationUnset {
		v.IntegrationLevel = model.IntegrationToBeRespected
	}
	v.ResetRuntime()
}

// CreatePoint adds a point.
func (s *Store) CreatePoint(p model.Point) (model.Point, error) {
	err := s.dom.Do(func(*domain.Tx) error {
		if err := checkName("point", p.Name); err != nil {
			return err
		}
		if _, ok := s.points[p.Name]; ok {
			return errs.NewObjectExistsError("point", p.Name)
		}
		c := p.Clone()
		s.points[p.Name] = &c
		return nil
	})
	return p, err
}

// CreatePath adds a path between two existing points.
func (s *Store) CreatePath(p model.Path) (model.Path, error) {
	err := s.dom.Do(func(*domain.Tx) error {
		if _, ok := s.paths[p.Name]; ok {
			return errs.NewObjectExistsError("path", p.Name)
		}
		if err := validatePath(p, s.hasPoint); err != nil {
			return err
		}
		c := p.Clone()
		s.paths[p.Name] = &c
		return nil
	})
	return p, err
}

// CreateLocationType adds a location type.
func (s *Store) CreateLocationType(t model.LocationType) (model.LocationType, error) {
	err := s.dom.Do(func(*domain.Tx) error {
		if err := checkName("location type", t.Name); err != nil {
			return err
		}
		if _, ok := s.locationTypes[t.Name]; ok {
			return errs.NewObjectExistsError("location type", t.Name)
		}
		c := t.Clone()
		s.locationTypes[t.Name] = &c
		return nil
	})
	return t, err
}

// CreateLocation adds a location of an existing type linked to existing
// points.
func (s *Store) CreateLocation(l model.Location) (model.Location, error) {
	err := s.dom.Do(func(*domain.Tx) error {
		if _, ok := s.locations[l.Name]; ok {
			return errs.NewObjectExistsError("location", l.Name)
		}
		if err := validateLocation(l, s.hasLocationType, s.hasPoint); err != nil {
			return err
		}
		c := l.Clone()
		s.locations[l.Name] = &c
		return nil
	})
	return l, err
}

// CreateVehicle adds a vehicle with reset runtime state.
func (s *Store) CreateVehicle(v model.Vehicle) (model.Vehicle, error) {
	var out model.Vehicle
	err := s.dom.Do(func(*domain.Tx) error {
		if _, ok := s.vehicles[v.Name]; ok {
			return errs.NewObjectExistsError("vehicle", v.Name)
		}
		if err := validateVehicle(v); err != nil {
			return err
		}
		c := v.Clone()
		prepareVehicle(&c)
		s.vehicles[c.Name] = &c
		out = c.Clone()
		return nil
	})
	return out, err
}

// RemovePoint deletes a point no path, location or vehicle refers to.
func (s *Store) RemovePoint(name string) error {
	return s.dom.Do(func(*domain.Tx) error {
		if !s.hasPoint(name) {
			return errs.NewObjectUnknownError("point", name)
		}
		for _, p := range s.paths {
			if p.Source == name || p.Destination == name {
				return errs.NewIllegalStateError("point %q is used by path %q", name, p.Name)
			}
		}
		for _, l := range s.locations {
			if slices.Contains(l.Links, name) {
				return errs.NewIllegalStateError("point %q is linked to location %q", name, l.Name)
			}
		}
		for _, v := range s.vehicles {
			if v.CurrentPosition == name || v.NextPosition == name {
				return errs.NewIllegalStateError("point %q is occupied by vehicle %q", name, v.Name)
			}
		}
		delete(s.points, name)
		return nil
	})
}

// RemovePath deletes a path.
func (s *Store) RemovePath(name string) error {
	return s.dom.Do(func(*domain.Tx) error {
		if _, ok := s.paths[name]; !ok {
			return errs.NewObjectUnknownError("path", name)
		}
		delete(s.paths, name)
		return nil
	})
}

// RemoveLocationType deletes a location type no location uses.
func (s *Store) RemoveLocationType(name string) error {
	return s.dom.Do(func(*domain.Tx) error {
		if !s.hasLocationType(name) {
			return errs.NewObjectUnknownError("location type", name)
		}
		for _, l := range s.locations {
			if l.Type == name {
				return errs.NewIllegalStateError("location type %q is used by location %q", name, l.Name)
			}
		}
		delete(s.locationTypes, name)
		return nil
	})
}

// RemoveLocation deletes a location.
func (s *Store) RemoveLocation(name string) error {
	return s.dom.Do(func(*domain.Tx) error {
		if _, ok := s.locations[name]; !ok {
			return errs.NewObjectUnknownError("location", name)
		}
		delete(s.locations, name)
		return nil
	})
}

// RemoveVehicle deletes a vehicle that holds no order references.
func (s *Store) RemoveVehicle(name string) error {
	return s.dom.Do(func(*domain.Tx) error {
		v, ok := s.vehicles[name]
		if !ok {
			return errs.NewObjectUnknownError("vehicle", name)
		}
		if v.TransportOrder != "" || v.OrderSequence != "" {
			return errs.NewIllegalStateError("vehicle %q still references orders", name)
		}
		delete(s.vehicles, name)
		return nil
	})
}

func (s *Store) hasPoint(name string) bool {
	_, ok := s.points[name]
	return ok
}

func (s *Store) hasLocationType(name string) bool {
	_, ok := s.locationTypes[name]
	return ok
}

// Point returns a copy of the named point.
func (s *Store) Point(name string) (p model.Point, err error) {
	s.dom.View(func(tx *domain.Tx) { p, err = s.With(tx).Point(name) })
	return p, err
}

// Points returns all points sorted by name.
func (s *Store) Points() []model.Point {
	var out []model.Point
	s.dom.View(func(*domain.Tx) { out = cloneSorted(s.points, model.Point.Clone) })
	return out
}

// Path returns a copy of the named path.
func (s *Store) Path(name string) (p model.Path, err error) {
	s.dom.View(func(tx *domain.Tx) { p, err = s.With(tx).Path(name) })
	return p, err
}

// Paths returns all paths sorted by name.
func (s *Store) Paths() []model.Path {
	var out []model.Path
	s.dom.View(func(tx *domain.Tx) { out = s.With(tx).Paths() })
	return out
}

// LocationType returns a copy of the named location type.
func (s *Store) LocationType(name string) (t model.LocationType, err error) {
	s.dom.View(func(tx *domain.Tx) { t, err = s.With(tx).LocationType(name) })
	return t, err
}

// LocationTypes returns all location types sorted by name.
func (s *Store) LocationTypes() []model.LocationType {
	var out []model.LocationType
	s.dom.View(func(*domain.Tx) { out = cloneSorted(s.locationTypes, model.LocationType.Clone) })
	return out
}

// Location returns a copy of the named location.
func (s *Store) Location(name string) (l model.Location, err error) {
	s.dom.View(func(tx *domain.Tx) { l, err = s.With(tx).Location(name) })
	return l, err
}

// Locations returns all locations sorted by name.
func (s *Store) Locations() []model.Location {
	var out []model.Location
	s.dom.View(func(*domain.Tx) { out = cloneSorted(s.locations, model.Location.Clone) })
	return out
}

// Vehicle returns a copy of the named vehicle.
func (s *Store) Vehicle(name string) (v model.Vehicle, err error) {
	s.dom.View(func(tx *domain.Tx) { v, err = s.With(tx).Vehicle(name) })
	return v, err
}

// Vehicles returns all vehicles sorted by name.
func (s *Store) Vehicles() []model.Vehicle {
	var out []model.Vehicle
	s.dom.View(func(tx *domain.Tx) { out = s.With(tx).Vehicles() })
	return out
}

func cloneSorted[T any](m map[string]*T, clone func(T) T) []T {
	out := make([]T, 0, len(m))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		out = append(out, clone(*m[k]))
	}
	return out
}
