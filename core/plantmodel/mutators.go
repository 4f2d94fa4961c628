package plantmodel

import (
	"github.com/kilianp07/agvkernel/core/domain"
	"github.com/kilianp07/agvkernel/core/model"
)

// The methods below each run one Writer mutation in its own transaction.

func (s *Store) SetVehiclePosition(name, point string) error {
	return s.dom.Do(func(tx *domain.Tx) error { return s.With(tx).SetVehiclePosition(name, point) })
}

func (s *Store) SetVehicleNextPosition(name, point string) error {
	return s.dom.Do(func(tx *domain.Tx) error { return s.With(tx).SetVehicleNextPosition(name, point) })
}

func (s *Store) SetVehicleState(name string, st model.VehicleState) error {
	return s.dom.Do(func(tx *domain.Tx) error { return s.With(tx).SetVehicleState(name, st) })
}

func (s *Store) SetVehicleProcState(name string, st model.ProcState) error {
	return s.dom.Do(func(tx *domain.Tx) error { return s.With(tx).SetVehicleProcState(name, st) })
}

func (s *Store) SetVehicleEnergyLevel(name string, level int) error {
	return s.dom.Do(func(tx *domain.Tx) error { return s.With(tx).SetVehicleEnergyLevel(name, level) })
}

func (s *Store) SetVehicleIntegrationLevel(name string, lvl model.IntegrationLevel) error {
	return s.dom.Do(func(tx *domain.Tx) error { return s.With(tx).SetVehicleIntegrationLevel(name, lvl) })
}

func (s *Store) SetVehicleAllocatedResources(name string, resources []string) error {
	return s.dom.Do(func(tx *domain.Tx) error { return s.With(tx).SetVehicleAllocatedResources(name, resources) })
}

// ResetVehicles resets the runtime state of every vehicle.
func (s *Store) ResetVehicles() {
	_ = s.dom.Do(func(tx *domain.Tx) error {
		s.With(tx).ResetVehicles()
		return nil
	})
}

func (s *Store) SetPathLocked(name string, locked bool) error {
	return s.dom.Do(func(tx *domain.Tx) error { return s.With(tx).SetPathLocked(name, locked) })
}

func (s *Store) SetLocationLocked(name string, locked bool) error {
	return s.dom.Do(func(tx *domain.Tx) error { return s.With(tx).SetLocationLocked(name, locked) })
}
