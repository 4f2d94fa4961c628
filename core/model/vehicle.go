package model

import (
	"maps"
	"slices"
)

// Vehicle is an automated guided vehicle known to the kernel.
type Vehicle struct {
	Name   string `json:"name" yaml:"name"`
	Length int64  `json:"length" yaml:"length"`

	// Energy thresholds in percent.
	EnergyLevelCritical              int `json:"energy_level_critical" yaml:"energy_level_critical"`
	EnergyLevelGood                  int `json:"energy_level_good" yaml:"energy_level_good"`
	EnergyLevelFullyRecharged        int `json:"energy_level_fully_recharged" yaml:"energy_level_fully_recharged"`
	EnergyLevelSufficientlyRecharged int `json:"energy_level_sufficiently_recharged" yaml:"energy_level_sufficiently_recharged"`
	MaxVelocity                      int `json:"max_velocity" yaml:"max_velocity"`
	MaxReverseVelocity               int `json:"max_reverse_velocity" yaml:"max_reverse_velocity"`

	RechargeOperation string           `json:"recharge_operation" yaml:"recharge_operation"`
	IntegrationLevel  IntegrationLevel `json:"integration_level" yaml:"integration_level"`

	// Runtime state. Not part of the persisted topology.
	State              VehicleState      `json:"state" yaml:"-"`
	ProcState          ProcState         `json:"proc_state" yaml:"-"`
	EnergyLevel        int               `json:"energy_level" yaml:"-"`
	CurrentPosition    string            `json:"current_position,omitempty" yaml:"-"`
	NextPosition       string            `json:"next_position,omitempty" yaml:"-"`
	TransportOrder     string            `json:"transport_order,omitempty" yaml:"-"`
	OrderSequence      string            `json:"order_sequence,omitempty" yaml:"-"`
	AllocatedResources []string          `json:"allocated_resources,omitempty" yaml:"-"`
	Properties         map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Clone returns a deep copy of v.
func (v Vehicle) Clone() Vehicle {
	v.AllocatedResources = slices.Clone(v.AllocatedResources)
	v.Properties = maps.Clone(v.Properties)
	return v
}

// EnergyState derives the energy state from the current level and thresholds.
func (v Vehicle) EnergyState() EnergyState {
	switch {
	case v.EnergyLevel <= v.EnergyLevelCritical:
		return EnergyCritical
	case v.EnergyLevel <= v.EnergyLevelGood:
		return EnergyDegraded
	default:
		return EnergyGood
	}
}

// ShouldBeUtilized reports whether the dispatcher may assign orders to v.
func (v Vehicle) ShouldBeUtilized() bool {
	return v.IntegrationLevel == IntegrationToBeUtilized
}

// IsIdleOrCharging reports whether v is standing by without executing work.
func (v Vehicle) IsIdleOrCharging() bool {
	return v.State == VehicleIdle || v.State == VehicleCharging
}

// ResetRuntime clears all runtime state, leaving the vehicle UNAVAILABLE with
// an unknown adapter state and no order references.
func (v *Vehicle) ResetRuntime() {
	v.State = VehicleUnknown
	v.ProcState = ProcUnavailable
	v.CurrentPosition = ""
	v.NextPosition = ""
	v.TransportOrder = ""
	v.OrderSequence = ""
	v.AllocatedResources = nil
}
