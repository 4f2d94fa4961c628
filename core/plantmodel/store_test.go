package plantmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvkernel/core/domain"
	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/events"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/internal/eventbus"
)

func sampleModel() model.PlantModel {
	return model.PlantModel{
		Name:   "demo",
		Points: []model.Point{{Name: "P1"}, {Name: "P2"}, {Name: "P3"}},
		Paths: []model.Path{
			{Name: "P1--P2", Source: "P1", Destination: "P2", Length: 1000},
			{Name: "P2--P3", Source: "P2", Destination: "P3", Length: 1000},
		},
		LocationTypes: []model.LocationType{{Name: "station", AllowedOperations: []string{"LOAD"}}},
		Locations:     []model.Location{{Name: "L1", Type: "station", Links: []string{"P3"}}},
		Vehicles:      []model.Vehicle{{Name: "V1", EnergyLevelCritical: 20, EnergyLevelGood: 60}},
	}
}

func newStore(t *testing.T) (*Store, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.New()
	s := New(domain.New(bus), nil)
	require.NoError(t, s.Load(sampleModel()))
	return s, bus
}

func TestLoadResetsVehiclesAndDefaultsIntegration(t *testing.T) {
	s, _ := newStore(t)
	v, err := s.Vehicle("V1")
	require.NoError(t, err)
	assert.Equal(t, model.IntegrationToBeRespected, v.IntegrationLevel)
	assert.Equal(t, model.ProcUnavailable, v.ProcState)
	assert.Equal(t, model.VehicleUnknown, v.State)
	assert.Equal(t, "demo", s.ModelName())
}

func TestLoadRejectsInvalidModel(t *testing.T) {
	s, _ := newStore(t)
	bad := sampleModel()
	bad.Paths = append(bad.Paths, model.Path{Name: "X", Source: "P1", Destination: "P9", Length: 10})
	err := s.Load(bad)
	assert.ErrorIs(t, err, errs.ErrObjectUnknown)
	// The previous content survives.
	assert.Len(t, s.Paths(), 2)
}

func TestCreatePathIntegrity(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.CreatePath(model.Path{Name: "P1--P2", Source: "P1", Destination: "P2", Length: 1})
	assert.ErrorIs(t, err, errs.ErrObjectExists)
	_, err = s.CreatePath(model.Path{Name: "new", Source: "P1", Destination: "nope", Length: 1})
	assert.ErrorIs(t, err, errs.ErrObjectUnknown)
	_, err = s.CreatePath(model.Path{Name: "new", Source: "P1", Destination: "P3", Length: 0})
	assert.ErrorIs(t, err, errs.ErrIllegalArgument)
	_, err = s.CreatePath(model.Path{Name: "new", Source: "P1", Destination: "P3", Length: 5})
	assert.NoError(t, err)
}

func TestRemovePointInUse(t *testing.T) {
	s, _ := newStore(t)
	assert.ErrorIs(t, s.RemovePoint("P2"), errs.ErrIllegalState)
	assert.ErrorIs(t, s.RemovePoint("P3"), errs.ErrIllegalState)
	require.NoError(t, s.RemovePath("P1--P2"))
	require.NoError(t, s.RemovePoint("P1"))
	_, err := s.Point("P1")
	assert.ErrorIs(t, err, errs.ErrObjectUnknown)
}

func TestVehicleChangePublishesPreviousAndCurrent(t *testing.T) {
	s, bus := newStore(t)
	var got []events.VehicleChangedEvent
	eventbus.SubscribeTypes(bus, func(e events.VehicleChangedEvent) { got = append(got, e) })

	require.NoError(t, s.SetVehicleEnergyLevel("V1", 80))
	require.NoError(t, s.SetVehicleEnergyLevel("V1", 80))
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Previous.EnergyLevel)
	assert.Equal(t, 80, got[0].Current.EnergyLevel)

	assert.ErrorIs(t, s.SetVehicleEnergyLevel("V1", 120), errs.ErrIllegalArgument)
	assert.ErrorIs(t, s.SetVehiclePosition("V1", "P9"), errs.ErrObjectUnknown)
	assert.ErrorIs(t, s.SetVehicleState("V9", model.VehicleIdle), errs.ErrObjectUnknown)
	assert.Len(t, got, 1)
}

func TestPathLockPublishesOnlyOnChange(t *testing.T) {
	s, bus := newStore(t)
	var got []events.PathChangedEvent
	eventbus.SubscribeTypes(bus, func(e events.PathChangedEvent) { got = append(got, e) })
	require.NoError(t, s.SetPathLocked("P1--P2", true))
	require.NoError(t, s.SetPathLocked("P1--P2", true))
	require.Len(t, got, 1)
	assert.False(t, got[0].Previous.Locked)
	assert.True(t, got[0].Current.Locked)
}

func TestSnapshotIsDetached(t *testing.T) {
	s, _ := newStore(t)
	m := s.Snapshot()
	m.Locations[0].Links[0] = "P1"
	l, err := s.Location("L1")
	require.NoError(t, err)
	assert.Equal(t, []string{"P3"}, l.Links)
}

func TestRemoveVehicleWithOrder(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.Domain().Do(func(tx *domain.Tx) error {
		return s.With(tx).SetVehicleTransportOrder("V1", "O1")
	}))
	assert.ErrorIs(t, s.RemoveVehicle("V1"), errs.ErrIllegalState)
}
