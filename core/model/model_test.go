package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStateTransitions(t *testing.T) {
	legal := []struct{ from, to OrderState }{
		{OrderRaw, OrderActive},
		{OrderRaw, OrderDispatchable},
		{OrderActive, OrderDispatchable},
		{OrderDispatchable, OrderBeingProcessed},
		{OrderBeingProcessed, OrderFinished},
		{OrderBeingProcessed, OrderFailed},
		{OrderRaw, OrderWithdrawn},
		{OrderActive, OrderWithdrawn},
		{OrderDispatchable, OrderWithdrawn},
		{OrderBeingProcessed, OrderWithdrawn},
	}
	for _, c := range legal {
		assert.Truef(t, c.from.CanTransitionTo(c.to), "%s -> %s should be legal", c.from, c.to)
	}

	all := []OrderState{OrderRaw, OrderActive, OrderDispatchable, OrderBeingProcessed, OrderWithdrawn, OrderFailed, OrderFinished}
	for _, from := range []OrderState{OrderFinished, OrderFailed, OrderWithdrawn} {
		for _, to := range all {
			assert.Falsef(t, from.CanTransitionTo(to), "%s -> %s must be illegal", from, to)
		}
	}
	assert.False(t, OrderBeingProcessed.CanTransitionTo(OrderRaw))
	assert.False(t, OrderDispatchable.CanTransitionTo(OrderActive))
	assert.False(t, OrderActive.CanTransitionTo(OrderFinished))
}

func TestOrderStateFinality(t *testing.T) {
	assert.True(t, OrderFinished.IsTerminal())
	assert.True(t, OrderFailed.IsTerminal())
	assert.False(t, OrderWithdrawn.IsTerminal())
	assert.True(t, OrderWithdrawn.IsFinal())
	assert.False(t, OrderBeingProcessed.IsFinal())
}

func TestEnumTextRoundTrip(t *testing.T) {
	var st OrderState
	require.NoError(t, st.UnmarshalText([]byte("BEING_PROCESSED")))
	assert.Equal(t, OrderBeingProcessed, st)
	assert.Error(t, st.UnmarshalText([]byte("bogus")))

	var lvl IntegrationLevel
	require.NoError(t, json.Unmarshal([]byte(`"TO_BE_UTILIZED"`), &lvl))
	assert.Equal(t, IntegrationToBeUtilized, lvl)
	b, err := json.Marshal(ProcAwaitingOrder)
	require.NoError(t, err)
	assert.Equal(t, `"AWAITING_ORDER"`, string(b))
}

func TestVehicleEnergyState(t *testing.T) {
	v := Vehicle{EnergyLevelCritical: 20, EnergyLevelGood: 60}
	v.EnergyLevel = 10
	assert.Equal(t, EnergyCritical, v.EnergyState())
	v.EnergyLevel = 40
	assert.Equal(t, EnergyDegraded, v.EnergyState())
	v.EnergyLevel = 90
	assert.Equal(t, EnergyGood, v.EnergyState())
}

func TestVehicleResetRuntime(t *testing.T) {
	v := Vehicle{Name: "v1", State: VehicleIdle, ProcState: ProcProcessingOrder, TransportOrder: "o1", OrderSequence: "s1", CurrentPosition: "p1"}
	v.ResetRuntime()
	assert.Equal(t, ProcUnavailable, v.ProcState)
	assert.Equal(t, VehicleUnknown, v.State)
	assert.Empty(t, v.TransportOrder)
	assert.Empty(t, v.OrderSequence)
	assert.Empty(t, v.CurrentPosition)
}

func TestTransportOrderCloneIsDeep(t *testing.T) {
	o := TransportOrder{
		DriveOrders:  []DriveOrder{{Destination: Destination{Location: "L1"}, Route: []string{"a"}}},
		Dependencies: []string{"d1"},
		Properties:   map[string]string{"k": "v"},
	}
	c := o.Clone()
	c.DriveOrders[0].Route[0] = "b"
	c.Dependencies[0] = "d2"
	c.Properties["k"] = "w"
	assert.Equal(t, "a", o.DriveOrders[0].Route[0])
	assert.Equal(t, "d1", o.Dependencies[0])
	assert.Equal(t, "v", o.Properties["k"])
}

func TestOrderSequenceNextUnfinished(t *testing.T) {
	s := OrderSequence{Orders: []string{"a", "b"}, FinishedIndex: -1}
	next, ok := s.NextUnfinishedOrder()
	require.True(t, ok)
	assert.Equal(t, "a", next)
	s.FinishedIndex = 1
	_, ok = s.NextUnfinishedOrder()
	assert.False(t, ok)
}

func TestLocationTypeAllows(t *testing.T) {
	lt := LocationType{Name: "station", AllowedOperations: []string{"LOAD"}}
	assert.True(t, lt.Allows("LOAD"))
	assert.True(t, lt.Allows(OperationNop))
	assert.False(t, lt.Allows("UNLOAD"))
}
