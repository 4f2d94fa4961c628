package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/core/strategy"
)

type staticTopology struct {
	points []model.Point
	paths  []model.Path
}

func (t *staticTopology) Points() []model.Point { return t.points }
func (t *staticTopology) Paths() []model.Path   { return t.paths }

// A -> B -> C is 2+2, A -> C directly is 5, C -> D is one way.
func newTopology() *staticTopology {
	return &staticTopology{
		points: []model.Point{{Name: "A"}, {Name: "B"}, {Name: "C"}, {Name: "D"}},
		paths: []model.Path{
			{Name: "A--B", Source: "A", Destination: "B", Length: 2, MaxReverseVelocity: 1},
			{Name: "B--C", Source: "B", Destination: "C", Length: 2, MaxReverseVelocity: 1},
			{Name: "A--C", Source: "A", Destination: "C", Length: 5},
			{Name: "C--D", Source: "C", Destination: "D", Length: 1},
		},
	}
}

func TestRouteShortest(t *testing.T) {
	r := New(newTopology(), nil)
	require.NoError(t, r.Initialize(context.Background()))

	pts, cost, err := r.Route(model.Vehicle{}, "A", "D")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D"}, pts)
	assert.EqualValues(t, 5, cost)

	pts, cost, err = r.Route(model.Vehicle{}, "B", "B")
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, pts)
	assert.Zero(t, cost)
}

func TestRouteRespectsDirection(t *testing.T) {
	r := New(newTopology(), nil)
	require.NoError(t, r.Initialize(context.Background()))

	_, _, err := r.Route(model.Vehicle{}, "D", "A")
	assert.ErrorIs(t, err, strategy.ErrNoRoute)

	cost, err := r.Costs(model.Vehicle{}, "C", "A")
	require.NoError(t, err)
	assert.EqualValues(t, 4, cost)
}

func TestLockedPathsAreAvoided(t *testing.T) {
	topo := newTopology()
	r := New(topo, nil)
	require.NoError(t, r.Initialize(context.Background()))

	topo.paths[1].Locked = true
	r.UpdateRoutingTopology([]model.Path{topo.paths[1]})

	pts, cost, err := r.Route(model.Vehicle{}, "A", "C")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, pts)
	assert.EqualValues(t, 5, cost)
}

func TestRouteErrors(t *testing.T) {
	r := New(newTopology(), nil)
	_, _, err := r.Route(model.Vehicle{}, "A", "B")
	assert.ErrorIs(t, err, errs.ErrIllegalState)

	require.NoError(t, r.Initialize(context.Background()))
	_, _, err = r.Route(model.Vehicle{}, "A", "Z")
	assert.ErrorIs(t, err, errs.ErrObjectUnknown)
	assert.Contains(t, r.Info(), "4 points")

	r.Terminate()
	_, _, err = r.Route(model.Vehicle{}, "A", "B")
	assert.ErrorIs(t, err, errs.ErrIllegalState)
}
