package loopback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/simulator"
)

type fleet []string

func (f fleet) Vehicle(name string) (model.Vehicle, error) {
	for _, n := range f {
		if n == name {
			return model.Vehicle{Name: n}, nil
		}
	}
	return model.Vehicle{}, errs.NewObjectUnknownError("vehicle", name)
}

func (f fleet) Vehicles() []model.Vehicle {
	out := make([]model.Vehicle, 0, len(f))
	for _, n := range f {
		out = append(out, model.Vehicle{Name: n})
	}
	return out
}

type sink struct {
	mu       sync.Mutex
	position map[string]string
	energy   map[string]int
	finished []string
}

func newSink() *sink { return &sink{position: map[string]string{}, energy: map[string]int{}} }

func (s *sink) UpdateVehiclePosition(v, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position[v] = p
	return nil
}
func (s *sink) UpdateVehicleState(string, model.VehicleState) error { return nil }
func (s *sink) UpdateVehicleEnergyLevel(v string, l int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.energy[v] = l
	return nil
}
func (s *sink) DriveOrderFinished(v string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, v)
	return nil
}
func (s *sink) DriveOrderFailed(string, string) error { return nil }

func (s *sink) finishedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.finished)
}

func TestPoolDrivesVehicles(t *testing.T) {
	s := newSink()
	cfg := simulator.Config{StepDelay: time.Millisecond, InitialEnergy: 80,
		InitialPositions: map[string]string{"V1": "A", "V2": "C"}}
	p, err := NewPool(cfg, fleet{"V1", "V2"}, s, nil)
	require.NoError(t, err)
	require.NoError(t, p.Initialize(context.Background()))
	defer p.Terminate()

	for name, route := range map[string][]string{"V1": {"A", "B"}, "V2": {"C", "D", "E"}} {
		c, err := p.Controller(name)
		require.NoError(t, err)
		require.NoError(t, c.SendDriveOrder(context.Background(), model.TransportOrder{Name: "T-" + name},
			model.DriveOrder{Route: route}))
	}
	require.Eventually(t, func() bool { return s.finishedCount() == 2 }, time.Second, time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, "B", s.position["V1"])
	assert.Equal(t, "E", s.position["V2"])
	assert.Equal(t, 79, s.energy["V1"])
	assert.Equal(t, 78, s.energy["V2"])
}

func TestPoolController(t *testing.T) {
	p, err := NewPool(simulator.Config{}, fleet{"V1"}, newSink(), nil)
	require.NoError(t, err)

	_, err = p.Controller("V1")
	assert.Error(t, err, "not initialized")

	require.NoError(t, p.Initialize(context.Background()))
	_, err = p.Controller("ghost")
	assert.ErrorIs(t, err, errs.ErrObjectUnknown)

	c, err := p.Controller("V1")
	require.NoError(t, err)
	assert.NoError(t, c.AbortDriveOrder(context.Background(), true))
	assert.NoError(t, c.SendCommAdapterMessage(context.Background(), map[string]any{"energy_level": 30}))
	assert.Error(t, c.SendCommAdapterMessage(context.Background(), map[string]any{"horn": true}))

	p.Terminate()
	p.Terminate()
	_, err = p.Controller("V1")
	assert.Error(t, err)
}

func TestNewPoolValidates(t *testing.T) {
	_, err := NewPool(simulator.Config{FailRate: 3}, fleet{}, newSink(), nil)
	assert.Error(t, err)
	_, err = NewPool(simulator.Config{}, nil, newSink(), nil)
	assert.Error(t, err)
}
