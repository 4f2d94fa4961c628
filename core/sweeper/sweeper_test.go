package sweeper

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvkernel/core/domain"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/core/orderpool"
	"github.com/kilianp07/agvkernel/core/plantmodel"
	"github.com/kilianp07/agvkernel/internal/eventbus"
)

func newPool(t *testing.T) *orderpool.Pool {
	t.Helper()
	plant := plantmodel.New(domain.New(eventbus.New()), nil)
	require.NoError(t, plant.Load(model.PlantModel{
		Name:          "test",
		Points:        []model.Point{{Name: "P1"}},
		LocationTypes: []model.LocationType{{Name: "station"}},
		Locations:     []model.Location{{Name: "L1", Type: "station", Links: []string{"P1"}}},
		Vehicles:      []model.Vehicle{{Name: "V1"}},
	}))
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	return orderpool.New(plant, nil, orderpool.WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
}

func withdrawn(t *testing.T, p *orderpool.Pool, name, seq string) model.TransportOrder {
	t.Helper()
	_, err := p.CreateTransportOrder(orderpool.TransportOrderSpec{
		Name:             name,
		Destinations:     []model.Destination{{Location: "L1"}},
		WrappingSequence: seq,
	})
	require.NoError(t, err)
	ok, err := p.MarkWithdrawal(name, true, false)
	require.NoError(t, err)
	require.True(t, ok)
	o, err := p.TransportOrder(name)
	require.NoError(t, err)
	return o
}

func names(orders []model.TransportOrder) []string {
	var out []string
	for _, o := range orders {
		out = append(out, o.Name)
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	var def Config
	def.SetDefaults()
	assert.NoError(t, def.Validate())

	cases := []struct {
		name string
		cfg  Config
	}{
		{"short interval", Config{Interval: time.Millisecond, Policy: PolicyAge, SweepAge: time.Hour}},
		{"unknown policy", Config{Interval: time.Second, Policy: "lru"}},
		{"zero age", Config{Interval: time.Second, Policy: PolicyAge}},
		{"negative amount", Config{Interval: time.Second, Policy: PolicyAmount, MaxOrders: -1}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Error(t, c.cfg.Validate())
		})
	}
}

func TestSweepByAmountRemovesOldest(t *testing.T) {
	p := newPool(t)
	for _, n := range []string{"O1", "O2", "O3", "O4", "O5"} {
		withdrawn(t, p, n, "")
	}
	_, err := p.CreateTransportOrder(orderpool.TransportOrderSpec{Name: "LIVE", Destinations: []model.Destination{{Location: "L1"}}})
	require.NoError(t, err)

	s, err := New(p, Config{Interval: time.Second, Policy: PolicyAmount, MaxOrders: 2, MaxSequences: 1}, nil)
	require.NoError(t, err)
	res, err := s.SweepNow(p.Now())
	require.NoError(t, err)
	assert.Equal(t, Result{Orders: 3}, res)
	assert.Equal(t, []string{"O4", "O5", "LIVE"}, names(p.TransportOrders(nil)))

	res, err = s.SweepNow(p.Now())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestSweepByAgeRespectsThreshold(t *testing.T) {
	p := newPool(t)
	o1 := withdrawn(t, p, "O1", "")
	withdrawn(t, p, "O2", "")

	s, err := New(p, Config{Interval: time.Second, Policy: PolicyAge, SweepAge: time.Hour}, nil)
	require.NoError(t, err)

	res, err := s.SweepNow(o1.CreationTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, res.Orders)

	res, err = s.SweepNow(o1.CreationTime.Add(time.Hour + time.Nanosecond))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Orders)
	assert.Equal(t, []string{"O2"}, names(p.TransportOrders(nil)))
}

func TestSweepKeepsMembersOfUnfinishedSequences(t *testing.T) {
	p := newPool(t)
	_, err := p.CreateOrderSequence(orderpool.OrderSequenceSpec{Name: "S1"})
	require.NoError(t, err)
	withdrawn(t, p, "O1", "S1")

	s, err := New(p, Config{Interval: time.Second, Policy: PolicyAge, SweepAge: time.Second}, nil)
	require.NoError(t, err)
	later := p.Now().Add(24 * time.Hour)

	res, err := s.SweepNow(later)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	_, err = p.TransportOrder("O1")
	assert.NoError(t, err)

	require.NoError(t, p.SetOrderSequenceComplete("S1"))
	seq, err := p.OrderSequence("S1")
	require.NoError(t, err)
	require.True(t, seq.Finished)

	res, err = s.SweepNow(later)
	require.NoError(t, err)
	assert.Equal(t, Result{Orders: 1, Sequences: 1}, res)
	assert.Empty(t, p.TransportOrders(nil))
	assert.Empty(t, p.OrderSequences())
}

func TestSweeperMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	ResetMetrics(reg)
	defer ResetMetrics(nil)

	p := newPool(t)
	withdrawn(t, p, "O1", "")
	s, err := New(p, Config{Interval: time.Second, Policy: PolicyAmount}, nil)
	require.NoError(t, err)
	_, err = s.SweepNow(p.Now())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(sweepRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(removed.WithLabelValues("order")))
	assert.Equal(t, 0.0, testutil.ToFloat64(sweepFailures))
}

func TestSweeperRunsOnSchedule(t *testing.T) {
	p := newPool(t)
	withdrawn(t, p, "O1", "")
	s, err := New(p, Config{Interval: time.Second, Policy: PolicyAmount}, nil)
	require.NoError(t, err)

	s.Start()
	s.Start()
	defer s.Stop()
	assert.Eventually(t, func() bool { return len(p.TransportOrders(nil)) == 0 },
		3*time.Second, 50*time.Millisecond)
	s.Stop()
	s.Stop()
}
