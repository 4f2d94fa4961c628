package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/factory"
	"github.com/kilianp07/agvkernel/core/model"
)

type recordSink struct {
	orders   int
	vehicles int
	fail     error
}

func (r *recordSink) RecordOrderEvent(OrderEvent) error {
	r.orders++
	return r.fail
}

func (r *recordSink) RecordVehicleState(VehicleStateEvent) error {
	r.vehicles++
	return nil
}

// orderOnly implements no optional recorder.
type orderOnly struct{ count int }

func (o *orderOnly) RecordOrderEvent(OrderEvent) error {
	o.count++
	return nil
}

func TestMultiSinkForwardsToAll(t *testing.T) {
	boom := errors.New("boom")
	s1 := &recordSink{fail: boom}
	s2 := &recordSink{}
	s3 := &orderOnly{}
	m := NewMultiSink(s1, s2, s3)

	err := m.RecordOrderEvent(OrderEvent{Order: "o1", State: model.OrderFinished})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, s1.orders)
	assert.Equal(t, 1, s2.orders)
	assert.Equal(t, 1, s3.count)

	require.NoError(t, m.RecordVehicleState(VehicleStateEvent{}))
	assert.Equal(t, 1, s1.vehicles)
	assert.Equal(t, 1, s2.vehicles)
	require.NoError(t, m.RecordKernelState(KernelStateEvent{}))
	require.NoError(t, m.RecordStrategyEvent(StrategyEvent{}))
}

func TestNewMetricsSink(t *testing.T) {
	s, err := NewMetricsSink(nil)
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, s)

	require.NoError(t, RegisterMetricsSink("test-record", func(map[string]any) (MetricsSink, error) {
		return &recordSink{}, nil
	}))
	require.NoError(t, RegisterMetricsSink("test-orders", func(map[string]any) (MetricsSink, error) {
		return &orderOnly{}, nil
	}))
	require.NoError(t, RegisterMetricsSink("test-nop", func(map[string]any) (MetricsSink, error) {
		return NopSink{}, nil
	}))
	assert.Contains(t, SinkTypes(), "test-record")

	s, err = NewMetricsSink([]factory.ModuleConfig{{Type: "test-record"}, {Type: "none"}, {Type: "test-nop"}})
	require.NoError(t, err)
	assert.IsType(t, &recordSink{}, s)

	s, err = NewMetricsSink([]factory.ModuleConfig{{Type: "none"}, {Type: "test-nop"}})
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, s)

	s, err = NewMetricsSink([]factory.ModuleConfig{{Type: "test-record"}, {Type: "test-orders"}})
	require.NoError(t, err)
	multi, ok := s.(*MultiSink)
	require.True(t, ok)
	assert.Len(t, multi.Sinks, 2)

	_, err = NewMetricsSink([]factory.ModuleConfig{{Type: "test-record"}, {Type: "test-record"}})
	assert.ErrorIs(t, err, errs.ErrIllegalArgument)

	_, err = NewMetricsSink([]factory.ModuleConfig{{Type: "test-record"}, {Type: "missing"}})
	assert.ErrorIs(t, err, errs.ErrObjectUnknown)
	assert.ErrorContains(t, err, "metrics sink 1")
}
