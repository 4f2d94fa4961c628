package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/agvkernel/core/metrics"
	"github.com/kilianp07/agvkernel/core/model"
)

func TestPromSink_RecordOrderEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, sink.RecordOrderEvent(coremetrics.OrderEvent{Order: "o1", Type: "T", State: model.OrderRaw, Created: true, Time: now}))
	require.NoError(t, sink.RecordOrderEvent(coremetrics.OrderEvent{Order: "o1", Type: "T", State: model.OrderRaw, Previous: model.OrderRaw, Time: now}))
	require.NoError(t, sink.RecordOrderEvent(coremetrics.OrderEvent{
		Order: "o1", Type: "T", State: model.OrderFinished, Previous: model.OrderBeingProcessed,
		Rejections: 2, LeadTime: 3 * time.Second, Time: now,
	}))

	expected := `
# HELP agvkernel_order_transitions_total Transport order state changes by resulting state
# TYPE agvkernel_order_transitions_total counter
agvkernel_order_transitions_total{state="FINISHED",type="T"} 1
agvkernel_order_transitions_total{state="RAW",type="T"} 1
`
	if err := testutil.CollectAndCompare(sink.orders, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(sink.rejections))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.leadTime))
}

func TestPromSink_RecordVehicleState(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	v := model.Vehicle{Name: "V1", EnergyLevel: 42, ProcState: model.ProcIdle}
	require.NoError(t, sink.RecordVehicleState(coremetrics.VehicleStateEvent{Vehicle: v}))
	v.ProcState = model.ProcProcessingOrder
	require.NoError(t, sink.RecordVehicleState(coremetrics.VehicleStateEvent{Vehicle: v}))

	assert.Equal(t, 42.0, testutil.ToFloat64(sink.energy.WithLabelValues("V1")))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.procState))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.procState.WithLabelValues("V1", model.ProcProcessingOrder.String())))
}

func TestPromSink_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	s1, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	s2, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, s1.RecordStrategyEvent(coremetrics.StrategyEvent{Strategy: "dispatcher", Action: "greedy_fallback"}))
	require.NoError(t, s2.RecordStrategyEvent(coremetrics.StrategyEvent{Strategy: "dispatcher", Action: "greedy_fallback"}))
	assert.Equal(t, 2.0, testutil.ToFloat64(s1.strategy.WithLabelValues("dispatcher", "greedy_fallback")))
}
