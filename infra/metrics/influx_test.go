package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/agvkernel/core/metrics"
	"github.com/kilianp07/agvkernel/core/model"
)

type lineRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (l *lineRecorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		l.mu.Lock()
		l.bodies = append(l.bodies, strings.TrimSpace(string(data)))
		l.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (l *lineRecorder) lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.bodies...)
}

func line(p *write.Point) string {
	return strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
}

func TestInfluxSink_RecordOrderEvent(t *testing.T) {
	rec := &lineRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "token", Org: "org", Bucket: "bucket"})
	t.Cleanup(sink.Close)

	now := time.Now()
	ev := coremetrics.OrderEvent{
		Order:       "TOrder-1",
		Type:        "Transport",
		State:       model.OrderFinished,
		Previous:    model.OrderBeingProcessed,
		Vehicle:     "V1",
		DriveOrders: 2,
		Rejections:  1,
		LeadTime:    1500 * time.Millisecond,
		Time:        now,
	}
	require.NoError(t, sink.RecordOrderEvent(ev))

	p := write.NewPointWithMeasurement("transport_order").
		AddTag("order", "TOrder-1").
		AddTag("state", "FINISHED").
		AddTag("dispensable", "false").
		AddTag("type", "Transport").
		AddTag("vehicle", "V1").
		AddField("drive_orders", 2).
		AddField("rejections", 1).
		AddField("lead_time_ms", int64(1500)).
		SetTime(now)
	assert.Equal(t, []string{line(p)}, rec.lines())
}

func TestInfluxSink_SkipsUnchangedState(t *testing.T) {
	rec := &lineRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Org: "org", Bucket: "bucket"})
	t.Cleanup(sink.Close)

	require.NoError(t, sink.RecordOrderEvent(coremetrics.OrderEvent{
		Order: "o", State: model.OrderActive, Previous: model.OrderActive, Time: time.Now(),
	}))
	assert.Empty(t, rec.lines())
}

func TestInfluxSink_RecordVehicleAndKernelState(t *testing.T) {
	rec := &lineRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL + "/api/v2/write", Org: "org", Bucket: "bucket"})
	t.Cleanup(sink.Close)

	now := time.Now()
	v := model.Vehicle{
		Name:             "V1",
		State:            model.VehicleIdle,
		ProcState:        model.ProcIdle,
		IntegrationLevel: model.IntegrationToBeUtilized,
		EnergyLevel:      80,
		CurrentPosition:  "P1",
	}
	require.NoError(t, sink.RecordVehicleState(coremetrics.VehicleStateEvent{Vehicle: v, Time: now}))
	require.NoError(t, sink.RecordKernelState(coremetrics.KernelStateEvent{
		Old: model.KernelModelling, New: model.KernelOperating, Time: now,
	}))

	p1 := write.NewPointWithMeasurement("vehicle_state").
		AddTag("vehicle", "V1").
		AddTag("state", v.State.String()).
		AddTag("proc_state", v.ProcState.String()).
		AddTag("integration_level", v.IntegrationLevel.String()).
		AddField("energy_level", 80).
		AddField("position", "P1").
		AddField("transport_order", "").
		SetTime(now)
	p2 := write.NewPointWithMeasurement("kernel_state").
		AddTag("from", "MODELLING").
		AddTag("to", "OPERATING").
		AddField("changed", true).
		SetTime(now)
	assert.Equal(t, []string{line(p1), line(p2)}, rec.lines())
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "tok", Org: "org", Bucket: "bucket"})
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
