package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/agvkernel/core/metrics"
	"github.com/kilianp07/agvkernel/infra/logger"
)

// InfluxConfig locates the InfluxDB bucket receiving lifecycle points.
type InfluxConfig struct {
	URL     string        `json:"url"`
	Token   string        `json:"token"`
	Org     string        `json:"org"`
	Bucket  string        `json:"bucket"`
	Timeout time.Duration `json:"timeout"`
}

// InfluxSink writes kernel events to an InfluxDB instance using the official
// client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	timeout  time.Duration
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		timeout:  cfg.Timeout,
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), sink.timeout)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordOrderEvent writes one point per order state change.
func (s *InfluxSink) RecordOrderEvent(ev coremetrics.OrderEvent) error {
	if !ev.Created && ev.State == ev.Previous {
		return nil
	}
	p := write.NewPointWithMeasurement("transport_order").
		AddTag("order", ev.Order).
		AddTag("state", ev.State.String()).
		AddTag("dispensable", strconv.FormatBool(ev.Dispensable))
	if ev.Type != "" {
		p = p.AddTag("type", ev.Type)
	}
	if ev.Vehicle != "" {
		p = p.AddTag("vehicle", ev.Vehicle)
	}
	if ev.Sequence != "" {
		p = p.AddTag("sequence", ev.Sequence)
	}
	p = p.AddField("drive_orders", ev.DriveOrders).
		AddField("rejections", ev.Rejections).
		AddField("lead_time_ms", ev.LeadTime.Milliseconds()).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordVehicleState writes a snapshot of a vehicle.
func (s *InfluxSink) RecordVehicleState(ev coremetrics.VehicleStateEvent) error {
	v := ev.Vehicle
	p := write.NewPointWithMeasurement("vehicle_state").
		AddTag("vehicle", v.Name).
		AddTag("state", v.State.String()).
		AddTag("proc_state", v.ProcState.String()).
		AddTag("integration_level", v.IntegrationLevel.String()).
		AddField("energy_level", v.EnergyLevel).
		AddField("position", v.CurrentPosition).
		AddField("transport_order", v.TransportOrder).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordKernelState writes a point per finished kernel transition.
func (s *InfluxSink) RecordKernelState(ev coremetrics.KernelStateEvent) error {
	p := write.NewPointWithMeasurement("kernel_state").
		AddTag("from", ev.Old.String()).
		AddTag("to", ev.New.String()).
		AddField("changed", ev.Old != ev.New).
		SetTime(ev.Time)
	return s.write(p)
}

// Close flushes and closes the client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
