// Package simulator drives simulated vehicles along the routes of their drive
// orders. Vehicles report position, energy and state changes to a
// strategy.StatusSink, so they can back an in-process controller pool or a
// fake fleet on an MQTT broker.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/kilianp07/agvkernel/core/logger"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/core/strategy"
)

// ErrQueueFull is returned when a vehicle cannot accept another drive order.
var ErrQueueFull = errors.New("drive order queue full")

type drive struct {
	order string
	d     model.DriveOrder
}

// Vehicle executes drive orders one at a time.
type Vehicle struct {
	name    string
	cfg     Config
	battery *Battery
	sink    strategy.StatusSink
	log     logger.Logger

	mu       sync.Mutex
	rng      *rand.Rand
	queue    chan drive
	abort    chan struct{}
	position string
	charging bool
}

// NewVehicle returns a vehicle that is not yet running. cfg must have its
// defaults applied.
func NewVehicle(name string, cfg Config, sink strategy.StatusSink, log logger.Logger) *Vehicle {
	return &Vehicle{
		name:     name,
		cfg:      cfg,
		battery:  NewBattery(cfg.InitialEnergy, cfg.DrainPerStep, cfg.ChargePerStep),
		sink:     sink,
		log:      logger.OrNop(log),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		queue:    make(chan drive, cfg.QueueSize),
		position: cfg.InitialPositions[name],
	}
}

func (v *Vehicle) Name() string { return v.name }

func (v *Vehicle) Battery() *Battery { return v.battery }

// Position returns the last point the vehicle reported.
func (v *Vehicle) Position() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.position
}

// Seed makes the failure draws of the vehicle deterministic.
func (v *Vehicle) Seed(seed int64) {
	v.mu.Lock()
	v.rng = rand.New(rand.NewSource(seed))
	v.mu.Unlock()
}

// Drive queues a drive order. It never blocks.
func (v *Vehicle) Drive(order string, d model.DriveOrder) error {
	select {
	case v.queue <- drive{order: order, d: d.Clone()}:
		return nil
	default:
		return fmt.Errorf("%s: %w", v.name, ErrQueueFull)
	}
}

// Abort drops queued drive orders. With immediate set the running drive
// order stops at the next step as well.
func (v *Vehicle) Abort(immediate bool) {
drain:
	for {
		select {
		case <-v.queue:
		default:
			break drain
		}
	}
	if !immediate {
		return
	}
	v.mu.Lock()
	if v.abort != nil {
		close(v.abort)
		v.abort = nil
	}
	v.mu.Unlock()
}

// HandleMessage applies an adapter message. Supported keys are
// "energy_level" and "position".
func (v *Vehicle) HandleMessage(msg map[string]any) error {
	for k, val := range msg {
		switch k {
		case "energy_level":
			lvl, err := toFloat(val)
			if err != nil {
				return fmt.Errorf("energy_level: %w", err)
			}
			v.report(v.sink.UpdateVehicleEnergyLevel(v.name, v.battery.Set(lvl)))
		case "position":
			p, ok := val.(string)
			if !ok {
				return fmt.Errorf("position must be a string")
			}
			v.moveTo(p)
		default:
			return fmt.Errorf("unsupported message key %q", k)
		}
	}
	return nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

// Run reports the initial status and executes drive orders until ctx is
// done. Between drive orders a vehicle that reached a recharge location
// charges until full.
func (v *Vehicle) Run(ctx context.Context) {
	if p := v.Position(); p != "" {
		v.report(v.sink.UpdateVehiclePosition(v.name, p))
	}
	v.report(v.sink.UpdateVehicleEnergyLevel(v.name, v.battery.Level()))
	v.report(v.sink.UpdateVehicleState(v.name, model.VehicleIdle))

	ticker := time.NewTicker(v.cfg.StepDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-v.queue:
			v.setCharging(false)
			v.execute(ctx, d)
		case <-ticker.C:
			if !v.isCharging() {
				continue
			}
			v.report(v.sink.UpdateVehicleEnergyLevel(v.name, v.battery.Charge()))
			if v.battery.Full() {
				v.setCharging(false)
				v.report(v.sink.UpdateVehicleState(v.name, model.VehicleIdle))
			}
		}
	}
}

func (v *Vehicle) execute(ctx context.Context, d drive) {
	abort := make(chan struct{})
	v.mu.Lock()
	v.abort = abort
	v.mu.Unlock()
	defer func() {
		v.mu.Lock()
		if v.abort == abort {
			v.abort = nil
		}
		v.mu.Unlock()
	}()

	v.log.Debugf("%s: executing drive order of %s to %s", v.name, d.order, d.d.Destination.Location)
	v.report(v.sink.UpdateVehicleState(v.name, model.VehicleExecuting))
	for _, p := range d.d.Route {
		if p == v.Position() {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-abort:
			v.log.Infof("%s: drive order of %s aborted", v.name, d.order)
			v.report(v.sink.UpdateVehicleState(v.name, model.VehicleIdle))
			return
		case <-time.After(v.cfg.StepDelay):
		}
		v.moveTo(p)
		v.report(v.sink.UpdateVehicleEnergyLevel(v.name, v.battery.Drain()))
	}

	if v.fails() {
		v.report(v.sink.DriveOrderFailed(v.name, "simulated failure"))
	} else {
		v.report(v.sink.DriveOrderFinished(v.name))
	}
	if len(v.queue) > 0 {
		return
	}
	if d.d.Destination.Operation == v.cfg.RechargeOperation && !v.battery.Full() {
		v.setCharging(true)
		v.report(v.sink.UpdateVehicleState(v.name, model.VehicleCharging))
		return
	}
	v.report(v.sink.UpdateVehicleState(v.name, model.VehicleIdle))
}

func (v *Vehicle) moveTo(p string) {
	v.mu.Lock()
	v.position = p
	v.mu.Unlock()
	v.report(v.sink.UpdateVehiclePosition(v.name, p))
}

func (v *Vehicle) fails() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cfg.FailRate > 0 && v.rng.Float64() < v.cfg.FailRate
}

func (v *Vehicle) setCharging(on bool) {
	v.mu.Lock()
	v.charging = on
	v.mu.Unlock()
}

func (v *Vehicle) isCharging() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.charging
}

// report logs a status update the kernel refused.
func (v *Vehicle) report(err error) {
	if err != nil {
		v.log.Debugf("%s: status not accepted: %v", v.name, err)
	}
}
