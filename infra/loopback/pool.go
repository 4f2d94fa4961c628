// Package loopback implements an in-process vehicle controller pool. Every
// vehicle of the plant model gets a simulated vehicle that reports straight
// back to the kernel, so the kernel can run without a broker.
package loopback

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/agvkernel/core/logger"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/core/strategy"
	"github.com/kilianp07/agvkernel/simulator"
)

// Fleet lists the vehicles of the plant model.
type Fleet interface {
	Vehicle(name string) (model.Vehicle, error)
	Vehicles() []model.Vehicle
}

// Pool is a strategy.VehicleControllerPool backed by simulated vehicles.
type Pool struct {
	cfg   simulator.Config
	fleet Fleet
	sink  strategy.StatusSink
	log   logger.Logger

	mu       sync.Mutex
	vehicles map[string]*simulator.Vehicle
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

var _ strategy.VehicleControllerPool = (*Pool)(nil)

func NewPool(cfg simulator.Config, fleet Fleet, sink strategy.StatusSink, log logger.Logger) (*Pool, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fleet == nil || sink == nil {
		return nil, fmt.Errorf("loopback: fleet and status sink are required")
	}
	return &Pool{cfg: cfg, fleet: fleet, sink: sink, log: logger.OrNop(log)}, nil
}

// Initialize starts one simulated vehicle per known vehicle. Status reports
// are delivered asynchronously because the kernel initializes the pool while
// switching modes.
func (p *Pool) Initialize(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.vehicles = map[string]*simulator.Vehicle{}
	for _, v := range p.fleet.Vehicles() {
		p.start(v.Name)
	}
	p.log.Infof("loopback pool started with %d vehicles", len(p.vehicles))
	return nil
}

func (p *Pool) start(name string) *simulator.Vehicle {
	v := simulator.NewVehicle(name, p.cfg, p.sink, p.log)
	p.vehicles[name] = v
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		v.Run(p.ctx)
	}()
	return v
}

// Terminate stops all simulated vehicles.
func (p *Pool) Terminate() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.vehicles = nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
}

// Controller returns the controller of a vehicle. Vehicles created after
// Initialize are started on first use.
func (p *Pool) Controller(name string) (strategy.VehicleController, error) {
	if _, err := p.fleet.Vehicle(name); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return nil, fmt.Errorf("loopback: pool is not initialized")
	}
	v, ok := p.vehicles[name]
	if !ok {
		v = p.start(name)
	}
	return &controller{v: v}, nil
}

type controller struct {
	v *simulator.Vehicle
}

func (c *controller) SendDriveOrder(_ context.Context, order model.TransportOrder, drive model.DriveOrder) error {
	return c.v.Drive(order.Name, drive)
}

func (c *controller) AbortDriveOrder(_ context.Context, immediate bool) error {
	c.v.Abort(immediate)
	return nil
}

func (c *controller) SendCommAdapterMessage(_ context.Context, msg map[string]any) error {
	return c.v.HandleMessage(msg)
}
