// Package dispatch implements the default Dispatcher strategy.
//
// A dispatch run promotes ACTIVE orders whose dependencies are resolved,
// routes every dispatchable order for every available vehicle and matches
// vehicles to orders with a linear program, falling back to a greedy
// matching. Assigned orders get their routes attached and the first drive
// order is sent to the vehicle.
package dispatch

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/events"
	"github.com/kilianp07/agvkernel/core/logger"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/core/orderpool"
	"github.com/kilianp07/agvkernel/core/plantmodel"
	"github.com/kilianp07/agvkernel/core/strategy"
	"github.com/kilianp07/agvkernel/internal/eventbus"
)

// Deps are the collaborators of a Dispatcher. Bus is optional.
type Deps struct {
	Pool        *orderpool.Pool
	Plant       *plantmodel.Store
	Router      strategy.Router
	Scheduler   strategy.Scheduler
	Controllers strategy.VehicleControllerPool
	Bus         eventbus.EventBus
}

// Dispatcher assigns transport orders to vehicles.
type Dispatcher struct {
	cfg  Config
	deps Deps
	log  logger.Logger

	mu      sync.Mutex
	ctx     context.Context
	running bool
}

var _ strategy.Dispatcher = (*Dispatcher)(nil)

// New returns a dispatcher. It does nothing until initialized.
func New(cfg Config, deps Deps, log logger.Logger) (*Dispatcher, error) {
	if deps.Pool == nil || deps.Plant == nil || deps.Router == nil || deps.Controllers == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to New")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Dispatcher{cfg: cfg, deps: deps, log: logger.OrNop(log), ctx: context.Background()}, nil
}

func (d *Dispatcher) Initialize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctx = ctx
	d.running = true
	d.log.Infof("dispatcher initialized (solver=%s)", d.cfg.Solver)
	return nil
}

func (d *Dispatcher) Terminate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	d.log.Infof("dispatcher terminated")
}

// Dispatch runs a full dispatch over all vehicles.
func (d *Dispatcher) Dispatch() { d.run("") }

// DispatchVehicle runs a dispatch restricted to one vehicle.
func (d *Dispatcher) DispatchVehicle(vehicle string) { d.run(vehicle) }

func (d *Dispatcher) run(only string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	start := time.Now()
	defer func() { dispatchDuration.Observe(time.Since(start).Seconds()) }()
	dispatchRuns.Inc()

	d.promoteOrders()

	vehicles := d.availableVehicles(only)
	orders := d.dispatchableOrders()
	if len(vehicles) == 0 {
		return
	}
	locs := d.locations()
	opts, routable := d.options(vehicles, orders, locs)
	d.dismissUnroutable(orders, routable)

	chosen := d.solve(opts, len(vehicles), len(orders))
	assigned := map[string]bool{}
	for _, k := range chosen {
		o := opts[k]
		v, order := vehicles[o.vehicle], orders[o.order]
		if d.assign(v.Name, order.Name, o.drives) {
			assigned[v.Name] = true
		}
	}
	d.park(vehicles, assigned)
	d.log.Debugw("dispatch run", map[string]any{
		"vehicles": len(vehicles),
		"orders":   len(orders),
		"options":  len(opts),
		"assigned": len(assigned),
	})
}

// promoteOrders moves ACTIVE orders with resolved dependencies to
// DISPATCHABLE and withdraws those whose dependencies can no longer finish.
func (d *Dispatcher) promoteOrders() {
	active := d.deps.Pool.TransportOrders(func(o model.TransportOrder) bool {
		return o.State == model.OrderActive
	})
	for _, o := range active {
		broken, err := d.dependenciesBroken(o)
		if err != nil {
			continue
		}
		if broken {
			d.log.Warnf("withdrawing %s: a dependency did not finish", o.Name)
			if _, err := d.deps.Pool.MarkWithdrawal(o.Name, true, false); err != nil {
				d.log.Warnf("withdraw %s: %v", o.Name, err)
			}
			continue
		}
		ok, err := d.deps.Pool.DependenciesResolved(o.Name)
		if err != nil || !ok {
			continue
		}
		if _, err := d.deps.Pool.SetTransportOrderState(o.Name, model.OrderDispatchable); err != nil {
			d.log.Warnf("promote %s: %v", o.Name, err)
		}
	}
}

func (d *Dispatcher) dependenciesBroken(o model.TransportOrder) (bool, error) {
	for _, dep := range o.Dependencies {
		do, err := d.deps.Pool.TransportOrder(dep)
		if err != nil {
			continue
		}
		if do.State == model.OrderFailed || do.State == model.OrderWithdrawn {
			return true, nil
		}
	}
	return false, nil
}

// availableVehicles returns utilizable vehicles without an order, sorted by
// name.
func (d *Dispatcher) availableVehicles(only string) []model.Vehicle {
	var out []model.Vehicle
	for _, v := range d.deps.Plant.Vehicles() {
		if only != "" && v.Name != only {
			continue
		}
		if !v.ShouldBeUtilized() || v.TransportOrder != "" || v.CurrentPosition == "" {
			continue
		}
		if v.ProcState != model.ProcIdle && v.ProcState != model.ProcAwaitingOrder {
			continue
		}
		switch v.State {
		case model.VehicleIdle, model.VehicleCharging, model.VehicleExecuting:
		default:
			continue
		}
		if !d.cfg.AssignCriticalEnergy && v.EnergyState() == model.EnergyCritical {
			continue
		}
		out = append(out, v)
	}
	return out
}

// dispatchableOrders returns DISPATCHABLE orders that may start now, the most
// urgent first: earliest deadline, then oldest.
func (d *Dispatcher) dispatchableOrders() []model.TransportOrder {
	seqs := map[string]model.OrderSequence{}
	for _, s := range d.deps.Pool.OrderSequences() {
		seqs[s.Name] = s
	}
	orders := d.deps.Pool.TransportOrders(func(o model.TransportOrder) bool {
		if o.State != model.OrderDispatchable || o.WithdrawalPending {
			return false
		}
		if o.WrappingSequence == "" {
			return true
		}
		next, ok := seqs[o.WrappingSequence].NextUnfinishedOrder()
		return ok && next == o.Name
	})
	slices.SortStableFunc(orders, func(a, b model.TransportOrder) int {
		switch {
		case a.Deadline.IsZero() && b.Deadline.IsZero():
			return 0
		case a.Deadline.IsZero():
			return 1
		case b.Deadline.IsZero():
			return -1
		}
		return a.Deadline.Compare(b.Deadline)
	})
	return orders
}

func (d *Dispatcher) locations() map[string]model.Location {
	out := map[string]model.Location{}
	for _, l := range d.deps.Plant.Locations() {
		out[l.Name] = l
	}
	return out
}

// eligible reports whether v may process o at all, regardless of routing.
func (d *Dispatcher) eligible(v model.Vehicle, o model.TransportOrder) bool {
	if o.IntendedVehicle != "" && o.IntendedVehicle != v.Name {
		return false
	}
	if v.OrderSequence != "" && v.OrderSequence != o.WrappingSequence {
		return false
	}
	if o.WrappingSequence != "" {
		seq, err := d.deps.Pool.OrderSequence(o.WrappingSequence)
		if err != nil || (seq.ProcessingVehicle != "" && seq.ProcessingVehicle != v.Name) {
			return false
		}
	}
	return true
}

// options routes every eligible pairing. routable maps each order index to
// whether some vehicle could route it; an order without eligible vehicles is
// absent.
func (d *Dispatcher) options(vehicles []model.Vehicle, orders []model.TransportOrder, locs map[string]model.Location) ([]option, map[int]bool) {
	var opts []option
	routable := map[int]bool{}
	for oi, o := range orders {
		for vi, v := range vehicles {
			if !d.eligible(v, o) {
				continue
			}
			drives, cost, err := d.planDrives(v, v.CurrentPosition, o.DriveOrders, locs)
			if err != nil {
				if _, seen := routable[oi]; !seen {
					routable[oi] = false
				}
				d.reject(o, v.Name, err.Error())
				continue
			}
			routable[oi] = true
			opts = append(opts, option{vehicle: vi, order: oi, cost: cost, drives: drives})
		}
	}
	return opts, routable
}

// reject records that vehicle cannot process o, once per vehicle.
func (d *Dispatcher) reject(o model.TransportOrder, vehicle, reason string) {
	for _, r := range o.Rejections {
		if r.Vehicle == vehicle {
			return
		}
	}
	if err := d.deps.Pool.AddRejection(o.Name, vehicle, reason); err != nil {
		d.log.Warnf("record rejection of %s by %s: %v", o.Name, vehicle, err)
	}
}

// planDrives attaches routes to drives, starting at from. Each destination is
// reached through the cheapest of its location's linked points.
func (d *Dispatcher) planDrives(v model.Vehicle, from string, drives []model.DriveOrder, locs map[string]model.Location) ([]model.DriveOrder, int64, error) {
	out := make([]model.DriveOrder, len(drives))
	pos := from
	var total int64
	for i, dr := range drives {
		loc, ok := locs[dr.Destination.Location]
		if !ok {
			return nil, 0, errs.NewObjectUnknownError("location", dr.Destination.Location)
		}
		if loc.Locked {
			return nil, 0, fmt.Errorf("location %s is locked: %w", loc.Name, strategy.ErrNoRoute)
		}
		var (
			best     []string
			bestCost int64
		)
		for _, p := range loc.Links {
			pts, cost, err := d.deps.Router.Route(v, pos, p)
			if err != nil {
				continue
			}
			if best == nil || cost < bestCost {
				best, bestCost = pts, cost
			}
		}
		if best == nil {
			return nil, 0, fmt.Errorf("%s -> %s: %w", pos, loc.Name, strategy.ErrNoRoute)
		}
		out[i] = dr.Clone()
		out[i].Route = best
		out[i].RouteCost = bestCost
		pos = best[len(best)-1]
		total += bestCost
	}
	return out, total, nil
}

// dismissUnroutable withdraws dispensable orders that had eligible vehicles
// but none of them could route the order.
func (d *Dispatcher) dismissUnroutable(orders []model.TransportOrder, routable map[int]bool) {
	if !d.cfg.WithdrawUnroutableDispensable {
		return
	}
	for oi, ok := range routable {
		o := orders[oi]
		if ok || !o.Dispensable {
			continue
		}
		d.log.Infof("withdrawing dispensable order %s: no vehicle can route it", o.Name)
		if _, err := d.deps.Pool.MarkWithdrawal(o.Name, true, false); err != nil {
			d.log.Warnf("withdraw %s: %v", o.Name, err)
		}
	}
}

func (d *Dispatcher) solve(opts []option, vehicles, orders int) []int {
	if len(opts) == 0 {
		return nil
	}
	if d.cfg.Solver != SolverLP || len(opts) > d.cfg.MaxLPVariables {
		return solveGreedy(opts)
	}
	d.publish("lp_attempt", nil)
	chosen, err := lpSolve(opts, vehicles, orders)
	if err == nil {
		return chosen
	}
	solverFallbacks.Inc()
	d.log.Warnf("LP assignment failed: %v", err)
	d.publish("greedy_fallback", err)
	return solveGreedy(opts)
}

func (d *Dispatcher) publish(action string, err error) {
	if d.deps.Bus != nil {
		d.deps.Bus.Publish(events.StrategyEvent{Strategy: "dispatcher", Action: action, Err: err})
	}
}

// assign hands the order to the vehicle and sends the first drive order. A
// vehicle that cannot be reached gets its order withdrawn again.
func (d *Dispatcher) assign(vehicle, order string, drives []model.DriveOrder) bool {
	o, err := d.deps.Pool.AssignTransportOrder(order, vehicle, drives)
	if err != nil {
		d.log.Warnf("assign %s to %s: %v", order, vehicle, err)
		return false
	}
	assignments.Inc()
	d.log.Infof("assigned %s to %s", order, vehicle)

	drive, _ := o.CurrentDrive()
	ctrl, err := d.deps.Controllers.Controller(vehicle)
	if err == nil {
		err = ctrl.SendDriveOrder(d.ctx, o, drive)
	}
	if err != nil {
		d.log.Errorf("send drive order of %s to %s: %v", order, vehicle, err)
		if _, werr := d.deps.Pool.MarkWithdrawal(order, true, false); werr != nil {
			d.log.Errorf("withdraw %s: %v", order, werr)
		}
		_ = d.deps.Plant.SetVehicleProcState(vehicle, model.ProcAwaitingOrder)
	}
	return true
}

// park sets vehicles that finished their work and got nothing new to IDLE.
// Vehicles bound to a sequence keep waiting for its next order.
func (d *Dispatcher) park(vehicles []model.Vehicle, assigned map[string]bool) {
	for _, v := range vehicles {
		if assigned[v.Name] || v.ProcState != model.ProcAwaitingOrder || v.OrderSequence != "" {
			continue
		}
		if err := d.deps.Plant.SetVehicleProcState(v.Name, model.ProcIdle); err != nil {
			d.log.Warnf("park %s: %v", v.Name, err)
		}
	}
}
