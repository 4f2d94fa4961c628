// Package coordinator decides when the dispatcher and router have to run.
//
// It listens synchronously to plant model changes, evaluates the pure trigger
// functions and defers the resulting strategy calls onto a serialized
// executor. A strategy call therefore never runs inside the critical section
// that caused it, and a dispatch requested while another dispatch is still
// queued is merged into it.
package coordinator

import (
	"fmt"
	"sync"

	"github.com/kilianp07/agvkernel/core/events"
	"github.com/kilianp07/agvkernel/core/logger"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/core/strategy"
	"github.com/kilianp07/agvkernel/internal/eventbus"
)

const dispatchKey = "dispatch"

// Coordinator turns change events into deferred strategy calls.
type Coordinator struct {
	bus  eventbus.EventBus
	opts Options
	log  logger.Logger

	mu         sync.Mutex
	exec       *Executor
	dispatcher strategy.Dispatcher
	router     strategy.Router
	sub        eventbus.SubscriberID
}

// New returns a stopped coordinator.
func New(bus eventbus.EventBus, opts Options, log logger.Logger) *Coordinator {
	return &Coordinator{bus: bus, opts: opts, log: logger.OrNop(log)}
}

// Options returns the configured options.
func (c *Coordinator) Options() Options { return c.opts }

// Start subscribes to the bus and starts the executor. Calling Start on a
// running coordinator is a no-op.
func (c *Coordinator) Start(d strategy.Dispatcher, r strategy.Router) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exec != nil {
		return
	}
	c.dispatcher = d
	c.router = r
	c.exec = NewExecutor(c.log)
	c.sub = c.bus.SubscribeFunc(c.handle)
	c.log.Infof("dispatch coordinator started")
}

// Stop unsubscribes, drops queued actions and waits for a running one.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	exec := c.exec
	if exec == nil {
		c.mu.Unlock()
		return
	}
	c.bus.UnsubscribeFunc(c.sub)
	c.exec = nil
	c.mu.Unlock()
	exec.Stop()
	c.log.Infof("dispatch coordinator stopped")
}

// Flush waits until all actions queued so far have run.
func (c *Coordinator) Flush() {
	if exec := c.executor(); exec != nil {
		exec.Flush()
	}
}

func (c *Coordinator) executor() *Executor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exec
}

// ScheduleDispatch requests a full dispatch run. It reports false when the
// request was merged into an already queued run or the coordinator is
// stopped.
func (c *Coordinator) ScheduleDispatch() bool {
	exec := c.executor()
	if exec == nil {
		return false
	}
	triggers.WithLabelValues("dispatch").Inc()
	ok := exec.SubmitOnce(dispatchKey, func() { c.dispatcher.Dispatch() })
	if !ok {
		coalesced.Inc()
	}
	return ok
}

// ScheduleReroute requests rerouting of one vehicle.
func (c *Coordinator) ScheduleReroute(vehicle string, kind model.ReroutingType) bool {
	exec := c.executor()
	if exec == nil {
		return false
	}
	triggers.WithLabelValues("reroute").Inc()
	return exec.Submit(func() {
		if err := c.dispatcher.Reroute(vehicle, kind); err != nil {
			actionErrors.Inc()
			c.log.Warnf("reroute %s: %v", vehicle, err)
		}
	})
}

// ScheduleTopologyUpdate requests a routing topology update for paths,
// followed by rerouting all vehicles when rerouteAll is set.
func (c *Coordinator) ScheduleTopologyUpdate(paths []model.Path, rerouteAll bool) bool {
	exec := c.executor()
	if exec == nil {
		return false
	}
	triggers.WithLabelValues("topology").Inc()
	return exec.Submit(func() {
		c.router.UpdateRoutingTopology(paths)
		if rerouteAll {
			triggers.WithLabelValues("reroute_all").Inc()
			c.dispatcher.RerouteAll(model.RerouteRegular)
		}
	})
}

// handle runs on the publishing goroutine. It must only enqueue.
func (c *Coordinator) handle(e eventbus.Event) {
	defer func() {
		if r := recover(); r != nil {
			actionErrors.Inc()
			c.log.Errorf("evaluating %T: %v", e, r)
		}
	}()
	switch ev := e.(type) {
	case events.VehicleChangedEvent:
		d := VehicleTriggers(ev.Previous, ev.Current, c.opts)
		c.apply(d, ev.Current.Name, nil)
	case events.PathChangedEvent:
		d := PathTriggers(ev.Previous, ev.Current, c.opts)
		c.apply(d, "", []model.Path{ev.Current})
	}
}

func (c *Coordinator) apply(d Decision, vehicle string, paths []model.Path) {
	if d.Empty() {
		return
	}
	c.log.Debugw("coordinator decision", map[string]any{
		"vehicle":  vehicle,
		"decision": fmt.Sprintf("%+v", d),
	})
	if d.Reroute {
		c.ScheduleReroute(vehicle, model.RerouteRegular)
	}
	if d.UpdateTopology {
		c.ScheduleTopologyUpdate(paths, d.RerouteAll)
	}
	if d.Dispatch {
		c.ScheduleDispatch()
	}
}
