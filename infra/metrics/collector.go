package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/agvkernel/core/events"
	coremetrics "github.com/kilianp07/agvkernel/core/metrics"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/infra/logger"
	"github.com/kilianp07/agvkernel/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for
// events. It stops when the context is canceled or the bus is closed. The
// returned channel is closed once the collector goroutine exited.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := Record(sink, ev, time.Now()); err != nil {
					log.Warnf("record %T: %v", ev, err)
				}
			}
		}
	}()
	return done
}

// Record translates one bus event to the matching sink call. Events the sink
// has no recorder for are skipped.
func Record(sink coremetrics.MetricsSink, ev eventbus.Event, now time.Time) error {
	switch e := ev.(type) {
	case events.TransportOrderChangedEvent:
		if e.Current == nil {
			return nil
		}
		return sink.RecordOrderEvent(orderEvent(e, now))
	case events.VehicleChangedEvent:
		if r, ok := sink.(coremetrics.VehicleStateRecorder); ok {
			return r.RecordVehicleState(coremetrics.VehicleStateEvent{Vehicle: e.Current, Time: now})
		}
	case events.KernelStateTransitionEvent:
		if r, ok := sink.(coremetrics.KernelStateRecorder); ok && e.Finished {
			return r.RecordKernelState(coremetrics.KernelStateEvent{Old: e.Old, New: e.New, Time: now})
		}
	case events.StrategyEvent:
		if r, ok := sink.(coremetrics.StrategyRecorder); ok {
			errStr := ""
			if e.Err != nil {
				errStr = e.Err.Error()
			}
			return r.RecordStrategyEvent(coremetrics.StrategyEvent{
				Strategy: e.Strategy,
				Action:   e.Action,
				Error:    errStr,
				Time:     now,
			})
		}
	}
	return nil
}

func orderEvent(e events.TransportOrderChangedEvent, now time.Time) coremetrics.OrderEvent {
	o := e.Current
	ev := coremetrics.OrderEvent{
		Order:       o.Name,
		Type:        o.Type,
		State:       o.State,
		Created:     e.Created(),
		Vehicle:     o.ProcessingVehicle,
		Sequence:    o.WrappingSequence,
		DriveOrders: len(o.DriveOrders),
		Rejections:  len(o.Rejections),
		Dispensable: o.Dispensable,
		Time:        now,
	}
	if e.Previous != nil {
		ev.Previous = e.Previous.State
	}
	if o.State.IsFinal() {
		end := o.FinishedTime
		if end.IsZero() {
			end = now
		}
		ev.LeadTime = end.Sub(o.CreationTime)
	}
	if ev.Created {
		ev.Previous = model.OrderRaw
	}
	return ev
}
