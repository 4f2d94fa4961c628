package orderlog

import (
	"context"
	"time"

	"github.com/kilianp07/agvkernel/core/events"
	"github.com/kilianp07/agvkernel/core/logger"
	"github.com/kilianp07/agvkernel/internal/eventbus"
)

// Recorder appends every order that turns final to a Store.
type Recorder struct {
	store Store
	log   logger.Logger
	now   func() time.Time
}

func NewRecorder(store Store, log logger.Logger) *Recorder {
	return &Recorder{store: store, log: logger.OrNop(log), now: time.Now}
}

// Handle appends the order carried by ev when it just reached a final state.
// It reports whether a record was written.
func (r *Recorder) Handle(ctx context.Context, ev events.TransportOrderChangedEvent) (bool, error) {
	cur := ev.Current
	if cur == nil || !cur.State.IsFinal() {
		return false, nil
	}
	if ev.Previous != nil && ev.Previous.State.IsFinal() {
		return false, nil
	}
	if err := r.store.Append(ctx, NewRecord(*cur, r.now())); err != nil {
		return false, err
	}
	return true, nil
}

// Start consumes order events from bus until ctx is canceled or the bus is
// closed. The returned channel is closed when the consumer exited.
func (r *Recorder) Start(ctx context.Context, bus eventbus.EventBus) <-chan struct{} {
	done := make(chan struct{})
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
				e, isOrder := ev.(events.TransportOrderChangedEvent)
				if !isOrder {
					continue
				}
				if _, err := r.Handle(ctx, e); err != nil {
					r.log.Errorf("append order %s to log: %v", e.Current.Name, err)
				}
			}
		}
	}()
	return done
}
