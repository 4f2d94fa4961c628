package statecache

import (
	"context"
	"sync"

	"github.com/kilianp07/agvkernel/core/events"
	"github.com/kilianp07/agvkernel/core/logger"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/internal/eventbus"
)

// Source provides the full state for a resync.
type Source interface {
	Vehicles() []model.Vehicle
	TransportOrders(filter func(model.TransportOrder) bool) []model.TransportOrder
}

// Mirror keeps a Cache in step with the event bus. Updates are coalesced per
// entity, so a slow Redis only delays the cache and never the publisher.
type Mirror struct {
	cache *Cache
	src   Source
	log   logger.Logger

	mu       sync.Mutex
	vehicles map[string]*model.Vehicle
	orders   map[string]*model.TransportOrder
	kernel   *model.KernelState
	resync   bool
	wake     chan struct{}
}

func NewMirror(cache *Cache, src Source, log logger.Logger) *Mirror {
	return &Mirror{
		cache:    cache,
		src:      src,
		log:      logger.OrNop(log),
		vehicles: map[string]*model.Vehicle{},
		orders:   map[string]*model.TransportOrder{},
		wake:     make(chan struct{}, 1),
	}
}

// Start subscribes to bus and writes pending updates until ctx is done. The
// returned channel is closed once the writer exited. A full resync is
// scheduled immediately.
func (m *Mirror) Start(ctx context.Context, bus eventbus.EventBus) <-chan struct{} {
	done := make(chan struct{})
	id := bus.SubscribeFunc(m.Handle)
	m.scheduleResync()
	go func() {
		defer close(done)
		defer bus.UnsubscribeFunc(id)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.wake:
				if err := m.Flush(ctx); err != nil {
					m.log.Warnf("state cache: %v", err)
				}
			}
		}
	}()
	return done
}

// Handle records the change carried by ev. It never blocks on Redis.
func (m *Mirror) Handle(ev eventbus.Event) {
	m.mu.Lock()
	switch e := ev.(type) {
	case events.VehicleChangedEvent:
		v := e.Current.Clone()
		m.vehicles[v.Name] = &v
	case events.TransportOrderChangedEvent:
		if e.Current == nil {
			if e.Previous != nil {
				m.orders[e.Previous.Name] = nil
			}
			break
		}
		o := e.Current.Clone()
		m.orders[o.Name] = &o
	case events.KernelStateTransitionEvent:
		if !e.Finished {
			m.mu.Unlock()
			return
		}
		st := e.New
		m.kernel = &st
		if st == model.KernelOperating {
			m.resync = true
		}
	default:
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.signal()
}

func (m *Mirror) scheduleResync() {
	m.mu.Lock()
	m.resync = true
	m.mu.Unlock()
	m.signal()
}

func (m *Mirror) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Flush writes everything pending. On a resync the cache is cleared and
// filled from the source first; later updates are written on top.
func (m *Mirror) Flush(ctx context.Context) error {
	m.mu.Lock()
	resync := m.resync && m.src != nil
	m.resync = false
	vehicles, orders, kernel := m.vehicles, m.orders, m.kernel
	m.vehicles = map[string]*model.Vehicle{}
	m.orders = map[string]*model.TransportOrder{}
	m.kernel = nil
	m.mu.Unlock()

	if resync {
		if err := m.cache.Flush(ctx); err != nil {
			m.requeue(vehicles, orders, kernel, true)
			cacheErrors.Inc()
			return err
		}
		for _, v := range m.src.Vehicles() {
			if _, ok := vehicles[v.Name]; !ok {
				vc := v
				vehicles[v.Name] = &vc
			}
		}
		for _, o := range m.src.TransportOrders(nil) {
			if _, ok := orders[o.Name]; !ok {
				oc := o
				orders[o.Name] = &oc
			}
		}
	}

	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if kernel != nil {
		note(m.cache.SetKernelState(ctx, *kernel))
	}
	for _, v := range vehicles {
		note(m.cache.PutVehicle(ctx, *v))
	}
	for name, o := range orders {
		if o == nil {
			note(m.cache.RemoveOrder(ctx, name))
			continue
		}
		note(m.cache.PutOrder(ctx, *o))
	}
	cacheWrites.Add(float64(len(vehicles) + len(orders)))
	if firstErr != nil {
		cacheErrors.Inc()
	}
	return firstErr
}

// requeue puts back updates that could not be written, unless newer ones
// arrived meanwhile.
func (m *Mirror) requeue(vehicles map[string]*model.Vehicle, orders map[string]*model.TransportOrder, kernel *model.KernelState, resync bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range vehicles {
		if _, ok := m.vehicles[k]; !ok {
			m.vehicles[k] = v
		}
	}
	for k, o := range orders {
		if _, ok := m.orders[k]; !ok {
			m.orders[k] = o
		}
	}
	if m.kernel == nil {
		m.kernel = kernel
	}
	m.resync = m.resync || resync
}
