// Package orderpool owns transport orders and order sequences.
//
// The pool is the only writer of these entities. Every operation validates
// before it mutates and runs under the global domain lock, so a failed call
// leaves the pool untouched. Changes are announced with
// TransportOrderChangedEvent and OrderSequenceChangedEvent after the lock is
// released.
//
// Order lifecycle:
//
//	RAW ──> ACTIVE ──> DISPATCHABLE ──> BEING_PROCESSED ──┬──> FINISHED
//	 └──────────────────────^                             └──> FAILED
//
// Any non-final order may be withdrawn. A graceful withdrawal of an assigned
// order only marks it WithdrawalPending until the vehicle is done.
package orderpool

import (
	"time"

	"github.com/kilianp07/agvkernel/core/domain"
	"github.com/kilianp07/agvkernel/core/logger"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/core/plantmodel"
)

// Pool stores transport orders and order sequences. Maps are guarded by the
// domain lock.
type Pool struct {
	dom   *domain.Domain
	plant *plantmodel.Store
	log   logger.Logger
	now   func() time.Time
	// gate is checked under the domain lock before every pool mutation.
	gate func() error

	orders    map[string]*model.TransportOrder
	sequences map[string]*model.OrderSequence
}

// Option configures a Pool.
type Option func(*Pool)

// WithClock replaces time.Now as the pool's time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// New returns an empty pool sharing the plant model's domain lock.
func New(plant *plantmodel.Store, log logger.Logger, opts ...Option) *Pool {
	p := &Pool{
		dom:       plant.Domain(),
		plant:     plant,
		log:       logger.OrNop(log),
		now:       time.Now,
		orders:    map[string]*model.TransportOrder{},
		sequences: map[string]*model.OrderSequence{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Domain returns the domain lock shared with the plant model.
func (p *Pool) Domain() *domain.Domain { return p.dom }

// Now returns the pool's current time.
func (p *Pool) Now() time.Time { return p.now() }

// SetGate installs a check that every later mutation must pass. It runs
// under the domain lock, so a mutation either completes before the gate
// closes or is rejected by it. Clear is not gated.
func (p *Pool) SetGate(gate func() error) {
	_ = p.dom.Do(func(*domain.Tx) error {
		p.gate = gate
		return nil
	})
}

// Gate runs the installed gate. Callers that mutate the pool through With
// under their own lock check it themselves.
func (p *Pool) Gate() error {
	if p.gate == nil {
		return nil
	}
	return p.gate()
}

func (p *Pool) do(fn func(w *Writer) error) error {
	return p.dom.Do(func(tx *domain.Tx) error {
		if err := p.Gate(); err != nil {
			return err
		}
		return fn(p.With(tx))
	})
}

// CreateTransportOrder creates a RAW order from spec.
func (p *Pool) CreateTransportOrder(spec TransportOrderSpec) (o model.TransportOrder, err error) {
	err = p.do(func(w *Writer) error {
		o, err = w.CreateTransportOrder(spec)
		return err
	})
	return o, err
}

// CreateOrderSequence creates an empty, incomplete sequence.
func (p *Pool) CreateOrderSequence(spec OrderSequenceSpec) (s model.OrderSequence, err error) {
	err = p.do(func(w *Writer) error {
		s, err = w.CreateOrderSequence(spec)
		return err
	})
	return s, err
}

// ActivateTransportOrder moves a RAW order to ACTIVE.
func (p *Pool) ActivateTransportOrder(name string) (o model.TransportOrder, err error) {
	err = p.do(func(w *Writer) error {
		o, err = w.ActivateTransportOrder(name)
		return err
	})
	return o, err
}

// SetTransportOrderState moves an order along the legal state graph.
func (p *Pool) SetTransportOrderState(name string, st model.OrderState) (o model.TransportOrder, err error) {
	err = p.do(func(w *Writer) error {
		o, err = w.SetTransportOrderState(name, st)
		return err
	})
	return o, err
}

// AssignTransportOrder hands a DISPATCHABLE order to a vehicle.
func (p *Pool) AssignTransportOrder(name, vehicle string, drives []model.DriveOrder) (o model.TransportOrder, err error) {
	err = p.do(func(w *Writer) error {
		o, err = w.AssignTransportOrder(name, vehicle, drives)
		return err
	})
	return o, err
}

// SetTransportOrderNextDriveOrder finishes the current drive order and starts
// the next one.
func (p *Pool) SetTransportOrderNextDriveOrder(name string) (o model.TransportOrder, err error) {
	err = p.do(func(w *Writer) error {
		o, err = w.SetTransportOrderNextDriveOrder(name)
		return err
	})
	return o, err
}

func (p *Pool) SetDriveOrderState(name string, st model.DriveOrderState) error {
	return p.do(func(w *Writer) error { return w.SetDriveOrderState(name, st) })
}

func (p *Pool) UpdateFutureDriveOrders(name string, drives []model.DriveOrder) error {
	return p.do(func(w *Writer) error { return w.UpdateFutureDriveOrders(name, drives) })
}

func (p *Pool) AddRejection(name, vehicle, reason string) error {
	return p.do(func(w *Writer) error { return w.AddRejection(name, vehicle, reason) })
}

func (p *Pool) AddDependency(name, dependency string) error {
	return p.do(func(w *Writer) error { return w.AddDependency(name, dependency) })
}

func (p *Pool) RemoveDependency(name, dependency string) error {
	return p.do(func(w *Writer) error { return w.RemoveDependency(name, dependency) })
}

func (p *Pool) SetDeadline(name string, deadline time.Time) error {
	return p.do(func(w *Writer) error { return w.SetDeadline(name, deadline) })
}

func (p *Pool) SetIntendedVehicle(name, vehicle string) error {
	return p.do(func(w *Writer) error { return w.SetIntendedVehicle(name, vehicle) })
}

// MarkWithdrawal withdraws an order. It reports whether the order reached
// WITHDRAWN right away; otherwise the withdrawal is pending.
func (p *Pool) MarkWithdrawal(name string, immediate, disableVehicle bool) (withdrawn bool, err error) {
	err = p.do(func(w *Writer) error {
		withdrawn, err = w.MarkWithdrawal(name, immediate, disableVehicle)
		return err
	})
	return withdrawn, err
}

// ResolveWithdrawal completes a pending withdrawal.
func (p *Pool) ResolveWithdrawal(name string) error {
	return p.do(func(w *Writer) error { return w.ResolveWithdrawal(name) })
}

func (p *Pool) SetOrderSequenceComplete(name string) error {
	return p.do(func(w *Writer) error { return w.SetOrderSequenceComplete(name) })
}

// SetOrderSequenceFinished marks a complete sequence finished. A second call
// is a no-op and reports false.
func (p *Pool) SetOrderSequenceFinished(name string) (changed bool, err error) {
	err = p.do(func(w *Writer) error {
		changed, err = w.SetOrderSequenceFinished(name)
		return err
	})
	return changed, err
}

func (p *Pool) SetOrderSequenceProcessingVehicle(name, vehicle string) error {
	return p.do(func(w *Writer) error { return w.SetOrderSequenceProcessingVehicle(name, vehicle) })
}

func (p *Pool) SetOrderSequenceFinishedIndex(name string, idx int) error {
	return p.do(func(w *Writer) error { return w.SetOrderSequenceFinishedIndex(name, idx) })
}

func (p *Pool) RemoveTransportOrder(name string) error {
	return p.do(func(w *Writer) error { return w.RemoveTransportOrder(name) })
}

func (p *Pool) RemoveOrderSequence(name string) error {
	return p.do(func(w *Writer) error { return w.RemoveOrderSequence(name) })
}

func (p *Pool) RemoveOrderSequenceOrder(seq, order string) error {
	return p.do(func(w *Writer) error { return w.RemoveOrderSequenceOrder(seq, order) })
}

// Clear removes every order and sequence.
func (p *Pool) Clear() {
	_ = p.dom.Do(func(tx *domain.Tx) error {
		p.With(tx).Clear()
		return nil
	})
}

// TransportOrder returns a snapshot of the named order.
func (p *Pool) TransportOrder(name string) (o model.TransportOrder, err error) {
	p.dom.View(func(tx *domain.Tx) { o, err = p.With(tx).TransportOrder(name) })
	return o, err
}

// TransportOrders returns snapshots of the orders matching filter, oldest
// first. A nil filter matches every order.
func (p *Pool) TransportOrders(filter func(model.TransportOrder) bool) []model.TransportOrder {
	var out []model.TransportOrder
	p.dom.View(func(tx *domain.Tx) { out = p.With(tx).TransportOrders(filter) })
	return out
}

func (p *Pool) OrderSequence(name string) (s model.OrderSequence, err error) {
	p.dom.View(func(tx *domain.Tx) { s, err = p.With(tx).OrderSequence(name) })
	return s, err
}

// OrderSequences returns snapshots of all sequences, oldest first.
func (p *Pool) OrderSequences() []model.OrderSequence {
	var out []model.OrderSequence
	p.dom.View(func(tx *domain.Tx) { out = p.With(tx).OrderSequences() })
	return out
}

// DependenciesResolved reports whether every dependency of the order has
// FINISHED.
func (p *Pool) DependenciesResolved(name string) (ok bool, err error) {
	p.dom.View(func(tx *domain.Tx) { ok, err = p.With(tx).DependenciesResolved(name) })
	return ok, err
}
