// Package domain provides the global domain lock shared by the plant model
// store and the transport order pool.
//
// All mutations run inside Do. Events emitted during a transaction are
// published on the bus only after the lock has been released, in the order
// they were emitted, so subscribers may call back into the domain without
// deadlocking. Do is not reentrant: calling Do or View from inside fn blocks
// forever.
package domain

import (
	"sync"

	"github.com/kilianp07/agvkernel/internal/eventbus"
)

// Publisher receives events committed by a transaction.
type Publisher interface {
	Publish(eventbus.Event)
}

// Domain serializes access to the shared kernel state.
type Domain struct {
	mu  sync.Mutex
	pub Publisher
}

// New returns a Domain publishing committed events on pub. A nil pub discards
// events.
func New(pub Publisher) *Domain {
	return &Domain{pub: pub}
}

// Tx collects the side effects of one critical section.
type Tx struct {
	events []eventbus.Event
	after  []func()
	done   bool
}

// Emit queues e for publication after commit.
func (tx *Tx) Emit(e eventbus.Event) {
	if tx.done {
		panic("domain: Emit on finished transaction")
	}
	tx.events = append(tx.events, e)
}

// AfterCommit queues fn to run after the lock is released and all events of
// the transaction were published.
func (tx *Tx) AfterCommit(fn func()) {
	if tx.done {
		panic("domain: AfterCommit on finished transaction")
	}
	tx.after = append(tx.after, fn)
}

// Do runs fn under the global lock. When fn returns an error nothing queued
// on the transaction is published; fn must therefore validate before it
// mutates.
func (d *Domain) Do(fn func(tx *Tx) error) error {
	tx := &Tx{}
	if err := d.locked(tx, fn); err != nil {
		return err
	}
	if d.pub != nil {
		for _, e := range tx.events {
			d.pub.Publish(e)
		}
	}
	for _, fn := range tx.after {
		fn()
	}
	return nil
}

// View runs fn under the global lock for a consistent multi-entity read.
func (d *Domain) View(fn func(tx *Tx)) {
	_ = d.locked(&Tx{}, func(tx *Tx) error {
		fn(tx)
		return nil
	})
}

func (d *Domain) locked(tx *Tx, fn func(tx *Tx) error) error {
	d.mu.Lock()
	defer func() {
		tx.done = true
		d.mu.Unlock()
	}()
	return fn(tx)
}
