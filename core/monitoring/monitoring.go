// Package monitoring reports unexpected errors and panics to an error
// tracker. The process wide monitor defaults to a no-op.
package monitoring

import (
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/agvkernel/core/events"
	"github.com/kilianp07/agvkernel/internal/eventbus"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	// CapturePanic reports a recovered panic value without re-panicking.
	CapturePanic(v any, tags map[string]string)
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) CapturePanic(any, map[string]string)       {}
func (NopMonitor) Flush(time.Duration)                       {}

var (
	mu      sync.RWMutex
	current Monitor = NopMonitor{}
)

// Init sets the process wide monitor. A nil m restores the no-op monitor.
func Init(m Monitor) {
	mu.Lock()
	defer mu.Unlock()
	if m == nil {
		m = NopMonitor{}
	}
	current = m
}

func get() Monitor {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// CaptureException records the error with optional tags.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	get().CaptureException(err, tags)
}

// CapturePanic records a recovered panic value.
func CapturePanic(v any, tags map[string]string) {
	if v == nil {
		return
	}
	get().CapturePanic(v, tags)
}

// Flush waits up to d for buffered reports to be sent.
func Flush(d time.Duration) { get().Flush(d) }

// Go runs fn on a new goroutine and reports a panic before letting it
// crash the process.
func Go(component string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				CapturePanic(r, map[string]string{"component": component})
				Flush(2 * time.Second)
				panic(r)
			}
		}()
		fn()
	}()
}

// Watch reports failed strategy decisions published on bus. The returned
// function unsubscribes.
func Watch(bus eventbus.EventBus) func() {
	id := eventbus.SubscribeTypes(bus, func(se events.StrategyEvent) {
		if se.Err == nil {
			return
		}
		CaptureException(fmt.Errorf("%s %s: %w", se.Strategy, se.Action, se.Err), map[string]string{
			"strategy": se.Strategy,
			"action":   se.Action,
		})
	})
	return func() { bus.UnsubscribeFunc(id) }
}
