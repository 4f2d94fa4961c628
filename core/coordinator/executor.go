package coordinator

import (
	"sync"

	"github.com/kilianp07/agvkernel/core/logger"
	"github.com/kilianp07/agvkernel/core/monitoring"
)

type task struct {
	key string
	fn  func()
}

// Executor runs submitted functions one at a time on a single goroutine, in
// submission order. The queue is unbounded so submitting never blocks, which
// lets event handlers hand work off while the submitter still holds locks.
type Executor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []task
	pending map[string]bool
	closed  bool
	done    chan struct{}
	log     logger.Logger
}

// NewExecutor starts an executor goroutine.
func NewExecutor(log logger.Logger) *Executor {
	e := &Executor{
		pending: map[string]bool{},
		done:    make(chan struct{}),
		log:     logger.OrNop(log),
	}
	e.cond = sync.NewCond(&e.mu)
	go e.loop()
	return e
}

// Submit queues fn. It reports false when the executor is stopped.
func (e *Executor) Submit(fn func()) bool {
	return e.enqueue(task{fn: fn})
}

// SubmitOnce queues fn unless a task with the same key is queued and has not
// started yet. It reports whether fn was queued.
func (e *Executor) SubmitOnce(key string, fn func()) bool {
	return e.enqueue(task{key: key, fn: fn})
}

func (e *Executor) enqueue(t task) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	if t.key != "" {
		if e.pending[t.key] {
			return false
		}
		e.pending[t.key] = true
	}
	e.queue = append(e.queue, t)
	e.cond.Signal()
	return true
}

func (e *Executor) loop() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.closed {
			e.mu.Unlock()
			return
		}
		t := e.queue[0]
		e.queue[0] = task{}
		e.queue = e.queue[1:]
		if t.key != "" {
			delete(e.pending, t.key)
		}
		e.mu.Unlock()
		e.run(t)
	}
}

func (e *Executor) run(t task) {
	defer func() {
		if r := recover(); r != nil {
			actionErrors.Inc()
			e.log.Errorf("coordinator task panicked: %v", r)
			monitoring.CapturePanic(r, map[string]string{"component": "coordinator"})
		}
	}()
	t.fn()
}

// Flush blocks until every task queued before the call has run. It returns
// immediately when the executor is stopped.
func (e *Executor) Flush() {
	ch := make(chan struct{})
	if !e.Submit(func() { close(ch) }) {
		return
	}
	select {
	case <-ch:
	case <-e.done:
	}
}

// Stop drops queued tasks, waits for the running one and ends the goroutine.
func (e *Executor) Stop() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	e.queue = nil
	e.cond.Broadcast()
	e.mu.Unlock()
	<-e.done
}
