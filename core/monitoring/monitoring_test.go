package monitoring

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvkernel/core/events"
	"github.com/kilianp07/agvkernel/internal/eventbus"
)

type recorder struct {
	mu     sync.Mutex
	errs   []string
	panics []string
	tags   []map[string]string
}

func (r *recorder) CaptureException(err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err.Error())
	r.tags = append(r.tags, tags)
}

func (r *recorder) CapturePanic(v any, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panics = append(r.panics, fmt.Sprint(v))
	r.tags = append(r.tags, tags)
}

func (r *recorder) Flush(time.Duration) {}

func install(t *testing.T) *recorder {
	t.Helper()
	r := &recorder{}
	Init(r)
	t.Cleanup(func() { Init(nil) })
	return r
}

func TestCaptureSkipsNil(t *testing.T) {
	r := install(t)
	CaptureException(nil, nil)
	CapturePanic(nil, nil)
	CaptureException(errors.New("boom"), map[string]string{"k": "v"})
	assert.Equal(t, []string{"boom"}, r.errs)
	assert.Empty(t, r.panics)
}

func TestWatchReportsFailedStrategyEvents(t *testing.T) {
	r := install(t)
	bus := eventbus.New()
	stop := Watch(bus)

	bus.Publish(events.StrategyEvent{Strategy: "dispatcher", Action: "lp_solve"})
	bus.Publish(events.StrategyEvent{Strategy: "dispatcher", Action: "greedy_fallback", Err: errors.New("infeasible")})
	bus.Publish(events.KernelStateTransitionEvent{})

	require.Equal(t, []string{"dispatcher greedy_fallback: infeasible"}, r.errs)
	assert.Equal(t, map[string]string{"strategy": "dispatcher", "action": "greedy_fallback"}, r.tags[0])

	stop()
	bus.Publish(events.StrategyEvent{Strategy: "dispatcher", Action: "x", Err: errors.New("late")})
	assert.Len(t, r.errs, 1)
}

func TestNopMonitorIsDefault(t *testing.T) {
	Init(nil)
	assert.IsType(t, NopMonitor{}, get())
	assert.NotPanics(t, func() {
		CaptureException(errors.New("ignored"), nil)
		Flush(time.Millisecond)
	})
}
