package coordinator

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutorRunsInOrder(t *testing.T) {
	e := NewExecutor(nil)
	defer e.Stop()
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		e.Submit(func() { got = append(got, i) })
	}
	e.Flush()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestExecutorCoalescesQueuedKeys(t *testing.T) {
	e := NewExecutor(nil)
	defer e.Stop()
	block := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32

	assert.True(t, e.SubmitOnce("k", func() {
		runs.Add(1)
		close(started)
		<-block
	}))
	<-started
	// The first task is running, so one more may queue.
	assert.True(t, e.SubmitOnce("k", func() { runs.Add(1) }))
	assert.False(t, e.SubmitOnce("k", func() { runs.Add(1) }))
	close(block)
	e.Flush()
	assert.Equal(t, int32(2), runs.Load())
}

func TestExecutorRecoversPanics(t *testing.T) {
	e := NewExecutor(nil)
	defer e.Stop()
	ran := false
	e.Submit(func() { panic("boom") })
	e.Submit(func() { ran = true })
	e.Flush()
	assert.True(t, ran)
}

func TestExecutorStop(t *testing.T) {
	e := NewExecutor(nil)
	e.Stop()
	e.Stop()
	assert.False(t, e.Submit(func() {}))
	e.Flush()
}
