package orderlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvkernel/core/events"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/internal/eventbus"
)

func TestRecorderHandle(t *testing.T) {
	store, err := NewJSONLStore(filepath.Join(t.TempDir(), "orders.jsonl"))
	require.NoError(t, err)
	r := NewRecorder(store, nil)
	ctx := context.Background()

	active := model.TransportOrder{Name: "o1", State: model.OrderBeingProcessed}
	done := active.Clone()
	done.State = model.OrderFinished

	ok, err := r.Handle(ctx, events.TransportOrderChangedEvent{Current: &active})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.Handle(ctx, events.TransportOrderChangedEvent{Previous: &active, Current: &done})
	require.NoError(t, err)
	assert.True(t, ok)

	// Later changes of a final order, such as its removal, are not logged again.
	ok, err = r.Handle(ctx, events.TransportOrderChangedEvent{Previous: &done, Current: &done})
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = r.Handle(ctx, events.TransportOrderChangedEvent{Previous: &done})
	require.NoError(t, err)
	assert.False(t, ok)

	recs, err := store.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.OrderFinished, recs[0].State)
}

func TestRecorderStart(t *testing.T) {
	store, err := NewJSONLStore(filepath.Join(t.TempDir(), "orders.jsonl"))
	require.NoError(t, err)
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := NewRecorder(store, nil).Start(ctx, bus)

	prev := model.TransportOrder{Name: "o1", State: model.OrderActive}
	cur := model.TransportOrder{Name: "o1", State: model.OrderWithdrawn}
	bus.Publish("ignored")
	bus.Publish(events.TransportOrderChangedEvent{Previous: &prev, Current: &cur})

	assert.Eventually(t, func() bool {
		recs, err := store.Query(context.Background(), Query{})
		return err == nil && len(recs) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
