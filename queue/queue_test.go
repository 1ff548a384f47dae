package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rsm "github.com/newmassrael/reactive-state-machine-sub002"
	"github.com/newmassrael/reactive-state-machine-sub002/queue"
)

func TestQueueFIFO(t *testing.T) {
	q := queue.NewQueue()
	q.Enqueue(rsm.NewEvent("a", rsm.EventTypeInternal))
	q.Enqueue(rsm.NewEvent("b", rsm.EventTypeInternal))
	q.Enqueue(rsm.NewEvent("c", rsm.EventTypeInternal))
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		ev, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, want, ev.Name)
	}
	_, ok := q.Dequeue()
	assert.False(t, ok)
}

func TestExternalQueueFIFOAndWait(t *testing.T) {
	q := queue.NewExternalQueue(0)
	require.NoError(t, q.Enqueue(rsm.NewEvent("one", rsm.EventTypeExternal)))
	require.NoError(t, q.Enqueue(rsm.NewEvent("two", rsm.EventTypeExternal)))

	ev, err := q.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "one", ev.Name)

	ev, err = q.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "two", ev.Name)
}

func TestExternalQueueWaitBlocksUntilEnqueue(t *testing.T) {
	q := queue.NewExternalQueue(0)
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = q.Enqueue(rsm.NewEvent("late", rsm.EventTypeExternal))
	}()
	ev, err := q.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late", ev.Name)
}

func TestExternalQueueWaitContextCancel(t *testing.T) {
	q := queue.NewExternalQueue(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExternalQueueClosedRejectsEnqueue(t *testing.T) {
	q := queue.NewExternalQueue(0)
	require.NoError(t, q.Enqueue(rsm.NewEvent("pending", rsm.EventTypeExternal)))
	q.Close()

	err := q.Enqueue(rsm.NewEvent("after", rsm.EventTypeExternal))
	assert.ErrorIs(t, err, queue.ErrClosed)

	// Pending events still drain, then the close is observed.
	ev, err := q.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pending", ev.Name)
	_, err = q.Wait(context.Background())
	assert.ErrorIs(t, err, queue.ErrClosed)
}

func TestExternalQueueBounded(t *testing.T) {
	q := queue.NewExternalQueue(2)
	require.NoError(t, q.Enqueue(rsm.NewEvent("1", rsm.EventTypeExternal)))
	require.NoError(t, q.Enqueue(rsm.NewEvent("2", rsm.EventTypeExternal)))
	assert.ErrorIs(t, q.Enqueue(rsm.NewEvent("3", rsm.EventTypeExternal)), queue.ErrFull)
}
