package queue_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rsm "github.com/newmassrael/reactive-state-machine-sub002"
	"github.com/newmassrael/reactive-state-machine-sub002/queue"
)

type deliveries struct {
	mu     sync.Mutex
	events []*rsm.Event
}

func (d *deliveries) deliver(ev *rsm.Event) {
	d.mu.Lock()
	d.events = append(d.events, ev)
	d.mu.Unlock()
}

func (d *deliveries) names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.events))
	for i, ev := range d.events {
		out[i] = ev.Name
	}
	return out
}

func TestSchedulerFiresAfterDelay(t *testing.T) {
	clock := rsm.NewMockClock(time.Unix(0, 0))
	d := &deliveries{}
	s := queue.NewScheduler(clock, d.deliver)
	defer s.Stop()

	s.Schedule(rsm.NewEvent("late", rsm.EventTypeExternal), 100*time.Millisecond, "s1")
	assert.Equal(t, 1, s.Pending())
	assert.Empty(t, d.names())

	clock.Advance(150 * time.Millisecond)
	assert.Eventually(t, func() bool {
		return len(d.names()) == 1 && d.names()[0] == "late"
	}, time.Second, time.Millisecond)
	assert.Equal(t, 0, s.Pending())
}

func TestSchedulerOrdersByFireTimeThenSequence(t *testing.T) {
	clock := rsm.NewMockClock(time.Unix(0, 0))
	d := &deliveries{}
	s := queue.NewScheduler(clock, d.deliver)
	defer s.Stop()

	s.Schedule(rsm.NewEvent("second", rsm.EventTypeExternal), 200*time.Millisecond, "")
	s.Schedule(rsm.NewEvent("first", rsm.EventTypeExternal), 100*time.Millisecond, "")
	s.Schedule(rsm.NewEvent("third", rsm.EventTypeExternal), 200*time.Millisecond, "")

	clock.Advance(300 * time.Millisecond)
	assert.Eventually(t, func() bool { return len(d.names()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"first", "second", "third"}, d.names())
}

func TestSchedulerCancelTombstones(t *testing.T) {
	// S6: schedule then cancel before the timer fires; nothing is
	// delivered and no error surfaces.
	clock := rsm.NewMockClock(time.Unix(0, 0))
	d := &deliveries{}
	s := queue.NewScheduler(clock, d.deliver)
	defer s.Stop()

	s.Schedule(rsm.NewEvent("late", rsm.EventTypeExternal), 100*time.Millisecond, "s1")
	s.Cancel("s1")
	assert.Equal(t, 0, s.Pending())

	clock.Advance(200 * time.Millisecond)
	assert.Never(t, func() bool { return len(d.names()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestSchedulerCancelAfterFireIsNoOp(t *testing.T) {
	clock := rsm.NewMockClock(time.Unix(0, 0))
	d := &deliveries{}
	s := queue.NewScheduler(clock, d.deliver)
	defer s.Stop()

	s.Schedule(rsm.NewEvent("late", rsm.EventTypeExternal), 10*time.Millisecond, "s1")
	clock.Advance(20 * time.Millisecond)
	require.Eventually(t, func() bool { return len(d.names()) == 1 }, time.Second, time.Millisecond)

	// Delivery already happened; cancel must not retract it.
	s.Cancel("s1")
	assert.Equal(t, []string{"late"}, d.names())
}

func TestSchedulerCancelUnknownIsNoOp(t *testing.T) {
	clock := rsm.NewMockClock(time.Unix(0, 0))
	s := queue.NewScheduler(clock, func(*rsm.Event) {})
	defer s.Stop()
	s.Cancel("never-scheduled")
}

func TestSchedulerGeneratesSendID(t *testing.T) {
	clock := rsm.NewMockClock(time.Unix(0, 0))
	s := queue.NewScheduler(clock, func(*rsm.Event) {})
	defer s.Stop()

	id1 := s.Schedule(rsm.NewEvent("a", rsm.EventTypeExternal), time.Second, "")
	id2 := s.Schedule(rsm.NewEvent("b", rsm.EventTypeExternal), time.Second, "")
	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)
}

func TestSchedulerStopDropsPending(t *testing.T) {
	clock := rsm.NewMockClock(time.Unix(0, 0))
	d := &deliveries{}
	s := queue.NewScheduler(clock, d.deliver)

	s.Schedule(rsm.NewEvent("late", rsm.EventTypeExternal), time.Second, "")
	s.Stop()
	clock.Advance(2 * time.Second)
	assert.Empty(t, d.names())
}
