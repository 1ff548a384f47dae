package rsm

import (
	"sort"
	"sync"
	"time"
)

// Clock abstracts time for the delayed-send scheduler so tests can drive
// timers deterministically.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since the given time.
	Since(t time.Time) time.Duration

	// NewTimer creates a timer that fires once after the given duration.
	NewTimer(d time.Duration) Timer
}

// Timer abstracts time.Timer.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

// SystemClock is the wall-clock implementation of Clock.
type SystemClock struct{}

func NewSystemClock() *SystemClock { return &SystemClock{} }

func (*SystemClock) Now() time.Time                  { return time.Now() }
func (*SystemClock) Since(t time.Time) time.Duration { return time.Since(t) }

func (*SystemClock) NewTimer(d time.Duration) Timer {
	return &systemTimer{t: time.NewTimer(d)}
}

type systemTimer struct{ t *time.Timer }

func (s *systemTimer) C() <-chan time.Time        { return s.t.C }
func (s *systemTimer) Stop() bool                 { return s.t.Stop() }
func (s *systemTimer) Reset(d time.Duration) bool { return s.t.Reset(d) }

var _ Clock = (*SystemClock)(nil)

// MockClock is a manually advanced Clock for tests. Timers fire when
// Advance moves the mock time past their deadline.
type MockClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*mockTimer
}

func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func (c *MockClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTimer{
		clock:    c,
		deadline: c.now.Add(d),
		ch:       make(chan time.Time, 1),
		active:   true,
	}
	c.timers = append(c.timers, t)
	if d <= 0 {
		t.fire(c.now)
	}
	return t
}

// Advance moves the mock time forward, firing expired timers in deadline
// order.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	due := make([]*mockTimer, 0, len(c.timers))
	for _, t := range c.timers {
		if t.active && !t.deadline.After(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, t := range due {
		t.fire(now)
	}
	c.mu.Unlock()
}

type mockTimer struct {
	clock    *MockClock
	deadline time.Time
	ch       chan time.Time
	active   bool
}

// fire is called with the clock mutex held.
func (t *mockTimer) fire(now time.Time) {
	t.active = false
	select {
	case t.ch <- now:
	default:
	}
}

func (t *mockTimer) C() <-chan time.Time { return t.ch }

func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.active
	t.active = false
	return was
}

func (t *mockTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.active
	t.deadline = t.clock.now.Add(d)
	t.active = true
	if d <= 0 {
		t.fire(t.clock.now)
	}
	return was
}

var _ Clock = (*MockClock)(nil)
