package queue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/google/uuid"

	rsm "github.com/newmassrael/reactive-state-machine-sub002"
)

// DeliverFunc receives a fired delayed event. It must enqueue and return;
// the scheduler never runs executable content itself, which keeps timer
// firing from re-entering the executor.
type DeliverFunc func(ev *rsm.Event)

type entry struct {
	fireAt   time.Time
	seq      uint64
	ev       *rsm.Event
	sendID   string
	canceled bool
	index    int
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if !h[i].fireAt.Equal(h[j].fireAt) {
		return h[i].fireAt.Before(h[j].fireAt)
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Scheduler is the per-session delayed-send scheduler: an ordered set keyed
// by (fire time, sequence) with tombstone-based cancellation. Cancelled
// entries are skipped at dequeue; cancelling after the event already fired
// is a no-op.
type Scheduler struct {
	clock   rsm.Clock
	deliver DeliverFunc

	mu       sync.Mutex
	entries  entryHeap
	bySendID map[string][]*entry
	seq      uint64
	stopped  bool

	wake chan struct{}
	done chan struct{}
}

func NewScheduler(clock rsm.Clock, deliver DeliverFunc) *Scheduler {
	if clock == nil {
		clock = rsm.NewSystemClock()
	}
	s := &Scheduler{
		clock:    clock,
		deliver:  deliver,
		bySendID: make(map[string][]*entry),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// Schedule enqueues the event to fire after delay and returns the send ID,
// generating a platform ID when sendID is empty.
func (s *Scheduler) Schedule(ev *rsm.Event, delay time.Duration, sendID string) string {
	if sendID == "" {
		sendID = uuid.NewString()
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return sendID
	}
	s.seq++
	e := &entry{
		fireAt: s.clock.Now().Add(delay),
		seq:    s.seq,
		ev:     ev,
		sendID: sendID,
	}
	heap.Push(&s.entries, e)
	s.bySendID[sendID] = append(s.bySendID[sendID], e)
	s.mu.Unlock()
	s.kick()
	return sendID
}

// Cancel tombstones every pending entry with the given send ID. Unknown or
// already fired IDs are a silent no-op.
func (s *Scheduler) Cancel(sendID string) {
	s.mu.Lock()
	for _, e := range s.bySendID[sendID] {
		e.canceled = true
	}
	delete(s.bySendID, sendID)
	s.mu.Unlock()
	s.kick()
}

// Pending returns the number of live (non-tombstoned) entries.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if !e.canceled {
			n++
		}
	}
	return n
}

// Stop drops all pending entries and terminates the run loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.entries = nil
	s.bySendID = make(map[string][]*entry)
	s.mu.Unlock()
	s.kick()
	<-s.done
}

func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run() {
	defer close(s.done)
	var timer rsm.Timer
	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		// Fire everything due, skipping tombstones.
		now := s.clock.Now()
		var due []*entry
		for len(s.entries) > 0 {
			head := s.entries[0]
			if head.canceled {
				heap.Pop(&s.entries)
				continue
			}
			if head.fireAt.After(now) {
				break
			}
			heap.Pop(&s.entries)
			s.dropIndex(head)
			due = append(due, head)
		}
		var wait time.Duration = -1
		if len(s.entries) > 0 {
			wait = s.entries[0].fireAt.Sub(now)
		}
		s.mu.Unlock()

		for _, e := range due {
			s.deliver(e.ev)
		}
		if len(due) > 0 {
			continue
		}

		if wait < 0 {
			<-s.wake
			continue
		}
		if timer == nil {
			timer = s.clock.NewTimer(wait)
		} else {
			timer.Reset(wait)
		}
		select {
		case <-s.wake:
			timer.Stop()
		case <-timer.C():
		}
	}
}

// dropIndex removes a fired entry from the send-ID index; called with the
// mutex held.
func (s *Scheduler) dropIndex(e *entry) {
	list := s.bySendID[e.sendID]
	kept := list[:0]
	for _, x := range list {
		if x != e {
			kept = append(kept, x)
		}
	}
	if len(kept) == 0 {
		delete(s.bySendID, e.sendID)
	} else {
		s.bySendID[e.sendID] = kept
	}
}
