package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type nagEntry struct {
	taskID   string
	interval time.Duration
	next     time.Time
	index    int
}

type nagQueue []*nagEntry

func (q nagQueue) Len() int { return len(q) }

func (q nagQueue) Less(i, j int) bool {
	return q[i].next.Before(q[j].next)
}

func (q nagQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *nagQueue) Push(x any) {
	e := x.(*nagEntry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *nagQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[0 : n-1]
	return e
}

// Nagger owns one repeating timer per task and calls fire every interval
// until the task is untracked or the nagger stops.
type Nagger struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	queue   nagQueue
	byTask  map[string]*nagEntry
	fire    func(taskID string)
	wakeup  chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	stopped bool
}

func NewNagger(clock clockwork.Clock, fire func(taskID string)) *Nagger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Nagger{
		clock:  clock,
		queue:  make(nagQueue, 0),
		byTask: make(map[string]*nagEntry),
		fire:   fire,
		wakeup: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (n *Nagger) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started || n.stopped {
		return
	}
	n.started = true
	go n.loop()
}

// Stop clears every timer. A stopped nagger ignores Track.
func (n *Nagger) Stop() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	n.queue = n.queue[:0]
	clear(n.byTask)
	started := n.started
	close(n.stopCh)
	n.mu.Unlock()
	if started {
		<-n.doneCh
	}
}

// Track starts nagging taskID every interval. It reports false when the task
// already has a timer.
func (n *Nagger) Track(taskID string, interval time.Duration) bool {
	if interval <= 0 {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return false
	}
	if _, ok := n.byTask[taskID]; ok {
		return false
	}
	e := &nagEntry{taskID: taskID, interval: interval, next: n.clock.Now().Add(interval)}
	heap.Push(&n.queue, e)
	n.byTask[taskID] = e
	n.signalWakeup()
	return true
}

func (n *Nagger) Untrack(taskID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.byTask[taskID]
	if !ok {
		return false
	}
	heap.Remove(&n.queue, e.index)
	delete(n.byTask, taskID)
	n.signalWakeup()
	return true
}

// Retain drops the timers of tasks not in active.
func (n *Nagger) Retain(active map[string]bool) {
	n.mu.Lock()
	ids := make([]string, 0)
	for id := range n.byTask {
		if !active[id] {
			ids = append(ids, id)
		}
	}
	n.mu.Unlock()
	for _, id := range ids {
		n.Untrack(id)
	}
}

func (n *Nagger) Tracked(taskID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.byTask[taskID]
	return ok
}

func (n *Nagger) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.byTask)
}

func (n *Nagger) loop() {
	defer close(n.doneCh)
	for {
		next, hasNext := n.peek()
		if !hasNext {
			select {
			case <-n.wakeup:
				continue
			case <-n.stopCh:
				return
			}
		}

		wait := next.Sub(n.clock.Now())
		if wait <= 0 {
			n.fireDue()
			continue
		}
		timer := n.clock.NewTimer(wait)
		select {
		case <-timer.Chan():
			n.fireDue()
		case <-n.wakeup:
		case <-n.stopCh:
			timer.Stop()
			return
		}
		timer.Stop()
	}
}

func (n *Nagger) signalWakeup() {
	select {
	case n.wakeup <- struct{}{}:
	default:
	}
}

func (n *Nagger) peek() (time.Time, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queue) == 0 {
		return time.Time{}, false
	}
	return n.queue[0].next, true
}

// fireDue advances every due entry by its interval and calls fire outside
// the lock, so the callback may untrack.
func (n *Nagger) fireDue() {
	now := n.clock.Now()
	n.mu.Lock()
	due := make([]string, 0)
	for len(n.queue) > 0 && !n.queue[0].next.After(now) {
		e := n.queue[0]
		e.next = e.next.Add(e.interval)
		if !e.next.After(now) {
			e.next = now.Add(e.interval)
		}
		heap.Fix(&n.queue, 0)
		due = append(due, e.taskID)
	}
	n.mu.Unlock()

	for _, id := range due {
		select {
		case <-n.stopCh:
			return
		default:
		}
		if n.fire != nil {
			n.fire(id)
		}
	}
}
