package core

import (
	"container/heap"
	"sync"
	"time"
)

// timerEntry is one scheduled callback, ordered by runAt (§4.4's
// monotonic-deadline sampling, §5's coroutine sleep suspension point).
type timerEntry struct {
	runAt    time.Time
	cb       func()
	index    int
	canceled bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].runAt.Before(h[j].runAt) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	n := len(*h)
	e := x.(*timerEntry)
	e.index = n
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

func (h timerHeap) peek() *timerEntry {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// TimerService runs scheduled callbacks on a single background goroutine
// backed by a min-heap of deadlines. It backs Promise's timed waits and
// the coroutine sleep suspension point instead of posting to a delayed
// task queue.
type TimerService struct {
	mu     sync.Mutex
	pq     timerHeap
	wakeup chan struct{}
	stopCh chan struct{}
}

// NewTimerService starts the background loop immediately.
func NewTimerService() *TimerService {
	ts := &TimerService{
		wakeup: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
	heap.Init(&ts.pq)
	go ts.loop()
	return ts
}

// After schedules cb to run after d elapses, returning a cancel function.
// Canceling after cb has already fired is a harmless no-op.
func (ts *TimerService) After(d time.Duration, cb func()) (cancel func()) {
	entry := &timerEntry{runAt: time.Now().Add(d), cb: cb}

	ts.mu.Lock()
	heap.Push(&ts.pq, entry)
	becameSoonest := entry.index == 0
	ts.mu.Unlock()

	if becameSoonest {
		select {
		case ts.wakeup <- struct{}{}:
		default:
		}
	}

	return func() {
		ts.mu.Lock()
		entry.canceled = true
		ts.mu.Unlock()
	}
}

func (ts *TimerService) loop() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		wait := ts.nextWait()

		timer.Reset(wait)
		select {
		case <-ts.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			ts.fireExpired()
		case <-ts.wakeup:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

func (ts *TimerService) nextWait() time.Duration {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	e := ts.pq.peek()
	if e == nil {
		return 1000 * time.Hour
	}
	d := time.Until(e.runAt)
	if d < 0 {
		return 0
	}
	return d
}

func (ts *TimerService) fireExpired() {
	ts.mu.Lock()
	now := time.Now()
	var due []*timerEntry
	for ts.pq.Len() > 0 {
		e := ts.pq.peek()
		if e.runAt.After(now) {
			break
		}
		heap.Pop(&ts.pq)
		due = append(due, e)
	}
	ts.mu.Unlock()

	for _, e := range due {
		if !e.canceled {
			e.cb()
		}
	}
}

// Stop shuts down the background loop. Pending callbacks are dropped.
func (ts *TimerService) Stop() {
	close(ts.stopCh)
}

// defaultTimers backs every Promise's timed coroutine wait; a package-
// level singleton is simpler than threading a TimerService through every
// Promise, and one deadline heap per process is enough.
var defaultTimers = NewTimerService()
