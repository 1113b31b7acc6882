package core

import (
	"sync"

	"github.com/gammazero/deque"
)

// IOQueue is the interface shared by the affine and shared I/O queue
// variants (C3). tryEnqueue is the non-blocking form the shared-queue
// round-robin balancer polls across candidate queues.
type IOQueue interface {
	Enqueue(t *Task)
	TryEnqueue(t *Task) bool
	Dequeue() (*Task, bool)
	TryDequeue() (*Task, bool)
	SignalEmptyCondition(drain bool)
	Size() int
	Empty() bool
	Terminate()
	Terminated() bool
}

// AffineIOQueue has one producer set and one dedicated consumer goroutine
// (one per affine I/O worker). Bounded by capacity; TryEnqueue reports
// false instead of blocking once full, the same contract the shared queue
// uses for the balancer.
type AffineIOQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	items    *deque.Deque[*Task]
	capacity int

	terminated bool
}

// NewAffineIOQueue creates an affine I/O queue. capacity<=0 means
// unbounded (TryEnqueue never reports false while running).
func NewAffineIOQueue(capacity int) *AffineIOQueue {
	q := &AffineIOQueue{
		items:    deque.New[*Task](defaultQueueCap),
		capacity: capacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *AffineIOQueue) Enqueue(t *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.terminated {
		return
	}
	q.items.PushBack(t)
	q.cond.Signal()
}

func (q *AffineIOQueue) TryEnqueue(t *Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.terminated {
		return false
	}
	if q.capacity > 0 && q.items.Len() >= q.capacity {
		return false
	}
	q.items.PushBack(t)
	q.cond.Signal()
	return true
}

func (q *AffineIOQueue) Dequeue() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.items.Len() > 0 {
			t := q.items.PopFront()
			return t, true
		}
		if q.terminated {
			return nil, false
		}
		q.cond.Wait()
	}
}

// TryDequeue pops the front item without blocking, reporting ok=false if
// the queue is currently empty (whether or not it is terminated).
func (q *AffineIOQueue) TryDequeue() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return nil, false
	}
	return q.items.PopFront(), true
}

func (q *AffineIOQueue) SignalEmptyCondition(drain bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *AffineIOQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

func (q *AffineIOQueue) Empty() bool { return q.Size() == 0 }

func (q *AffineIOQueue) Terminate() {
	q.mu.Lock()
	q.terminated = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *AffineIOQueue) Terminated() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.terminated
}

// SharedIOQueue is drained by any of the I/O workers. Internally a
// gammazero/deque.Deque (a ring buffer that grows/shrinks cheaply), which
// is the natural backing structure for the shared multi-producer/
// multi-consumer pool the dispatcher round-robins or single-targets
// across (§4.2, §4.6).
type SharedIOQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	items    *deque.Deque[*Task]
	capacity int

	terminated bool
}

func NewSharedIOQueue(capacity int) *SharedIOQueue {
	q := &SharedIOQueue{
		items:    deque.New[*Task](defaultQueueCap),
		capacity: capacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *SharedIOQueue) Enqueue(t *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.terminated {
		return
	}
	q.items.PushBack(t)
	q.cond.Signal()
}

func (q *SharedIOQueue) TryEnqueue(t *Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.terminated {
		return false
	}
	if q.capacity > 0 && q.items.Len() >= q.capacity {
		return false
	}
	q.items.PushBack(t)
	q.cond.Signal()
	return true
}

func (q *SharedIOQueue) Dequeue() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.items.Len() > 0 {
			t := q.items.PopFront()
			return t, true
		}
		if q.terminated {
			return nil, false
		}
		q.cond.Wait()
	}
}

// TryDequeue pops the front item without blocking, reporting ok=false if
// the queue is currently empty (whether or not it is terminated).
func (q *SharedIOQueue) TryDequeue() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return nil, false
	}
	return q.items.PopFront(), true
}

func (q *SharedIOQueue) SignalEmptyCondition(drain bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *SharedIOQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

func (q *SharedIOQueue) Empty() bool { return q.Size() == 0 }

func (q *SharedIOQueue) Terminate() {
	q.mu.Lock()
	q.terminated = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *SharedIOQueue) Terminated() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.terminated
}
