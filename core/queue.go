package core

import (
	"runtime"
	"sync"
)

const defaultQueueCap = 16

// QueueStats is a point-in-time snapshot of a cooperative queue, returned
// by Stats() and aggregated by the dispatcher for All-scoped queries.
type QueueStats struct {
	ID         int
	Size       int
	HighSize   int
	NormalSize int
	Enqueued   uint64
	Dequeued   uint64
	Terminated bool
}

// CoopQueue is the FIFO used by one cooperative worker (C2). Ordering
// follows spec.md §4.1: a high-priority enqueue lands at the head, ahead
// of queued normal-priority tasks but behind earlier high-priority ones:
// a high-priority sub-queue followed by the normal FIFO. Neither
// sub-queue has a capacity limit. Re-enqueue (after a Yield) always
// targets the tail of the normal sub-queue regardless of the task's
// original priority, because priority is an admission hint, not a sticky
// property.
//
// Implementation: two slices, zeroing on pop, a mutex guarding a single
// consumer, a condition variable for blocking dequeue.
type CoopQueue struct {
	id int

	mu   sync.Mutex
	cond *sync.Cond

	high   []*Task
	normal []*Task

	enqueued   uint64
	dequeued   uint64
	terminated bool

	pinnedCore int // -1 = unpinned
}

// NewCoopQueue creates a cooperative queue for the given queue id.
func NewCoopQueue(id int) *CoopQueue {
	q := &CoopQueue{
		id:         id,
		high:       make([]*Task, 0, defaultQueueCap),
		normal:     make([]*Task, 0, defaultQueueCap),
		pinnedCore: -1,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *CoopQueue) ID() int { return q.id }

// Enqueue pushes t onto the queue. priority==true places t at the tail of
// the high sub-queue (ahead of all normal tasks, behind earlier
// high-priority tasks).
func (q *CoopQueue) Enqueue(t *Task, priority bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.terminated {
		return
	}

	if priority {
		q.high = append(q.high, t)
	} else {
		q.normal = append(q.normal, t)
	}
	q.enqueued++
	q.cond.Signal()
}

// Requeue puts t back at the tail of the normal sub-queue, regardless of
// its original priority; used after a Yield run code (§4.1 rationale).
func (q *CoopQueue) Requeue(t *Task) {
	q.Enqueue(t, false)
}

// Dequeue blocks until a task is available or the queue is terminated. A
// nil result with ok=false signals termination with nothing left to
// serve.
func (q *CoopQueue) Dequeue() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if t, ok := q.popLocked(); ok {
			return t, true
		}
		if q.terminated {
			return nil, false
		}
		q.cond.Wait()
	}
}

func (q *CoopQueue) popLocked() (*Task, bool) {
	if len(q.high) > 0 {
		t := q.high[0]
		q.high[0] = nil
		q.high = q.high[1:]
		q.dequeued++
		return t, true
	}
	if len(q.normal) > 0 {
		t := q.normal[0]
		q.normal[0] = nil
		q.normal = q.normal[1:]
		q.dequeued++
		return t, true
	}
	return nil, false
}

// SignalEmptyCondition wakes the consumer even if the queue is empty.
// drain is accepted for interface symmetry with the I/O queues (it plays
// no distinct role for an affine, single-consumer cooperative queue).
func (q *CoopQueue) SignalEmptyCondition(drain bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *CoopQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.high) + len(q.normal)
}

func (q *CoopQueue) Empty() bool { return q.Size() == 0 }

func (q *CoopQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		ID:         q.id,
		Size:       len(q.high) + len(q.normal),
		HighSize:   len(q.high),
		NormalSize: len(q.normal),
		Enqueued:   q.enqueued,
		Dequeued:   q.dequeued,
		Terminated: q.terminated,
	}
}

// PinToCore records which core the worker draining this queue is
// associated with, for PinnedCore to report. Nothing in this package
// reads it back: the worker goroutine does not lock its OS thread or set
// CPU affinity.
func (q *CoopQueue) PinToCore(core int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pinnedCore = core
}

func (q *CoopQueue) PinnedCore() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pinnedCore
}

// Terminate drains remaining capacity to dequeue (items already queued
// are still served) but stops Dequeue from blocking forever: once both
// sub-queues are empty, Dequeue returns ok=false.
func (q *CoopQueue) Terminate() {
	q.mu.Lock()
	q.terminated = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *CoopQueue) Terminated() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.terminated
}

// ResetStats zeroes the running enqueued/dequeued counters without
// touching the queued tasks themselves.
func (q *CoopQueue) ResetStats() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = 0
	q.dequeued = 0
}

// defaultWorkerCount mirrors spec.md's numCoroutineThreads=-1 boundary
// behaviour: one worker per hardware concurrency unit, never zero.
func defaultWorkerCount() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}
