package core

import (
	"sync"
	"testing"
	"time"
)

func newTestTask(id int) *Task {
	return NewTask(TaskContinuation, func(ctx *Context, y *Yielder) (any, error) {
		return id, nil
	}, false, 0)
}

func TestCoopQueue_FIFOWithinPriority(t *testing.T) {
	q := NewCoopQueue(0)
	a, b, c := newTestTask(1), newTestTask(2), newTestTask(3)

	q.Enqueue(a, false)
	q.Enqueue(b, false)
	q.Enqueue(c, false)

	for _, want := range []*Task{a, b, c} {
		got, ok := q.Dequeue()
		if !ok || got != want {
			t.Fatalf("dequeue = %v, ok=%v; want %v", got, ok, want)
		}
	}
}

func TestCoopQueue_HighPriorityAheadOfNormal(t *testing.T) {
	q := NewCoopQueue(0)
	normal, high := newTestTask(1), newTestTask(2)

	q.Enqueue(normal, false)
	q.Enqueue(high, true)

	got, _ := q.Dequeue()
	if got != high {
		t.Fatalf("expected high-priority task first, got %v", got)
	}
	got, _ = q.Dequeue()
	if got != normal {
		t.Fatalf("expected normal-priority task second, got %v", got)
	}
}

func TestCoopQueue_RequeueIgnoresOriginalPriority(t *testing.T) {
	q := NewCoopQueue(0)
	high := newTestTask(1)
	q.Enqueue(high, true)
	q.Dequeue()

	normal := newTestTask(2)
	q.Enqueue(normal, true)
	q.Requeue(high)

	got, _ := q.Dequeue()
	if got != normal {
		t.Fatalf("requeued task should land behind an existing high-priority task, got %v", got)
	}
	got, _ = q.Dequeue()
	if got != high {
		t.Fatalf("expected requeued task second, got %v", got)
	}
}

func TestCoopQueue_DequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewCoopQueue(0)
	done := make(chan *Task, 1)

	go func() {
		task, _ := q.Dequeue()
		done <- task
	}()

	time.Sleep(20 * time.Millisecond)
	want := newTestTask(1)
	q.Enqueue(want, false)

	select {
	case got := <-done:
		if got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue never returned")
	}
}

func TestCoopQueue_TerminateUnblocksDequeue(t *testing.T) {
	q := NewCoopQueue(0)
	var wg sync.WaitGroup
	wg.Add(1)

	var ok bool
	go func() {
		defer wg.Done()
		_, ok = q.Dequeue()
	}()

	time.Sleep(20 * time.Millisecond)
	q.Terminate()
	wg.Wait()

	if ok {
		t.Fatal("expected Dequeue to report ok=false after Terminate")
	}
	if !q.Terminated() {
		t.Fatal("expected Terminated() to report true")
	}
}

func TestCoopQueue_Stats(t *testing.T) {
	q := NewCoopQueue(3)
	q.Enqueue(newTestTask(1), false)
	q.Enqueue(newTestTask(2), true)
	q.Dequeue()

	stats := q.Stats()
	if stats.ID != 3 {
		t.Fatalf("ID = %d, want 3", stats.ID)
	}
	if stats.Size != 1 || stats.Enqueued != 2 || stats.Dequeued != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	q.ResetStats()
	stats = q.Stats()
	if stats.Enqueued != 0 || stats.Dequeued != 0 {
		t.Fatalf("expected ResetStats to zero counters, got %+v", stats)
	}
}
