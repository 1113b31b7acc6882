package core

import "testing"

func TestAffineIOQueue_EnqueueDequeueOrder(t *testing.T) {
	q := NewAffineIOQueue(0)
	a, b := newTestTask(1), newTestTask(2)
	q.Enqueue(a)
	q.Enqueue(b)

	got, ok := q.Dequeue()
	if !ok || got != a {
		t.Fatalf("got %v, ok=%v; want a", got, ok)
	}
	got, ok = q.Dequeue()
	if !ok || got != b {
		t.Fatalf("got %v, ok=%v; want b", got, ok)
	}
}

func TestAffineIOQueue_TryEnqueueRespectsCapacity(t *testing.T) {
	q := NewAffineIOQueue(1)
	if !q.TryEnqueue(newTestTask(1)) {
		t.Fatal("expected first TryEnqueue to succeed")
	}
	if q.TryEnqueue(newTestTask(2)) {
		t.Fatal("expected second TryEnqueue to fail once capacity is reached")
	}
}

func TestAffineIOQueue_TryDequeueNonBlocking(t *testing.T) {
	q := NewAffineIOQueue(0)
	if _, ok := q.TryDequeue(); ok {
		t.Fatal("expected TryDequeue on empty queue to report ok=false")
	}
	want := newTestTask(1)
	q.Enqueue(want)
	got, ok := q.TryDequeue()
	if !ok || got != want {
		t.Fatalf("got %v, ok=%v; want %v", got, ok, want)
	}
}

func TestSharedIOQueue_TryEnqueueAfterTerminate(t *testing.T) {
	q := NewSharedIOQueue(0)
	q.Terminate()
	if q.TryEnqueue(newTestTask(1)) {
		t.Fatal("expected TryEnqueue on terminated queue to fail")
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("expected Dequeue on terminated, empty queue to report ok=false")
	}
}
