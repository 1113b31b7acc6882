package core

import (
	"errors"
	"testing"
)

func TestContext_ThenAfterEndIsChainClosed(t *testing.T) {
	c := NewContext(nil)
	first := NewTask(TaskFirst, nil, false, 0)
	_ = c.appendStage(first)
	c.End()

	_, err := c.Then(0, func(ctx *Context, y *Yielder) (any, error) { return nil, nil }, false)
	if k, ok := KindOf(err); !ok || k != KindChainClosed {
		t.Fatalf("expected KindChainClosed, got %v", err)
	}
}

func TestContext_DuplicateFinallyIsChainClosed(t *testing.T) {
	c := NewContext(nil)
	first := NewTask(TaskFirst, nil, false, 0)
	_ = c.appendStage(first)

	if _, err := c.Finally(0, func(ctx *Context, y *Yielder) (any, error) { return nil, nil }, false); err != nil {
		t.Fatalf("first Finally failed: %v", err)
	}
	_, err := c.Finally(0, func(ctx *Context, y *Yielder) (any, error) { return nil, nil }, false)
	if k, ok := KindOf(err); !ok || k != KindChainClosed {
		t.Fatalf("expected KindChainClosed on duplicate Finally, got %v", err)
	}
}

func TestContext_FirstCannotBeAppendedViaThen(t *testing.T) {
	c := NewContext(nil)
	first := NewTask(TaskFirst, nil, false, 0)
	if err := c.appendStage(first); err != nil {
		t.Fatalf("appending the head stage failed: %v", err)
	}
	second := NewTask(TaskFirst, nil, false, 0)
	err := c.appendStage(second)
	if k, ok := KindOf(err); !ok || k != KindChainClosed {
		t.Fatalf("expected KindChainClosed for a second First stage, got %v", err)
	}
}

func TestContext_WaitAtBlockingWhileActiveIsBadContext(t *testing.T) {
	c := NewContext(nil)
	first := NewTask(TaskFirst, nil, false, 0)
	// Simulate the active stage's own body goroutine: its Yielder carries
	// this test goroutine's id, so a thread-blocking call made right here
	// is indistinguishable from the body calling WaitAtBlocking on itself.
	first.yielder = &Yielder{goroutineID: currentGoroutineID()}
	_ = c.appendStage(first)
	c.setActive(first)
	defer c.clearActive()

	_, err := c.WaitAtBlocking(0)
	if k, ok := KindOf(err); !ok || k != KindBadContext {
		t.Fatalf("expected KindBadContext, got %v", err)
	}
}

func TestContext_WaitAtBlockingFromExternalGoroutineWhileActiveSucceeds(t *testing.T) {
	c := NewContext(nil)
	first := NewTask(TaskFirst, nil, false, 0)
	// A different goroutine "owns" the active stage; this test's own
	// goroutine is an external caller and must not be rejected just
	// because some stage of the chain happens to be mid-run.
	first.yielder = &Yielder{goroutineID: currentGoroutineID() + 1}
	_ = c.appendStage(first)
	c.setActive(first)
	defer c.clearActive()

	p := c.promiseAt(0)
	go func() {
		_ = p.Set("done")
	}()

	v, err := c.WaitAtBlocking(0)
	if err != nil {
		t.Fatalf("expected the external wait to succeed, got %v", err)
	}
	if v != "done" {
		t.Fatalf("v = %v, want %q", v, "done")
	}
}

func TestContext_WaitAtWithMismatchedYielderIsBadContext(t *testing.T) {
	c := NewContext(nil)
	first := NewTask(TaskFirst, nil, false, 0)
	_ = c.appendStage(first)
	c.setActive(first)
	defer c.clearActive()

	other := &Yielder{}
	_, err := c.WaitAt(other, 0)
	if k, ok := KindOf(err); !ok || k != KindBadContext {
		t.Fatalf("expected KindBadContext, got %v", err)
	}
}

func TestContext_GetAtBeforeResolutionIsPending(t *testing.T) {
	c := NewContext(nil)
	first := NewTask(TaskFirst, nil, false, 0)
	_ = c.appendStage(first)

	_, err := c.GetAt(0)
	if !errors.Is(err, errPending) {
		t.Fatalf("expected errPending, got %v", err)
	}
}

func TestContext_GetAtNegativeIndexResolvesFromEnd(t *testing.T) {
	c := NewContext(nil)
	first := NewTask(TaskFirst, nil, false, 0)
	_ = c.appendStage(first)
	second := NewTask(TaskContinuation, nil, false, 0)
	_ = c.appendStage(second)

	_ = c.promiseAt(1).Set("last")
	v, err := c.GetAt(-1)
	if err != nil || v != "last" {
		t.Fatalf("GetAt(-1) = %v, %v; want last, nil", v, err)
	}
}

func TestContext_IndexOutOfRangeIsInvalidQueueID(t *testing.T) {
	c := NewContext(nil)
	first := NewTask(TaskFirst, nil, false, 0)
	_ = c.appendStage(first)

	_, err := c.GetAt(5)
	if k, ok := KindOf(err); !ok || k != KindInvalidQueueID {
		t.Fatalf("expected KindInvalidQueueID, got %v", err)
	}
}

func TestContext_TerminateFailsPendingPromisesAndBlocksAppend(t *testing.T) {
	c := NewContext(nil)
	first := NewTask(TaskFirst, nil, false, 0)
	_ = c.appendStage(first)

	c.Terminate()
	if !c.Terminated() {
		t.Fatal("expected Terminated() to report true")
	}

	_, _, err := c.promiseAt(0).Peek()
	if k, ok := KindOf(err); !ok || k != KindTerminated {
		t.Fatalf("expected pending promise to fail with KindTerminated, got %v", err)
	}

	_, err = c.Then(0, func(ctx *Context, y *Yielder) (any, error) { return nil, nil }, false)
	if k, ok := KindOf(err); !ok || k != KindTerminated {
		t.Fatalf("expected KindTerminated on append after Terminate, got %v", err)
	}

	// Terminate must be idempotent and must not disturb an
	// already-terminated chain's state.
	c.Terminate()
	if !c.Terminated() {
		t.Fatal("expected Terminated() to still report true")
	}
}

func TestContext_SetResolvesActiveStagePromise(t *testing.T) {
	c := NewContext(nil)
	first := NewTask(TaskFirst, nil, false, 0)
	_ = c.appendStage(first)
	c.setActive(first)

	if err := c.Set("published"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	c.clearActive()

	v, err := c.GetAt(0)
	if err != nil || v != "published" {
		t.Fatalf("GetAt(0) = %v, %v; want published, nil", v, err)
	}
}

func TestContext_SetWithNoActiveStageIsBadContext(t *testing.T) {
	c := NewContext(nil)
	err := c.Set("value")
	if k, ok := KindOf(err); !ok || k != KindBadContext {
		t.Fatalf("expected KindBadContext, got %v", err)
	}
}
