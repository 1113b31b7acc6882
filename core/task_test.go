package core

import (
	"errors"
	"testing"
)

func TestTask_RunToSuccess(t *testing.T) {
	task := NewTask(TaskFirst, func(ctx *Context, y *Yielder) (any, error) {
		return "done", nil
	}, false, 0)

	if code := task.Run(); code != RCSuccess {
		t.Fatalf("Run() = %v, want RCSuccess", code)
	}
	v, err := task.Result()
	if err != nil || v != "done" {
		t.Fatalf("Result() = %v, %v; want done, nil", v, err)
	}
}

func TestTask_RunToException(t *testing.T) {
	boom := errors.New("boom")
	task := NewTask(TaskFirst, func(ctx *Context, y *Yielder) (any, error) {
		return nil, boom
	}, false, 0)

	if code := task.Run(); code != RCException {
		t.Fatalf("Run() = %v, want RCException", code)
	}
	_, err := task.Result()
	if !errors.Is(err, boom) {
		t.Fatalf("Result() err = %v, want boom", err)
	}
}

func TestTask_YieldThenSuccess(t *testing.T) {
	yielded := false
	task := NewTask(TaskFirst, func(ctx *Context, y *Yielder) (any, error) {
		if !yielded {
			yielded = true
			y.Yield()
		}
		return 7, nil
	}, false, 0)

	if code := task.Run(); code != RCYield {
		t.Fatalf("first Run() = %v, want RCYield", code)
	}
	if code := task.Run(); code != RCSuccess {
		t.Fatalf("second Run() = %v, want RCSuccess", code)
	}
	v, _ := task.Result()
	if v != 7 {
		t.Fatalf("Result value = %v, want 7", v)
	}
}

func TestTask_Block(t *testing.T) {
	resumed := false
	task := NewTask(TaskFirst, func(ctx *Context, y *Yielder) (any, error) {
		if !resumed {
			resumed = true
			y.Block()
		}
		return "woken", nil
	}, false, 0)

	if code := task.Run(); code != RCBlocked {
		t.Fatalf("first Run() = %v, want RCBlocked", code)
	}
	if code := task.Run(); code != RCSuccess {
		t.Fatalf("second Run() = %v, want RCSuccess", code)
	}
}

func TestTask_PanicRecoveredAsException(t *testing.T) {
	task := NewTask(TaskFirst, func(ctx *Context, y *Yielder) (any, error) {
		panic("kaboom")
	}, false, 0)

	code := task.Run()
	if code != RCException {
		t.Fatalf("Run() = %v, want RCException", code)
	}
	panicked, info, stack := task.PanicInfo()
	if !panicked || info != "kaboom" || len(stack) == 0 {
		t.Fatalf("PanicInfo() = %v, %v, len(stack)=%d", panicked, info, len(stack))
	}
}

func TestTask_LinkSetsStageIndexAndBackLink(t *testing.T) {
	a := NewTask(TaskFirst, nil, false, 0)
	a.stageIndex = 0
	b := NewTask(TaskContinuation, nil, false, 0)
	a.link(b)

	if b.stageIndex != 1 {
		t.Fatalf("stageIndex = %d, want 1", b.stageIndex)
	}
	if b.Prev() != a || a.Next() != b {
		t.Fatal("link did not wire forward/back pointers correctly")
	}
}
