package coroutine

import "testing"

func TestFiberRunsToCompletionWithoutYield(t *testing.T) {
	fb := Create(func(h Handle) int {
		return 42
	})

	if st := fb.Resume(); st != Done {
		t.Fatalf("expected Done on first resume, got %v", st)
	}
	if got := fb.Result(); got != 42 {
		t.Fatalf("expected result 42, got %d", got)
	}
	if !fb.Finished() {
		t.Fatal("expected fiber to report finished")
	}
}

func TestFiberYieldsThenCompletes(t *testing.T) {
	var steps []string
	fb := Create(func(h Handle) string {
		steps = append(steps, "before-yield")
		h.Yield()
		steps = append(steps, "after-yield")
		return "done"
	})

	if st := fb.Resume(); st != Running {
		t.Fatalf("expected Running after first resume, got %v", st)
	}
	if len(steps) != 1 || steps[0] != "before-yield" {
		t.Fatalf("expected single before-yield step, got %v", steps)
	}

	if st := fb.Resume(); st != Done {
		t.Fatalf("expected Done after second resume, got %v", st)
	}
	if len(steps) != 2 || steps[1] != "after-yield" {
		t.Fatalf("expected after-yield step, got %v", steps)
	}
	if fb.Result() != "done" {
		t.Fatalf("expected result 'done', got %q", fb.Result())
	}
}

func TestFiberResumeAfterDoneIsNoOp(t *testing.T) {
	fb := Create(func(h Handle) int { return 7 })
	fb.Resume()

	for i := 0; i < 3; i++ {
		if st := fb.Resume(); st != Done {
			t.Fatalf("expected Done on repeated resume, got %v", st)
		}
		if fb.Result() != 7 {
			t.Fatalf("expected stable result 7, got %d", fb.Result())
		}
	}
}

func TestFiberMultipleYields(t *testing.T) {
	count := 0
	fb := Create(func(h Handle) int {
		for i := 0; i < 3; i++ {
			count++
			h.Yield()
		}
		count++
		return count
	})

	for i := 0; i < 3; i++ {
		if st := fb.Resume(); st != Running {
			t.Fatalf("resume %d: expected Running, got %v", i, st)
		}
	}
	if st := fb.Resume(); st != Done {
		t.Fatalf("expected Done on 4th resume, got %v", st)
	}
	if count != 4 {
		t.Fatalf("expected count 4, got %d", count)
	}
}
