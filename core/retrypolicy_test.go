package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicy_RetriesUntilSuccess(t *testing.T) {
	p := RetryPolicy{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  time.Second,
		Multiplier:      2,
	}

	attempts := 0
	err := p.Retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRetryPolicy_PermanentStopsImmediately(t *testing.T) {
	p := DefaultRetryPolicy()
	boom := errors.New("boom")

	attempts := 0
	err := p.Retry(context.Background(), func() error {
		attempts++
		return Permanent(boom)
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 for a permanent failure", attempts)
	}
}

func TestRetryPolicy_NoRetryRunsOnce(t *testing.T) {
	p := NoRetry()
	boom := errors.New("boom")

	attempts := 0
	err := p.Retry(context.Background(), func() error {
		attempts++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestRetryPolicy_ContextCancelStopsRetrying(t *testing.T) {
	p := RetryPolicy{
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  time.Minute,
		Multiplier:      2,
	}
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Retry(ctx, func() error {
			attempts++
			return errors.New("always fails")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected a non-nil error after context cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("Retry did not stop after context cancellation")
	}
}
