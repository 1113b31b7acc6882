package core

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy configures exponential backoff retry for an I/O body a
// caller chooses to wrap. The dispatcher itself never retries a task:
// a blocked or failed task stays exactly that until its body, or a body
// wrapped in a RetryPolicy, decides otherwise; retry is a caller policy
// layered on top, not a dispatcher feature.
type RetryPolicy struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryPolicy returns a sensible default exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// NoRetry returns a policy that runs the operation exactly once.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxElapsedTime: -1}
}

func (p RetryPolicy) backoff(ctx context.Context) backoff.BackOff {
	if p.MaxElapsedTime < 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = p.MaxElapsedTime
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	if p.RandomizationFactor > 0 {
		b.RandomizationFactor = p.RandomizationFactor
	}
	return backoff.WithContext(b, ctx)
}

// Permanent wraps err so Retry stops immediately instead of retrying it,
// the caller's way of distinguishing a retryable failure from one that
// will never succeed (e.g. a malformed request vs. a dropped connection).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Retry runs op under p's backoff schedule until it returns a nil error,
// op returns a Permanent-wrapped error, ctx is canceled, or the policy's
// MaxElapsedTime elapses. Intended to be called from inside a task body
// wrapping a PostAsyncIo operation, not from dispatcher code.
func (p RetryPolicy) Retry(ctx context.Context, op func() error) error {
	return backoff.Retry(op, p.backoff(ctx))
}
