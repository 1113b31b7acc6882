package core

import (
	"sync"
	"time"
)

// PromiseState is one of the three states a Promise can be in (§3).
type PromiseState int

const (
	Pending PromiseState = iota
	Fulfilled
	Failed
)

// WaitOutcome is returned by the timed wait forms (§4.4).
type WaitOutcome int

const (
	Ready WaitOutcome = iota
	Timeout
)

// Promise is a single-slot, multi-waiter synchronisation primitive
// carrying a value or an exception (C5). In buffer mode it instead acts
// as a bounded, closable multi-producer/single-consumer channel of
// values (§4.4).
//
// Resolution happens-before any subsequent successful wait that observes
// it (§5): every read of state/value/err below happens under mu, and
// every write that flips state out of Pending happens under the same
// mu, which gives the required release/acquire pairing for free.
type Promise struct {
	mu   sync.Mutex
	cond *sync.Cond

	state PromiseState
	value any
	err   error

	onResolve []func()

	buffered bool
	buf      []any
	closed   bool
	capacity int
}

// NewPromise creates a one-shot promise slot.
func NewPromise() *Promise {
	p := &Promise{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// NewBufferPromise creates a promise in buffer mode: a closable queue of
// values bounded by capacity (capacity<=0 means unbounded).
func NewBufferPromise(capacity int) *Promise {
	p := &Promise{buffered: true, capacity: capacity}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Set transitions Pending -> Fulfilled. A second call fails with
// PromiseAlreadySet.
func (p *Promise) Set(v any) error {
	p.mu.Lock()
	if p.state != Pending {
		p.mu.Unlock()
		return newErr(KindPromiseAlreadySet, "promise already resolved")
	}
	p.state = Fulfilled
	p.value = v
	cbs := p.onResolve
	p.onResolve = nil
	p.mu.Unlock()

	p.cond.Broadcast()
	for _, cb := range cbs {
		cb()
	}
	return nil
}

// SetException transitions Pending -> Failed.
func (p *Promise) SetException(err error) error {
	p.mu.Lock()
	if p.state != Pending {
		p.mu.Unlock()
		return newErr(KindPromiseAlreadySet, "promise already resolved")
	}
	p.state = Failed
	p.err = err
	cbs := p.onResolve
	p.onResolve = nil
	p.mu.Unlock()

	p.cond.Broadcast()
	for _, cb := range cbs {
		cb()
	}
	return nil
}

// terminate resolves a still-pending promise as Failed with a
// "terminated" reason; a no-op if already resolved (idempotent from the
// caller's point of view: Context.Terminate calls this on every
// promise in its chain).
func (p *Promise) terminate() {
	_ = p.SetException(newErr(KindTerminated, "context terminated"))
}

// Peek returns the current state without blocking.
func (p *Promise) Peek() (PromiseState, any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.value, p.err
}

func (p *Promise) pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == Pending
}

// onResolveOnce registers cb to run exactly once when the promise leaves
// Pending: immediately (synchronously, inline) if already resolved,
// otherwise queued for the resolving Set/SetException call.
func (p *Promise) onResolveOnce(cb func()) {
	p.mu.Lock()
	if p.state != Pending {
		p.mu.Unlock()
		cb()
		return
	}
	p.onResolve = append(p.onResolve, cb)
	p.mu.Unlock()
}

// Wait blocks the calling OS thread until the promise resolves.
func (p *Promise) Wait() (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.state == Pending {
		p.cond.Wait()
	}
	return p.value, p.err
}

// WaitFor blocks the calling OS thread until the promise resolves or
// timeout elapses.
func (p *Promise) WaitFor(timeout time.Duration) (any, error, WaitOutcome) {
	deadline := time.Now().Add(timeout)

	p.mu.Lock()
	defer p.mu.Unlock()

	for p.state == Pending {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil, Timeout
		}
		timer := time.AfterFunc(remaining, p.cond.Broadcast)
		p.cond.Wait()
		timer.Stop()
	}
	return p.value, p.err, Ready
}

// AwaitCoro is the coroutine-waiting form: it repeatedly yields the
// cooperative task (via y.Block, so the worker does not re-enqueue it)
// until the promise resolves, relying on wake being called by whatever
// holds this promise (typically Context, re-enqueueing the blocked
// task) once resolution notifies it (§4.4, §9: edge-triggered, the loop
// observes readiness on its next resumption).
func (p *Promise) AwaitCoro(y *Yielder, wake func()) (any, error) {
	for {
		state, v, err := p.Peek()
		if state != Pending {
			return v, err
		}
		p.onResolveOnce(wake)
		y.Block()
	}
}

// AwaitCoroTimeout is AwaitCoro bounded by a monotonic deadline (§4.4). A
// TimerService callback re-enqueues the task at the deadline the same way
// promise resolution does, so the suspended coroutine is guaranteed to be
// resumed and re-check Peek even if the promise never resolves.
func (p *Promise) AwaitCoroTimeout(y *Yielder, wake func(), timeout time.Duration) (any, error, WaitOutcome) {
	deadline := time.Now().Add(timeout)
	for {
		state, v, err := p.Peek()
		if state != Pending {
			return v, err, Ready
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil, Timeout
		}

		var once sync.Once
		wakeOnce := func() { once.Do(wake) }

		cancelTimer := defaultTimers.After(remaining, wakeOnce)
		p.onResolveOnce(wakeOnce)
		y.Block()
		cancelTimer()
	}
}

// Push appends a value to a buffer-mode promise. Fails after Close, and
// fails once the buffer holds capacity values (capacity<=0 means
// unbounded) rather than blocking the caller, the same contract
// AffineIOQueue/SharedIOQueue use for their own bounded capacity.
func (p *Promise) Push(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.buffered {
		return newErr(KindInvalidArgument, "promise is not in buffer mode")
	}
	if p.closed {
		return newErr(KindChainClosed, "buffer closed")
	}
	if p.capacity > 0 && len(p.buf) >= p.capacity {
		return newErr(KindInvalidArgument, "buffer full")
	}
	p.buf = append(p.buf, v)
	p.cond.Broadcast()
	cbs := p.onResolve
	p.onResolve = nil
	for _, cb := range cbs {
		cb()
	}
	return nil
}

// CloseBuffer marks end-of-stream: further Push calls fail, and Pull
// calls drain remaining buffered values before reporting closed=true.
func (p *Promise) CloseBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.buffered {
		return newErr(KindInvalidArgument, "promise is not in buffer mode")
	}
	p.closed = true
	p.cond.Broadcast()
	cbs := p.onResolve
	p.onResolve = nil
	for _, cb := range cbs {
		cb()
	}
	return nil
}

// PullBlocking is the thread-waiting buffer pull: blocks the OS thread
// while empty and not closed.
func (p *Promise) PullBlocking() (v any, closed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.buf) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.buf) == 0 {
		return nil, true
	}
	v, p.buf = p.buf[0], p.buf[1:]
	return v, false
}

// PullCoro is the coroutine-waiting buffer pull.
func (p *Promise) PullCoro(y *Yielder, wake func()) (v any, closed bool) {
	for {
		p.mu.Lock()
		if len(p.buf) > 0 {
			v = p.buf[0]
			p.buf = p.buf[1:]
			p.mu.Unlock()
			return v, false
		}
		if p.closed {
			p.mu.Unlock()
			return nil, true
		}
		p.mu.Unlock()
		p.onResolveOnce(wake)
		y.Block()
	}
}
