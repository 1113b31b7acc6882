package core

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ContextID uniquely identifies a Context.
type ContextID = uuid.UUID

// errPending is returned by GetAt/GetRefAt when the requested stage
// hasn't resolved yet. It is not one of the seven §7 kinds (it signals a
// programming error, reading ahead of the sequential guarantee, rather
// than a structural or lifecycle violation).
var errPending = errors.New("core: stage value not yet resolved")

// Context is the per-task façade binding a task chain (C6): it owns the
// ordered sequence of Promises (one per submitted stage), and exposes
// the user API for waiting on and reading any prior stage. A Context is
// shared by every Task in its continuation chain; Task references its
// owning Context only through this type, never extending its lifetime.
type Context struct {
	id ContextID

	mu         sync.Mutex
	promises   []*Promise
	tasks      []*Task
	hasFinal   bool
	ended      bool
	terminated bool

	// activeYielder/activeTask mark which task (if any) of this chain is
	// presently mid-Run on some worker. nil means no stage of this chain
	// is currently executing on a cooperative worker, so any
	// coroutine-waiting call made right now is, by construction, coming
	// from outside a coroutine (see validateContext / S5). A non-nil
	// activeYielder does not by itself forbid a thread-blocking wait: it
	// is only forbidden when the calling goroutine is the one running
	// that Yielder's body (see validateContext).
	activeYielder *Yielder
	activeTask    *Task

	dispatcher *Dispatcher
}

// NewContext creates an empty chain bound to d. The first stage is
// attached separately via appendStage from Dispatcher.PostFirst.
func NewContext(d *Dispatcher) *Context {
	return &Context{id: uuid.New(), dispatcher: d}
}

func (c *Context) ID() ContextID { return c.id }

// index maps num<0 to a stage relative to the currently active stage
// (the canonical way for a running continuation to reference an earlier
// stage: -1 is "the stage right before me", regardless of how much of
// the chain has already been appended ahead of it), or relative to the
// last appended stage when no stage of this chain is currently active
// (the thread-waiting, outside-the-chain case, where -1 means "the
// final stage"). Bounds-checks the result (§4.5).
func (c *Context) index(num int) (int, error) {
	c.mu.Lock()
	n := len(c.promises)
	base := n
	if c.activeTask != nil {
		base = c.activeTask.stageIndex
	}
	c.mu.Unlock()

	idx := num
	if idx < 0 {
		idx = base + idx
	}
	if idx < 0 || idx >= n {
		return 0, newErrf(KindInvalidQueueID, "stage index %d out of range [0,%d)", num, n)
	}
	return idx, nil
}

// validateContext enforces §4.5: a coroutine-waiting call must present
// the Yielder belonging to the task currently executing this chain; a
// thread-waiting call must NOT be made by the goroutine currently running
// this chain's active stage body (that would mean a cooperative task
// calling a blocking form on itself). An external caller waiting from its
// own goroutine is always allowed, regardless of whether some stage of
// this chain happens to be mid-run on a worker at the same time.
func (c *Context) validateContext(y *Yielder) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if y == nil {
		if c.activeYielder != nil && c.activeYielder.goroutineID == currentGoroutineID() {
			return newErr(KindBadContext, "thread-blocking wait invoked from within the running coroutine body")
		}
		return nil
	}
	if c.activeYielder != y {
		return newErr(KindBadContext, "yield handle does not match the currently running task")
	}
	return nil
}

// validateTaskType enforces §4.5: First may only be the head of a chain
// (submitted via PostFirst/postAsyncIo, never through then()/onError());
// finally() may only be used once per chain. Caller holds c.mu.
func (c *Context) validateTaskType(typ TaskType) error {
	isHead := len(c.tasks) == 0
	if typ == TaskFirst && !isHead {
		return newErr(KindChainClosed, "First may only be submitted via postFirst")
	}
	if typ != TaskFirst && typ != TaskIoTask && isHead {
		return newErr(KindChainClosed, "chain must begin with a First stage")
	}
	if typ == TaskFinal && c.hasFinal {
		return newErr(KindChainClosed, "finally already submitted for this chain")
	}
	return nil
}

// appendStage appends t as the next stage, wiring chain links and
// allocating its promise. Caller must hold no locks; appendStage takes
// c.mu itself.
func (c *Context) appendStage(t *Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.terminated {
		return newErr(KindTerminated, "context terminated")
	}
	if c.ended {
		return newErr(KindChainClosed, "chain already ended")
	}
	if err := c.validateTaskType(t.typ); err != nil {
		return err
	}

	t.ctx = c
	if n := len(c.tasks); n > 0 {
		c.tasks[n-1].link(t)
	} else {
		t.stageIndex = 0
	}
	c.tasks = append(c.tasks, t)
	c.promises = append(c.promises, NewPromise())
	if t.typ == TaskFinal {
		c.hasFinal = true
	}
	return nil
}

// Then appends a Continuation stage targeting queueID (AnyQueue lets the
// dispatcher pick when the stage actually becomes runnable).
func (c *Context) Then(queueID int, body Body, priority bool) (*Task, error) {
	t := NewTask(TaskContinuation, body, priority, queueID)
	if err := c.appendStage(t); err != nil {
		return nil, err
	}
	return t, nil
}

// OnError appends an ErrorHandler stage.
func (c *Context) OnError(queueID int, body Body, priority bool) (*Task, error) {
	t := NewTask(TaskErrorHandler, body, priority, queueID)
	if err := c.appendStage(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Finally appends the chain's single Final stage.
func (c *Context) Finally(queueID int, body Body, priority bool) (*Task, error) {
	t := NewTask(TaskFinal, body, priority, queueID)
	if err := c.appendStage(t); err != nil {
		return nil, err
	}
	return t, nil
}

// End closes the chain: no further stages may be appended. If the chain
// has no explicit Final, a synthetic no-op sink is appended so the chain
// policy table (§4.3) always has somewhere to land.
func (c *Context) End() *Context {
	c.mu.Lock()
	needSink := !c.hasFinal && !c.ended
	c.mu.Unlock()

	if needSink {
		sink := NewTask(TaskFinal, func(ctx *Context, y *Yielder) (any, error) {
			return nil, nil
		}, false, 0)
		_ = c.appendStage(sink)
	}

	c.mu.Lock()
	c.ended = true
	c.mu.Unlock()
	return c
}

// setActive marks t (belonging to this chain) as the task presently
// being resumed, along with its Yielder, so validateContext can
// recognise coroutine-waiting calls made from within it. Called by the
// worker loop immediately before Task.Run and cleared immediately after.
func (c *Context) setActive(t *Task) {
	c.mu.Lock()
	c.activeTask = t
	c.activeYielder = t.yielder
	c.mu.Unlock()
}

func (c *Context) clearActive() {
	c.mu.Lock()
	c.activeTask = nil
	c.activeYielder = nil
	c.mu.Unlock()
}

// GetAt returns the resolved value at stage num (negative indices are
// resolved as index describes: relative to the active stage, or from the
// end of the chain when no stage is active), or errPending if that stage
// hasn't resolved yet.
func (c *Context) GetAt(num int) (any, error) {
	idx, err := c.index(num)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	p := c.promises[idx]
	c.mu.Unlock()

	state, v, e := p.Peek()
	if state == Pending {
		return nil, errPending
	}
	return v, e
}

// GetRefAt is GetAt without the copy/reference distinction that only
// matters in a language with by-value/by-reference duality; in Go it is
// equivalent to GetAt and kept only for callers that prefer the name.
func (c *Context) GetRefAt(num int) (any, error) { return c.GetAt(num) }

// GetPrev is GetAt(-1).
func (c *Context) GetPrev() (any, error) { return c.GetAt(-1) }

// WaitAt is the coroutine-waiting form of waiting on stage num.
func (c *Context) WaitAt(y *Yielder, num int) (any, error) {
	if err := c.validateContext(y); err != nil {
		return nil, err
	}
	idx, err := c.index(num)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	p := c.promises[idx]
	task := c.activeTask
	c.mu.Unlock()

	return p.AwaitCoro(y, func() { c.dispatcher.requeue(task) })
}

// AwaitPromise coroutine-waits on p, a Promise that isn't one of this
// chain's own stages, typically the Promise returned by PostAsyncIo.
// Like WaitAt it never blocks the calling worker thread.
func (c *Context) AwaitPromise(y *Yielder, p *Promise) (any, error) {
	if err := c.validateContext(y); err != nil {
		return nil, err
	}
	c.mu.Lock()
	task := c.activeTask
	c.mu.Unlock()

	return p.AwaitCoro(y, func() { c.dispatcher.requeue(task) })
}

// WaitAtBlocking is the thread-waiting form of waiting on stage num.
func (c *Context) WaitAtBlocking(num int) (any, error) {
	if err := c.validateContext(nil); err != nil {
		return nil, err
	}
	idx, err := c.index(num)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	p := c.promises[idx]
	c.mu.Unlock()
	return p.Wait()
}

// WaitAll coroutine-waits on every stage prior to the currently running
// one, in order.
func (c *Context) WaitAll(y *Yielder) error {
	if err := c.validateContext(y); err != nil {
		return err
	}
	c.mu.Lock()
	n := c.activeTask.stageIndex // stages strictly before the currently running one
	c.mu.Unlock()

	for i := 0; i < n; i++ {
		if _, err := c.WaitAt(y, i); err != nil {
			return err
		}
	}
	return nil
}

// Set resolves the currently active stage's promise directly, an
// escape hatch for bodies that want to publish a value before they
// actually return (e.g. I/O callbacks). The worker loop also resolves
// the promise from the body's return value; calling Set a second time
// is rejected with PromiseAlreadySet like any other resolution.
func (c *Context) Set(v any) error {
	c.mu.Lock()
	task := c.activeTask
	c.mu.Unlock()
	if task == nil {
		return newErr(KindBadContext, "Set called with no active stage")
	}
	idx := task.stageIndex
	c.mu.Lock()
	p := c.promises[idx]
	c.mu.Unlock()
	return p.Set(v)
}

// Sleep suspends the currently running coroutine for d and resumes it
// afterwards: the coroutine suspension point named in §5, backed by the
// package-level TimerService (defaultTimers) rather than a blocking time.Sleep,
// which would tie up the cooperative worker thread for every other task
// queued behind it.
func (c *Context) Sleep(y *Yielder, d time.Duration) error {
	if err := c.validateContext(y); err != nil {
		return err
	}
	c.mu.Lock()
	task := c.activeTask
	c.mu.Unlock()

	defaultTimers.After(d, func() { c.dispatcher.requeue(task) })
	y.Block()
	return nil
}

// PostAsyncIo submits body as a blocking I/O task through this
// Context's dispatcher, returning a standalone Promise (future) for it;
// it is not part of this chain's stage sequence.
func (c *Context) PostAsyncIo(queueID int, priority bool, body Body) (*Promise, error) {
	return c.dispatcher.postAsyncIo(queueID, priority, body)
}

// Terminate fails every unresolved promise in the chain with Terminated
// and prevents further stages from being appended (§3, §5). Idempotent.
func (c *Context) Terminate() {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return
	}
	c.terminated = true
	promises := append([]*Promise(nil), c.promises...)
	c.mu.Unlock()

	for _, p := range promises {
		p.terminate()
	}
}

func (c *Context) Terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated
}

// stageCount reports how many stages have been submitted so far.
func (c *Context) stageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.promises)
}

// head returns the first task of the chain (stage 0), the one routed by
// Dispatcher.PostFirst.
func (c *Context) head() *Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tasks) == 0 {
		return nil
	}
	return c.tasks[0]
}

func (c *Context) promiseAt(idx int) *Promise {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.promises[idx]
}
