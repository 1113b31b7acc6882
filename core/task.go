package core

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"github.com/demin80/fiberdispatch/coroutine"
)

// TaskID uniquely identifies a Task for logging, metrics and history.
type TaskID = uuid.UUID

func newTaskID() TaskID { return uuid.New() }

// TaskType classifies a Task's role in its continuation chain (§3).
type TaskType int

const (
	TaskFirst TaskType = iota
	TaskContinuation
	TaskErrorHandler
	TaskFinal
	TaskIoTask
)

func (t TaskType) String() string {
	switch t {
	case TaskFirst:
		return "First"
	case TaskContinuation:
		return "Continuation"
	case TaskErrorHandler:
		return "ErrorHandler"
	case TaskFinal:
		return "Final"
	case TaskIoTask:
		return "IoTask"
	default:
		return "Unknown"
	}
}

// RunCode is the outcome surfaced by Task.Run to the worker loop (§4.3).
type RunCode int

const (
	RCSuccess RunCode = iota
	RCYield
	RCBlocked
	RCException
)

// Yielder is the yield handle passed into a task body. It wraps the
// underlying coroutine.Handle (C1) and records *why* the body suspended,
// so Task.Run can translate the suspension into the right RunCode.
// Context.validateContext compares a body's Yielder by identity against
// the one the worker is currently resuming, rejecting cross-task yields
// with BadContext.
type Yielder struct {
	h      coroutine.Handle
	reason RunCode

	// goroutineID is captured once, from inside the fiber's own goroutine,
	// the first time its body runs. It lets Context.validateContext
	// recognize a thread-blocking call made by this body on its own
	// chain, as opposed to one made by an unrelated external caller.
	goroutineID uint64
}

// Yield suspends the task; the worker re-enqueues it at normal priority.
func (y *Yielder) Yield() {
	y.reason = RCYield
	y.h.Yield()
}

// Block suspends the task without re-enqueueing it; some other actor
// (promise resolution, I/O completion) must re-enqueue it later.
func (y *Yielder) Block() {
	y.reason = RCBlocked
	y.h.Yield()
}

// Body is a task's coroutine: it runs on top of a Yielder that lets it
// cooperatively suspend, and returns a value or an error.
type Body func(ctx *Context, y *Yielder) (any, error)

type bodyResult struct {
	value any
	err   error
}

// Task is a unit of work: for cooperative tasks, a coroutine body; for
// I/O tasks (TaskIoTask), a callable run to completion on an I/O worker.
// Task is immutable once constructed apart from the small mutable fields
// guarded by mu (§3): current queue id, last return code, terminated.
type Task struct {
	id       TaskID
	typ      TaskType
	body     Body
	priority bool // admission hint only, not inherited on re-enqueue

	// owning Context. Conceptually a weak (non-owning) back-reference:
	// Task never extends the Context's lifetime; it is only ever
	// dereferenced while the Context itself keeps the chain alive.
	ctx *Context

	// continuation links. next is the strong (owning) pointer that keeps
	// the rest of the chain alive; prev is non-owning and exists so a
	// task can find its own stage index without the Context maintaining
	// a parallel index, never used to extend lifetime.
	next *Task
	prev *Task

	stageIndex int // index into ctx's promise sequence

	fiber   *coroutine.Fiber[bodyResult]
	yielder *Yielder

	mu         sync.Mutex
	queueID    int
	lastCode   RunCode
	terminated bool

	panicked   bool
	panicInfo  any
	panicStack []byte
}

// NewTask constructs a Task of the given type around body, with the given
// admission priority and initial queue id.
func NewTask(typ TaskType, body Body, priority bool, queueID int) *Task {
	return &Task{
		id:       newTaskID(),
		typ:      typ,
		body:     body,
		priority: priority,
		queueID:  queueID,
		yielder:  &Yielder{},
	}
}

func (t *Task) ID() TaskID       { return t.id }
func (t *Task) GetType() TaskType { return t.typ }
func (t *Task) Priority() bool   { return t.priority }
func (t *Task) Next() *Task      { return t.next }
func (t *Task) Prev() *Task      { return t.prev }

func (t *Task) QueueID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queueID
}

func (t *Task) setQueueID(id int) {
	t.mu.Lock()
	t.queueID = id
	t.mu.Unlock()
}

func (t *Task) LastCode() RunCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastCode
}

func (t *Task) Terminated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.terminated
}

func (t *Task) markTerminated() {
	t.mu.Lock()
	t.terminated = true
	t.mu.Unlock()
}

// link appends next as this task's successor, setting up both the
// strong forward link and the non-owning back link.
func (t *Task) link(next *Task) {
	next.stageIndex = t.stageIndex + 1
	next.prev = t
	t.next = next
}

// Run resumes the task's coroutine until its next yield or completion
// (§4.3). A fresh fiber is created on first run.
func (t *Task) Run() RunCode {
	if t.fiber == nil {
		if t.yielder == nil {
			t.yielder = &Yielder{}
		}
		y := t.yielder
		t.fiber = coroutine.Create(func(h coroutine.Handle) (res bodyResult) {
			y.h = h
			y.goroutineID = currentGoroutineID()
			defer func() {
				if r := recover(); r != nil {
					t.mu.Lock()
					t.panicked = true
					t.panicInfo = r
					t.panicStack = debug.Stack()
					t.mu.Unlock()
					res = bodyResult{err: UserException(fmt.Errorf("task panicked: %v", r))}
				}
			}()
			value, err := t.body(t.ctx, y)
			return bodyResult{value: value, err: err}
		})
	}

	status := t.fiber.Resume()

	var code RunCode
	if status == coroutine.Done {
		res := t.fiber.Result()
		if res.err != nil {
			code = RCException
		} else {
			code = RCSuccess
		}
	} else {
		code = t.yielder.reason
	}

	t.mu.Lock()
	t.lastCode = code
	t.mu.Unlock()

	return code
}

// Result returns the body's resolved value/error. Only meaningful once
// Run has returned RCSuccess or RCException.
func (t *Task) Result() (any, error) {
	if t.fiber == nil {
		return nil, nil
	}
	res := t.fiber.Result()
	return res.value, res.err
}

// PanicInfo reports whether the body panicked during its last Run, and if
// so the recovered value and captured stack trace.
func (t *Task) PanicInfo() (panicked bool, info any, stack []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.panicked, t.panicInfo, t.panicStack
}
