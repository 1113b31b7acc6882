// Package coroutine provides a stackful-coroutine stand-in built from a
// goroutine and a pair of unbuffered channels, in the style of
// contrib/lockservertranslated/coro.go's CreateCoro: the body runs on its
// own goroutine and hands control back to its caller by sending a status
// down one channel and blocking on the other until resumed.
//
// This is the {create, resume, yield} primitive spec.md treats as an
// external collaborator (C1). Everything above this package (queues,
// tasks, promises, the dispatcher) is built on top of the handle it
// returns and never touches goroutines or channels directly.
package coroutine

// Status is the outcome of one Resume call.
type Status int

const (
	// Running means the body yielded and wants to be resumed again.
	Running Status = iota
	// Done means the body returned; Resume will keep returning Done.
	Done
)

// Handle is passed into the coroutine body so it can suspend itself.
// It must never be used by any goroutine other than the one currently
// resuming the coroutine that owns it (see BadContext in core/errors.go).
type Handle interface {
	// Yield suspends the coroutine body until the next Resume call.
	Yield()
}

// Fiber is a single-shot stackful coroutine over a body of type
// func(Handle) R.
type Fiber[R any] struct {
	in   chan struct{}
	out  chan Status
	done bool
	result R
}

type handle struct {
	in  chan struct{}
	out chan Status
}

func (h *handle) Yield() {
	h.out <- Running
	<-h.in
}

// Create builds a new Fiber around f. The body does not start running
// until the first call to Resume.
func Create[R any](f func(h Handle) R) *Fiber[R] {
	fb := &Fiber[R]{
		in:  make(chan struct{}),
		out: make(chan Status),
	}
	h := &handle{in: fb.in, out: fb.out}
	go func() {
		<-fb.in
		r := f(h)
		fb.result = r
		fb.out <- Done
	}()
	return fb
}

// Resume runs the coroutine body until its next Yield or return, and
// reports which happened. Calling Resume after Done has already been
// observed is a no-op that keeps returning Done and the final result.
func (fb *Fiber[R]) Resume() Status {
	if fb.done {
		return Done
	}
	fb.in <- struct{}{}
	st := <-fb.out
	if st == Done {
		fb.done = true
	}
	return st
}

// Result returns the body's return value. Only meaningful once Resume
// has reported Done.
func (fb *Fiber[R]) Result() R {
	return fb.result
}

// Finished reports whether the body has returned.
func (fb *Fiber[R]) Finished() bool {
	return fb.done
}
