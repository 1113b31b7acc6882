package core

import "time"

// ioIdlePoll bounds how long an I/O worker sleeps between polls of its
// affine queue and the shared pool when both are momentarily empty.
const ioIdlePoll = 2 * time.Millisecond

// runCoopWorker is one cooperative worker's loop (C8): dequeue, run to the
// next yield/block/completion, dispatch on the result.
func (d *Dispatcher) runCoopWorker(q *CoopQueue) {
	for {
		t, ok := q.Dequeue()
		if !ok {
			return
		}
		d.runCoopTask(q, t)
	}
}

func (d *Dispatcher) runCoopTask(q *CoopQueue, t *Task) {
	ctx := t.ctx
	if ctx != nil {
		ctx.setActive(t)
	}

	start := time.Now()
	code := t.Run()

	if ctx != nil {
		ctx.clearActive()
	}
	finished := time.Now()

	if panicked, info, stack := t.PanicInfo(); panicked {
		d.cfg.Metrics.RecordTaskPanic(t.GetType(), info)
		d.cfg.Logger.Error("task panicked", F("taskID", t.ID()), F("type", t.GetType()), F("queueID", q.ID()), F("panic", info))
		d.cfg.PanicHandler.HandlePanic(t.ID(), t.GetType(), q.ID(), info, stack)
	}
	d.cfg.Metrics.RecordTaskDuration(t.GetType(), t.Priority(), finished.Sub(start))

	value, runErr := t.Result()
	panicked, _, _ := t.PanicInfo()
	d.history.Add(TaskExecutionRecord{
		TaskID:     t.ID(),
		Type:       t.GetType(),
		QueueID:    q.ID(),
		Code:       code,
		StartedAt:  start,
		FinishedAt: finished,
		Duration:   finished.Sub(start),
		Panicked:   panicked,
		Err:        runErr,
	})

	switch code {
	case RCYield:
		q.Requeue(t)
	case RCBlocked:
		// Some other actor (a resolving Promise, an I/O completion) holds
		// the responsibility of re-enqueueing t; the worker does nothing.
	case RCSuccess, RCException:
		d.finishTask(t, value, runErr)
	}
}

// finishTask resolves t's own stage promise and walks the chain policy
// table forward (§4.3): on success, skip any immediately-following
// ErrorHandler stages (pass the value through, mark them terminated)
// until landing on a Continuation or Final; on exception, skip any
// immediately-following Continuation stages (propagate the exception,
// mark them terminated) until landing on an ErrorHandler or Final. The
// landing stage, if any, is enqueued on its resolved target queue.
func (d *Dispatcher) finishTask(t *Task, value any, err error) {
	ctx := t.ctx
	if ctx == nil {
		return
	}

	ctx.mu.Lock()
	p := ctx.promises[t.stageIndex]
	ctx.mu.Unlock()

	if err != nil {
		_ = p.SetException(err)
	} else {
		_ = p.Set(value)
	}

	carryValue, carryErr := value, err
	landing := t.next
	for landing != nil {
		skipOnSuccess := carryErr == nil && landing.GetType() == TaskErrorHandler
		skipOnFailure := carryErr != nil && landing.GetType() == TaskContinuation
		if !skipOnSuccess && !skipOnFailure {
			break
		}

		ctx.mu.Lock()
		np := ctx.promises[landing.stageIndex]
		ctx.mu.Unlock()

		if skipOnSuccess {
			_ = np.Set(carryValue)
		} else {
			_ = np.SetException(carryErr)
		}
		landing.markTerminated()
		landing = landing.next
	}

	if landing == nil {
		return
	}
	if enqErr := d.enqueueTask(landing); enqErr != nil {
		d.rejectTask(enqErr.Error())
	}
}

// runIoWorker is one I/O worker's loop (C8): it alternates draining its
// own affine queue and the shared pool, so a steady stream of affine work
// never starves shared I/O tasks routed to this worker and vice versa.
func (d *Dispatcher) runIoWorker(workerID int, affine *AffineIOQueue) {
	for {
		ran := false
		if t, ok := affine.TryDequeue(); ok {
			d.runIoTask(t)
			ran = true
		}
		if t, ok := d.tryDequeueSharedRoundRobin(); ok {
			d.runIoTask(t)
			ran = true
		}
		if ran {
			continue
		}
		if affine.Terminated() && d.allSharedTerminated() {
			return
		}
		time.Sleep(ioIdlePoll)
	}
}

// tryDequeueSharedRoundRobin pops one task from the first non-empty shared
// queue, scanning in index order from queue 0 on every call; the starting
// queue does not rotate between calls.
func (d *Dispatcher) tryDequeueSharedRoundRobin() (*Task, bool) {
	for _, q := range d.ioShared {
		if t, ok := q.TryDequeue(); ok {
			return t, true
		}
	}
	return nil, false
}

func (d *Dispatcher) allSharedTerminated() bool {
	for _, q := range d.ioShared {
		if !q.Terminated() {
			return false
		}
	}
	return true
}

func (d *Dispatcher) runIoTask(t *Task) {
	ctx := t.ctx
	if ctx != nil {
		ctx.setActive(t)
	}

	start := time.Now()
	code := t.Run()

	if ctx != nil {
		ctx.clearActive()
	}
	finished := time.Now()

	if panicked, info, stack := t.PanicInfo(); panicked {
		d.cfg.Metrics.RecordTaskPanic(t.GetType(), info)
		d.cfg.Logger.Error("task panicked", F("taskID", t.ID()), F("type", t.GetType()), F("queueID", -1), F("panic", info))
		d.cfg.PanicHandler.HandlePanic(t.ID(), t.GetType(), -1, info, stack)
	}
	d.cfg.Metrics.RecordTaskDuration(t.GetType(), t.Priority(), finished.Sub(start))

	value, runErr := t.Result()
	panicked, _, _ := t.PanicInfo()
	d.history.Add(TaskExecutionRecord{
		TaskID:     t.ID(),
		Type:       t.GetType(),
		QueueID:    -1,
		Code:       code,
		StartedAt:  start,
		FinishedAt: finished,
		Duration:   finished.Sub(start),
		Panicked:   panicked,
		Err:        runErr,
	})

	if code == RCSuccess || code == RCException {
		if ctx != nil {
			ctx.mu.Lock()
			p := ctx.promises[t.stageIndex]
			ctx.mu.Unlock()
			if runErr != nil {
				_ = p.SetException(runErr)
			} else {
				_ = p.Set(value)
			}
		}
	}
	// A blocking I/O task never yields mid-body (§4.2): it runs to
	// completion on its worker thread, so RCYield/RCBlocked never surface
	// here in practice. If a body does call y.Yield()/y.Block() it is
	// simply dropped and its task is abandoned, mirroring a programming
	// error rather than a supported suspension point.
}
