// Package fiberdispatch is a hybrid cooperative/preemptive task dispatcher.
//
// A Dispatcher owns two worker pools: N cooperative ("fiber") workers that
// run lightweight, yieldable task bodies, and M I/O workers that run
// ordinary blocking bodies on their own goroutines. Work submitted to a
// cooperative queue never blocks a worker thread for long: a body that
// needs to wait (on another task's result, a timer, or a blocking I/O
// call) suspends itself and hands the thread back to the worker loop,
// which moves on to the next runnable task.
//
// # Quick start
//
//	d := core.New(*core.DefaultConfig())
//	d.Start(context.Background())
//	defer func() { d.Terminate(); d.Join() }()
//
//	ctx, _ := d.PostFirst(0, false, func(c *core.Context, y *core.Yielder) (any, error) {
//		return "hello", nil
//	})
//	ctx.Then(0, func(c *core.Context, y *core.Yielder) (any, error) {
//		prev, err := c.GetPrev()
//		if err != nil {
//			return nil, err
//		}
//		return prev.(string) + " world", nil
//	}, false)
//	ctx.End()
//
//	v, err := ctx.WaitAtBlocking(1)
//
// # Key concepts
//
// Context is a task chain: one PostFirst stage followed by any number of
// Then (runs on success), OnError (runs on failure) and one optional
// Finally stage. Each stage resolves a Promise the caller can wait on
// from another goroutine (WaitAtBlocking) or from inside a running
// coroutine (WaitAt, which suspends without blocking a worker thread).
//
// Queue ids select which cooperative worker (or, for I/O, which affine
// queue) a stage runs on. AnyQueue lets the dispatcher pick one; AllQueue
// is a query-only scope used with Size/Stats, never a task target.
//
// PostAsyncIo submits a standalone blocking body to the I/O pool and
// returns its Promise directly; it is not part of any Context chain.
//
// # Observability
//
// core.Metrics and core.PanicHandler are dispatcher-level hooks; the
// observability/prometheus package adapts them to Prometheus collectors
// and polls Dispatcher.Stats on an interval.
package fiberdispatch
