package core

import (
	"context"
	"sync/atomic"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
)

// Queue id sentinels (§3, GLOSSARY). Any instructs the dispatcher to pick
// a target at submission time; All is a query-only aggregation scope and
// is never a valid task target.
const (
	AnyQueue = -1
	AllQueue = -2
)

// QueueTypeFilter scopes a size/empty/stats query (§4.6).
type QueueTypeFilter int

const (
	FilterAll QueueTypeFilter = iota
	FilterCoro
	FilterIO
)

// Config configures a Dispatcher (§6): the cooperative/I/O worker-pool
// shape §4.6 requires.
type Config struct {
	// NumCoroutineThreads: -1 = hardware concurrency, 0 = exactly one
	// worker, >=1 = that many workers.
	NumCoroutineThreads int
	// NumIoThreads: <=0 = exactly one worker, >=1 = that many workers.
	NumIoThreads int
	// PinCoroutineThreadsToCores requests OS-thread affinity per
	// cooperative worker (advisory; see CoopQueue.PinToCore).
	PinCoroutineThreadsToCores bool
	// CoroQueueIDRangeForAny is the [lo,hi) range Any routing scans for
	// cooperative submissions. An empty or inverted range falls back to
	// the full [0, NumCoroutineThreads) range.
	CoroQueueIDRangeForAny [2]int
	// LoadBalanceSharedIoQueues enables round-robin tryEnqueue across
	// shared I/O queues for postAsyncIo(Any); otherwise Any targets
	// shared queue 0 and wakes every affine I/O worker.
	LoadBalanceSharedIoQueues bool
	// NumSharedIoQueues: how many shared I/O queues to create (>=1).
	NumSharedIoQueues int
	// IOQueueCapacity bounds each I/O queue (<=0 = unbounded); only
	// matters for tryEnqueue-based balancing and overflow detection.
	IOQueueCapacity int
	// MaxBalanceAttempts bounds the shared-queue balancer's retry loop
	// (§9 open question resolution, see DESIGN.md). <=0 uses a default.
	MaxBalanceAttempts int
	// IOOverflowBreaker, if set, wraps the balancer: sustained overflow
	// trips it open instead of retrying forever. Optional, nil by
	// default.
	IOOverflowBreaker *gobreaker.CircuitBreaker

	PanicHandler        PanicHandler
	Metrics             Metrics
	RejectedTaskHandler RejectedTaskHandler
	Logger              Logger
}

// DefaultConfig returns a single-cooperative-worker, single-I/O-worker
// configuration with default handlers.
func DefaultConfig() *Config {
	return &Config{
		NumCoroutineThreads: 0,
		NumIoThreads:        0,
		NumSharedIoQueues:   1,
		MaxBalanceAttempts:  defaultMaxBalanceAttempts,
		PanicHandler:        &DefaultPanicHandler{},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{},
		Logger:              NewNoOpLogger(),
	}
}

const defaultMaxBalanceAttempts = 8

// Dispatcher owns the two worker pools and every queue they drain (C7).
type Dispatcher struct {
	cfg Config

	coopQueues []*CoopQueue
	coroLo     int
	coroHi     int

	ioAffine []*AffineIOQueue
	ioShared []*SharedIOQueue
	rrIndex  uint64

	history *executionHistory

	terminated int32

	runCtx context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New constructs a Dispatcher from cfg but does not start any workers;
// call Start to launch the pools.
func New(cfg Config) *Dispatcher {
	if cfg.PanicHandler == nil {
		cfg.PanicHandler = &DefaultPanicHandler{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &NilMetrics{}
	}
	if cfg.RejectedTaskHandler == nil {
		cfg.RejectedTaskHandler = &DefaultRejectedTaskHandler{}
	}
	if cfg.Logger == nil {
		cfg.Logger = NewNoOpLogger()
	}
	if cfg.MaxBalanceAttempts <= 0 {
		cfg.MaxBalanceAttempts = defaultMaxBalanceAttempts
	}
	if cfg.NumSharedIoQueues <= 0 {
		cfg.NumSharedIoQueues = 1
	}

	numCoro := resolveCoroWorkerCount(cfg.NumCoroutineThreads)
	numIo := cfg.NumIoThreads
	if numIo <= 0 {
		numIo = 1
	}

	lo, hi := cfg.CoroQueueIDRangeForAny[0], cfg.CoroQueueIDRangeForAny[1]
	if hi <= lo || lo < 0 || hi > numCoro {
		lo, hi = 0, numCoro
	}

	d := &Dispatcher{
		cfg:     cfg,
		coroLo:  lo,
		coroHi:  hi,
		history: newExecutionHistoryPtr(defaultTaskHistoryCapacity),
	}

	for i := 0; i < numCoro; i++ {
		q := NewCoopQueue(i)
		if cfg.PinCoroutineThreadsToCores {
			q.PinToCore(i)
		}
		d.coopQueues = append(d.coopQueues, q)
	}
	for i := 0; i < numIo; i++ {
		d.ioAffine = append(d.ioAffine, NewAffineIOQueue(cfg.IOQueueCapacity))
	}
	for i := 0; i < cfg.NumSharedIoQueues; i++ {
		d.ioShared = append(d.ioShared, NewSharedIOQueue(cfg.IOQueueCapacity))
	}

	return d
}

func resolveCoroWorkerCount(n int) int {
	switch {
	case n == -1:
		return defaultWorkerCount()
	case n == 0:
		return 1
	case n > 0:
		return n
	default:
		return 1
	}
}

// Start launches every worker goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	d.runCtx, d.cancel = context.WithCancel(ctx)
	d.group, _ = errgroup.WithContext(context.Background())

	d.cfg.Logger.Info("dispatcher starting",
		F("coroutineWorkers", len(d.coopQueues)),
		F("ioWorkers", len(d.ioAffine)),
		F("sharedIoQueues", len(d.ioShared)))

	for _, q := range d.coopQueues {
		q := q
		d.group.Go(func() error {
			d.runCoopWorker(q)
			return nil
		})
	}
	for i, q := range d.ioAffine {
		q, workerID := q, i
		d.group.Go(func() error {
			d.runIoWorker(workerID, q)
			return nil
		})
	}
}

// Join waits for every worker goroutine to exit (after Terminate).
func (d *Dispatcher) Join() error {
	if d.group == nil {
		return nil
	}
	return d.group.Wait()
}

// PostFirst submits the first stage of a new chain and returns its
// Context. Post is an alias kept for §6 API-surface parity.
func (d *Dispatcher) PostFirst(queueID int, priority bool, body Body) (*Context, error) {
	if atomic.LoadInt32(&d.terminated) == 1 {
		d.rejectTask("dispatcher terminated")
		return nil, newErr(KindTerminated, "dispatcher terminated")
	}

	ctx := NewContext(d)
	t := NewTask(TaskFirst, body, priority, queueID)
	if err := ctx.appendStage(t); err != nil {
		return nil, err
	}
	if err := d.enqueueTask(t); err != nil {
		return nil, err
	}
	return ctx, nil
}

func (d *Dispatcher) Post(queueID int, priority bool, body Body) (*Context, error) {
	return d.PostFirst(queueID, priority, body)
}

// postAsyncIo submits body as a standalone blocking I/O task (§4.5,
// §4.6) and returns the Promise acting as its Future.
func (d *Dispatcher) postAsyncIo(queueID int, priority bool, body Body) (*Promise, error) {
	if atomic.LoadInt32(&d.terminated) == 1 {
		d.rejectTask("dispatcher terminated")
		return nil, newErr(KindTerminated, "dispatcher terminated")
	}

	ctx := NewContext(d)
	t := NewTask(TaskIoTask, body, priority, queueID)
	if err := ctx.appendStage(t); err != nil {
		return nil, err
	}

	if queueID == AnyQueue {
		if err := d.routeIoAny(t); err != nil {
			return nil, err
		}
	} else {
		if queueID < 0 || queueID >= len(d.ioAffine) {
			return nil, newErrf(KindInvalidQueueID, "io queue id %d out of range", queueID)
		}
		d.ioAffine[queueID].Enqueue(t)
	}

	return ctx.promiseAt(0), nil
}

func (d *Dispatcher) routeIoAny(t *Task) error {
	route := func() error {
		if d.cfg.LoadBalanceSharedIoQueues {
			return d.balanceSharedIo(t)
		}
		d.ioShared[0].Enqueue(t)
		for _, aff := range d.ioAffine {
			aff.SignalEmptyCondition(false)
		}
		return nil
	}

	if d.cfg.IOOverflowBreaker == nil {
		return route()
	}
	_, err := d.cfg.IOOverflowBreaker.Execute(func() (any, error) {
		return nil, route()
	})
	return err
}

// balanceSharedIo round-robins tryEnqueue across shared queues, bounded
// by MaxBalanceAttempts: the §9 open-question resolution, a bounded
// retry with a reported overflow instead of an unbounded busy-spin.
func (d *Dispatcher) balanceSharedIo(t *Task) error {
	n := len(d.ioShared)
	attempts := d.cfg.MaxBalanceAttempts
	if attempts < n {
		attempts = n
	}
	for i := 0; i < attempts; i++ {
		idx := atomic.AddUint64(&d.rrIndex, 1) % uint64(n)
		if d.ioShared[idx].TryEnqueue(t) {
			return nil
		}
	}
	d.rejectTask("shared I/O queues overflowed")
	return newErrf(KindInvalidArgument, "shared I/O queues overflowed after %d attempts", attempts)
}

// rejectTask records a task that could not be admitted: a structured log
// entry, a metric, and the configured RejectedTaskHandler, in that order.
func (d *Dispatcher) rejectTask(reason string) {
	d.cfg.Logger.Warn("task rejected", F("reason", reason))
	d.cfg.Metrics.RecordTaskRejected(reason)
	d.cfg.RejectedTaskHandler.HandleRejectedTask(reason)
}

// requeue is the wake callback a blocked task's promise or timer invokes
// on resolution (§4.4, §9); the worker loop re-enqueues a plain Yield
// through CoopQueue.Requeue directly.
func (d *Dispatcher) requeue(t *Task) {
	if t == nil {
		return
	}
	d.coopQueues[t.QueueID()].Requeue(t)
}

// enqueueTask resolves Any (if requested) and places t on its target
// queue at its admission priority. Used for PostFirst and for every
// chain hop dispatchNext performs.
func (d *Dispatcher) enqueueTask(t *Task) error {
	id := t.QueueID()
	resolved, err := d.resolveCoopQueueID(id)
	if err != nil {
		return err
	}
	t.setQueueID(resolved)
	d.coopQueues[resolved].Enqueue(t, t.Priority())
	return nil
}

// resolveCoopQueueID implements §4.6's Any routing: scan the configured
// range and pick the first queue with the smallest size, breaking ties
// by lowest index, short-circuiting on the first empty queue found.
func (d *Dispatcher) resolveCoopQueueID(queueID int) (int, error) {
	if queueID == AnyQueue {
		best := d.coroLo
		bestSize := -1
		for i := d.coroLo; i < d.coroHi; i++ {
			sz := d.coopQueues[i].Size()
			if sz == 0 {
				return i, nil
			}
			if bestSize == -1 || sz < bestSize {
				bestSize = sz
				best = i
			}
		}
		return best, nil
	}
	if queueID < 0 || queueID >= len(d.coopQueues) {
		return 0, newErrf(KindInvalidQueueID, "queue id %d out of range [0,%d)", queueID, len(d.coopQueues))
	}
	return queueID, nil
}

// Terminate idempotently shuts every owned queue down, which causes
// every worker to exit after its current task (§4.6, invariant 6).
func (d *Dispatcher) Terminate() {
	if !atomic.CompareAndSwapInt32(&d.terminated, 0, 1) {
		return
	}
	d.cfg.Logger.Info("dispatcher terminating")
	for _, q := range d.coopQueues {
		q.Terminate()
	}
	for _, q := range d.ioAffine {
		q.Terminate()
	}
	for _, q := range d.ioShared {
		q.Terminate()
	}
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Dispatcher) Terminated() bool {
	return atomic.LoadInt32(&d.terminated) == 1
}

// Size implements §4.6's query API.
func (d *Dispatcher) Size(qtype QueueTypeFilter, queueID int) (int, error) {
	switch queueID {
	case AllQueue:
		total := 0
		if qtype == FilterAll || qtype == FilterCoro {
			for _, q := range d.coopQueues {
				total += q.Size()
			}
		}
		if qtype == FilterAll || qtype == FilterIO {
			for _, q := range d.ioAffine {
				total += q.Size()
			}
			for _, q := range d.ioShared {
				total += q.Size()
			}
		}
		return total, nil
	case AnyQueue:
		if qtype != FilterIO {
			return 0, newErr(KindInvalidArgument, "Any query scope is only meaningful for Io")
		}
		total := 0
		for _, q := range d.ioShared {
			total += q.Size()
		}
		return total, nil
	default:
		if qtype == FilterAll {
			return 0, newErr(KindInvalidArgument, "All type is invalid with a real queue id")
		}
		if qtype == FilterCoro {
			if queueID < 0 || queueID >= len(d.coopQueues) {
				return 0, newErrf(KindInvalidQueueID, "coro queue id %d out of range", queueID)
			}
			return d.coopQueues[queueID].Size(), nil
		}
		if queueID < 0 || queueID >= len(d.ioAffine) {
			return 0, newErrf(KindInvalidQueueID, "io queue id %d out of range", queueID)
		}
		return d.ioAffine[queueID].Size(), nil
	}
}

func (d *Dispatcher) Empty(qtype QueueTypeFilter, queueID int) (bool, error) {
	n, err := d.Size(qtype, queueID)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// DispatcherStats is the aggregate snapshot returned by Stats(All, All).
type DispatcherStats struct {
	Coro []QueueStats
	Io   []QueueStats
}

// Stats mirrors Size's scoping rules but returns full QueueStats
// snapshots instead of a single integer.
func (d *Dispatcher) Stats(qtype QueueTypeFilter, queueID int) (DispatcherStats, error) {
	var out DispatcherStats
	switch queueID {
	case AllQueue:
		if qtype == FilterAll || qtype == FilterCoro {
			for _, q := range d.coopQueues {
				out.Coro = append(out.Coro, q.Stats())
			}
		}
		if qtype == FilterAll || qtype == FilterIO {
			for _, q := range d.ioAffine {
				out.Io = append(out.Io, ioStatsFromAffine(q))
			}
			for _, q := range d.ioShared {
				out.Io = append(out.Io, ioStatsFromShared(q))
			}
		}
		return out, nil
	case AnyQueue:
		if qtype != FilterIO {
			return out, newErr(KindInvalidArgument, "Any query scope is only meaningful for Io")
		}
		for _, q := range d.ioShared {
			out.Io = append(out.Io, ioStatsFromShared(q))
		}
		return out, nil
	default:
		if qtype == FilterAll {
			return out, newErr(KindInvalidArgument, "All type is invalid with a real queue id")
		}
		if qtype == FilterCoro {
			if queueID < 0 || queueID >= len(d.coopQueues) {
				return out, newErrf(KindInvalidQueueID, "coro queue id %d out of range", queueID)
			}
			out.Coro = append(out.Coro, d.coopQueues[queueID].Stats())
			return out, nil
		}
		if queueID < 0 || queueID >= len(d.ioAffine) {
			return out, newErrf(KindInvalidQueueID, "io queue id %d out of range", queueID)
		}
		out.Io = append(out.Io, ioStatsFromAffine(d.ioAffine[queueID]))
		return out, nil
	}
}

// ResetStats zeroes the running counters of every queue in scope,
// following Size/Stats's scoping rules. I/O queues carry no running
// counters today, so this only has an observable effect on Coro-scoped
// calls; it is still valid (and a no-op) for Io-scoped ones.
func (d *Dispatcher) ResetStats(qtype QueueTypeFilter, queueID int) error {
	switch queueID {
	case AllQueue:
		if qtype == FilterAll || qtype == FilterCoro {
			for _, q := range d.coopQueues {
				q.ResetStats()
			}
		}
		return nil
	case AnyQueue:
		if qtype != FilterIO {
			return newErr(KindInvalidArgument, "Any query scope is only meaningful for Io")
		}
		return nil
	default:
		if qtype == FilterAll {
			return newErr(KindInvalidArgument, "All type is invalid with a real queue id")
		}
		if qtype == FilterCoro {
			if queueID < 0 || queueID >= len(d.coopQueues) {
				return newErrf(KindInvalidQueueID, "coro queue id %d out of range", queueID)
			}
			d.coopQueues[queueID].ResetStats()
			return nil
		}
		if queueID < 0 || queueID >= len(d.ioAffine) {
			return newErrf(KindInvalidQueueID, "io queue id %d out of range", queueID)
		}
		return nil
	}
}

func ioStatsFromAffine(q *AffineIOQueue) QueueStats {
	return QueueStats{Size: q.Size(), Terminated: q.Terminated()}
}

func ioStatsFromShared(q *SharedIOQueue) QueueStats {
	return QueueStats{Size: q.Size(), Terminated: q.Terminated()}
}
