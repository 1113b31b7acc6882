package prometheus

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/demin80/fiberdispatch/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// DispatcherSnapshotProvider provides current dispatcher stats snapshots,
// implemented by *core.Dispatcher.
type DispatcherSnapshotProvider interface {
	Stats(qtype core.QueueTypeFilter, queueID int) (core.DispatcherStats, error)
}

// SnapshotPoller periodically exports Dispatcher.Stats() snapshots into
// Prometheus gauges: a poll-and-set loop over cooperative and I/O queue
// depths.
type SnapshotPoller struct {
	interval time.Duration

	mu          sync.RWMutex
	dispatchers map[string]DispatcherSnapshotProvider

	coroSize       *prom.GaugeVec
	coroHighSize   *prom.GaugeVec
	coroNormalSize *prom.GaugeVec
	ioSize         *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	coroSize := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fiberdispatch",
		Name:      "coro_queue_size",
		Help:      "Cooperative queue size.",
	}, []string{"dispatcher", "queue_id"})
	coroHighSize := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fiberdispatch",
		Name:      "coro_queue_high_size",
		Help:      "Cooperative queue high-priority sub-queue size.",
	}, []string{"dispatcher", "queue_id"})
	coroNormalSize := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fiberdispatch",
		Name:      "coro_queue_normal_size",
		Help:      "Cooperative queue normal sub-queue size.",
	}, []string{"dispatcher", "queue_id"})
	ioSize := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fiberdispatch",
		Name:      "io_queue_size",
		Help:      "I/O queue size.",
	}, []string{"dispatcher", "queue_id"})

	var err error
	if coroSize, err = registerCollector(reg, coroSize); err != nil {
		return nil, err
	}
	if coroHighSize, err = registerCollector(reg, coroHighSize); err != nil {
		return nil, err
	}
	if coroNormalSize, err = registerCollector(reg, coroNormalSize); err != nil {
		return nil, err
	}
	if ioSize, err = registerCollector(reg, ioSize); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:       interval,
		dispatchers:    make(map[string]DispatcherSnapshotProvider),
		coroSize:       coroSize,
		coroHighSize:   coroHighSize,
		coroNormalSize: coroNormalSize,
		ioSize:         ioSize,
	}, nil
}

// AddDispatcher adds or replaces a dispatcher snapshot provider by name.
func (p *SnapshotPoller) AddDispatcher(name string, provider DispatcherSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "dispatcher")
	p.mu.Lock()
	p.dispatchers[name] = provider
	p.mu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for name, provider := range p.dispatchers {
		snap, err := provider.Stats(core.FilterAll, core.AllQueue)
		if err != nil {
			continue
		}
		for _, qs := range snap.Coro {
			id := strconv.Itoa(qs.ID)
			p.coroSize.WithLabelValues(name, id).Set(float64(qs.Size))
			p.coroHighSize.WithLabelValues(name, id).Set(float64(qs.HighSize))
			p.coroNormalSize.WithLabelValues(name, id).Set(float64(qs.NormalSize))
		}
		for i, qs := range snap.Io {
			p.ioSize.WithLabelValues(name, strconv.Itoa(i)).Set(float64(qs.Size))
		}
	}
}
