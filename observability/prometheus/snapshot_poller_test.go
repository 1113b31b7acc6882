package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/demin80/fiberdispatch/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type dispatcherStub struct {
	stats core.DispatcherStats
}

func (s dispatcherStub) Stats(qtype core.QueueTypeFilter, queueID int) (core.DispatcherStats, error) {
	return s.stats, nil
}

func TestSnapshotPoller_CollectsDispatcherStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddDispatcher("d-a", dispatcherStub{stats: core.DispatcherStats{
		Coro: []core.QueueStats{{ID: 0, Size: 3, HighSize: 1, NormalSize: 2}},
		Io:   []core.QueueStats{{Size: 4}},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		size := testutil.ToFloat64(poller.coroSize.WithLabelValues("d-a", "0"))
		io := testutil.ToFloat64(poller.ioSize.WithLabelValues("d-a", "0"))
		return size == 3 && io == 4
	})

	if got := testutil.ToFloat64(poller.coroHighSize.WithLabelValues("d-a", "0")); got != 1 {
		t.Fatalf("coro high size gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.coroNormalSize.WithLabelValues("d-a", "0")); got != 2 {
		t.Fatalf("coro normal size gauge = %v, want 2", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
