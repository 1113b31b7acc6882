package core

// Snapshot is a point-in-time observability view combining queue depths
// with recent execution history: the shape a CLI `stats` subcommand or a
// periodic log line reads from (§6).
type Snapshot struct {
	Queues  DispatcherStats
	History []TaskExecutionRecord
}

// Snapshot captures the dispatcher's current queue depths plus up to
// historyLimit of its most recent task executions (newest first).
// historyLimit<=0 returns everything still retained.
func (d *Dispatcher) Snapshot(historyLimit int) (Snapshot, error) {
	stats, err := d.Stats(FilterAll, AllQueue)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Queues:  stats,
		History: d.history.Recent(historyLimit),
	}, nil
}
