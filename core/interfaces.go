package core

import (
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task body panics
// =============================================================================

// PanicHandler is called when a task body panics during Task.Run. This
// allows custom panic handling, logging, and recovery strategies.
//
// Implementations should be thread-safe as they may be called concurrently
// from any cooperative or I/O worker.
type PanicHandler interface {
	// HandlePanic is called when a task body panics.
	//
	// workerID is the cooperative queue id of the worker that was running
	// the task, or -1 for a task run on an I/O worker.
	HandlePanic(taskID TaskID, typ TaskType, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panics to stdout.
type DefaultPanicHandler struct{}

func (h *DefaultPanicHandler) HandlePanic(taskID TaskID, typ TaskType, workerID int, panicInfo any, stackTrace []byte) {
	fmt.Printf("[worker %d] task %s (%s) panicked: %v\n%s", workerID, taskID, typ, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics collects task execution and queue metrics. Implementations can
// send them to a monitoring system (Prometheus, StatsD, ...). All methods
// must be non-blocking and safe to call from any worker goroutine.
type Metrics interface {
	// RecordTaskDuration records how long a task body ran for.
	RecordTaskDuration(typ TaskType, priority bool, duration time.Duration)

	// RecordTaskPanic records that a task body panicked.
	RecordTaskPanic(typ TaskType, panicInfo any)

	// RecordQueueDepth records a queue's current depth, identified by a
	// human-readable label (e.g. "coro:0", "io:affine:1", "io:shared").
	RecordQueueDepth(queueLabel string, depth int)

	// RecordTaskRejected records that a task could not be enqueued
	// (dispatcher terminated, shared I/O queue overflow, ...).
	RecordTaskRejected(reason string)
}

// NilMetrics discards everything. Default when no Metrics is configured.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(typ TaskType, priority bool, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(typ TaskType, panicInfo any)                             {}
func (m *NilMetrics) RecordQueueDepth(queueLabel string, depth int)                           {}
func (m *NilMetrics) RecordTaskRejected(reason string)                                        {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when a task cannot be admitted: the
// dispatcher is terminated, or a bounded shared I/O queue overflowed.
type RejectedTaskHandler interface {
	HandleRejectedTask(reason string)
}

// DefaultRejectedTaskHandler logs rejections to stdout.
type DefaultRejectedTaskHandler struct{}

func (h *DefaultRejectedTaskHandler) HandleRejectedTask(reason string) {
	fmt.Printf("task rejected: %s\n", reason)
}
