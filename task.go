// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package reactorbridge

import (
	"context"
	"sync/atomic"
)

// TaskID identifies one unit of asynchronous work. IDs are unique and
// monotonically increasing within a Bridge.
type TaskID uint64

// Op is the operation a task performs on a worker goroutine. The context is
// cancelled when the bridge shuts down; long-running operations should
// observe it. The returned value and error form the task's outcome.
type Op func(ctx context.Context) (any, error)

// taskState tracks the lifecycle of a task inside the pool.
type taskState int32

const (
	taskStatePending   taskState = iota // Waiting in the work queue
	taskStateRunning                    // Picked up by a worker
	taskStateCancelled                  // Cancelled before it started
	taskStateDone                       // Outcome produced
)

// task is a unit of asynchronous work. Owned by the pool from submission
// until its outcome is handed to the completion router.
type task struct {
	id    TaskID
	op    Op
	state atomic.Int32
}

func newTask(id TaskID, op Op) *task {
	return &task{id: id, op: op}
}

// start transitions pending->running. It fails if the task was cancelled
// first, in which case the worker skips execution.
func (t *task) start() bool {
	return t.state.CompareAndSwap(int32(taskStatePending), int32(taskStateRunning))
}

// cancel transitions pending->cancelled. Cancellation is cooperative: a
// task that already started keeps running and its outcome is still
// delivered unless the pending entry was purged.
func (t *task) cancel() bool {
	return t.state.CompareAndSwap(int32(taskStatePending), int32(taskStateCancelled))
}

func (t *task) finish() {
	t.state.Store(int32(taskStateDone))
}
