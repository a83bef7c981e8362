// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package reactorbridge

import (
	"log/slog"
	"sync"
)

// pendingEntry is one row of the completion router's bookkeeping table,
// linking an in-flight task to its callback target. At most one entry
// exists per task id, and at most one delivery happens per entry.
type pendingEntry struct {
	id        TaskID
	target    Target
	delivered bool
}

// completionRouter owns the pending-entry table. The table is the only
// state touched by both host-thread calls (register, resolveAndDeliver,
// purge) and worker-thread calls (complete); one short-held mutex guards
// it, and the lock is never held across a host callback invocation.
//
// purge and resolveAndDeliver both run exclusively on the host thread, so
// they are inherently serialized against each other; the mutex exists for
// the worker-side producers.
type completionRouter struct {
	mu      sync.Mutex
	entries map[TaskID]*pendingEntry

	dispatch *dispatchChannel
	registry *targetRegistry
	logger   *slog.Logger
	metrics  *metrics
}

func newCompletionRouter(dispatch *dispatchChannel, registry *targetRegistry, logger *slog.Logger, m *metrics) *completionRouter {
	return &completionRouter{
		entries:  make(map[TaskID]*pendingEntry),
		dispatch: dispatch,
		registry: registry,
		logger:   logger,
		metrics:  m,
	}
}

// register records the entry for a task. It must complete before the task
// is enqueued, so registration happens-before any possible delivery.
func (r *completionRouter) register(id TaskID, target Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &pendingEntry{id: id, target: target}
}

// unregister removes a never-submitted entry (submission failed after
// registration).
func (r *completionRouter) unregister(id TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// complete receives a task outcome from a worker goroutine and posts the
// delivery. Outcomes for purged entries are dropped here so a late worker
// result for a destroyed target is a no-op.
func (r *completionRouter) complete(id TaskID, value any, err error) {
	r.mu.Lock()
	entry, ok := r.entries[id]
	live := ok && !entry.delivered
	r.mu.Unlock()

	if !live {
		if r.logger != nil {
			r.logger.Debug("Dropped outcome for purged task", "taskId", id)
		}
		return
	}
	r.dispatch.post(DeliveryMessage{TaskID: id, Value: value, Err: err})
}

// resolveAndDeliver hands one drained message to its host callback. Host
// thread only. A missing entry means the target was purged after the
// message was posted; the message is discarded silently. A dead target
// likewise ends the delivery without error: there is no recipient left to
// signal.
func (r *completionRouter) resolveAndDeliver(msg DeliveryMessage) {
	r.mu.Lock()
	entry, ok := r.entries[msg.TaskID]
	if !ok || entry.delivered {
		r.mu.Unlock()
		return
	}
	entry.delivered = true
	delete(r.entries, msg.TaskID)
	target := entry.target
	r.mu.Unlock()

	cb, alive := r.registry.resolve(target)
	if !alive {
		r.metrics.deliveriesDropped.Inc()
		if r.logger != nil {
			r.logger.Debug("Dropped delivery, target gone",
				"taskId", msg.TaskID,
				"target", target)
		}
		return
	}

	// The callback runs without any bridge lock held. A fault inside host
	// code is captured here so a broken callback cannot corrupt the drain
	// loop for the messages behind it.
	fault := guard(r.logger, "host callback", func() error {
		cb(Result{TaskID: msg.TaskID, Value: msg.Value, Err: msg.Err})
		return nil
	})
	if fault != nil {
		r.metrics.faultsRecovered.Inc()
	}
}

// purge removes every pending entry bound to target. Called synchronously
// by the host's destruction hook, on the host thread, before the target's
// memory is reclaimed. In-flight outcomes for the purged ids become no-ops
// on arrival.
func (r *completionRouter) purge(target Target) {
	r.mu.Lock()
	purged := 0
	for id, entry := range r.entries {
		if entry.target == target {
			entry.delivered = true
			delete(r.entries, id)
			purged++
		}
	}
	r.mu.Unlock()

	if purged > 0 && r.logger != nil {
		r.logger.Debug("Purged pending entries",
			"target", target,
			"count", purged)
	}
}

// pendingCount reports the number of in-flight entries.
func (r *completionRouter) pendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
