// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package reactorbridge

import (
	"log/slog"
	"sync"
)

// DeliveryMessage is the envelope carrying a task outcome from a worker
// goroutine to the host thread. Messages already queued when drain runs are
// returned in FIFO arrival order; no ordering is implied across tasks
// completing on different workers.
type DeliveryMessage struct {
	TaskID TaskID
	Value  any
	Err    error
}

// dispatchChannel is the bounded cross-thread delivery queue between the
// worker goroutines and the host's event pump. post never blocks: when the
// queue is saturated the payload is dropped and only the task id is kept,
// so drain can still synthesize a terminal ErrChannelOverflow outcome for
// the task instead of losing the completion silently.
type dispatchChannel struct {
	mu       sync.Mutex
	queue    []DeliveryMessage
	overflow []TaskID
	capacity int

	// wakeFn is an optional host-supplied signal (e.g. setting a native
	// event object the host pump already watches). Called from worker
	// goroutines; must be non-blocking and safe for concurrent use.
	wakeFn func()
	wakeCh chan struct{}

	logger  *slog.Logger
	metrics *metrics
}

func newDispatchChannel(capacity int, wakeFn func(), logger *slog.Logger, m *metrics) *dispatchChannel {
	return &dispatchChannel{
		queue:    make([]DeliveryMessage, 0, capacity),
		capacity: capacity,
		wakeFn:   wakeFn,
		wakeCh:   make(chan struct{}, 1),
		logger:   logger,
		metrics:  m,
	}
}

// post enqueues a delivery from any worker goroutine. It never blocks.
func (d *dispatchChannel) post(msg DeliveryMessage) {
	d.mu.Lock()
	wasIdle := len(d.queue) == 0 && len(d.overflow) == 0
	if len(d.queue) < d.capacity {
		d.queue = append(d.queue, msg)
		d.metrics.pendingDeliveries.Inc()
	} else {
		// Saturated: keep only the id so the task still resolves, as a
		// terminal overflow error.
		d.overflow = append(d.overflow, msg.TaskID)
		d.metrics.dispatchOverflows.Inc()
		if d.logger != nil {
			d.logger.Warn("Dispatch channel overflow, payload dropped",
				"taskId", msg.TaskID,
				"capacity", d.capacity)
		}
	}
	d.mu.Unlock()

	if wasIdle {
		d.wake()
	}
}

// drain removes and returns all queued messages, in FIFO arrival order.
// Synthesized overflow outcomes follow the intact messages. Host thread
// only; non-blocking.
func (d *dispatchChannel) drain() []DeliveryMessage {
	d.mu.Lock()
	msgs := d.queue
	overflowed := d.overflow
	d.queue = make([]DeliveryMessage, 0, d.capacity)
	d.overflow = nil
	d.mu.Unlock()

	d.metrics.pendingDeliveries.Sub(float64(len(msgs)))
	for _, id := range overflowed {
		msgs = append(msgs, DeliveryMessage{TaskID: id, Err: ErrChannelOverflow})
	}
	return msgs
}

// wake signals the host pump, coalescing repeated signals into one.
func (d *dispatchChannel) wake() {
	select {
	case d.wakeCh <- struct{}{}:
	default:
	}
	if d.wakeFn != nil {
		d.wakeFn()
	}
}
