// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package reactorbridge lets a single-threaded, garbage-collected script
// host perform non-blocking asynchronous I/O. Host calls enqueue work on a
// background worker pool; completions travel back over a bounded dispatch
// channel that the host's event pump drains between script statements, and
// every boundary crossing is guarded so a fault on a worker can never crash
// the host process.
package reactorbridge

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

// BridgeOption contains configuration options for the bridge.
type BridgeOption struct {
	workers          uint32 // Number of worker goroutines
	queueSize        uint32 // Capacity of the work queue
	dispatchCapacity uint32 // Capacity of the dispatch channel
}

// Bridge owns the executor pool, the dispatch channel and the completion
// router, and exposes the boundary the host integrates against.
//
// Submit, Cancel, Bind and Release are host-thread entry points. Pump must
// only be called from the host's own event loop. Shutdown may block.
type Bridge struct {
	options *BridgeOption

	pool     *pool
	dispatch *dispatchChannel
	router   *completionRouter
	registry *targetRegistry
	metrics  *metrics

	wakeFn     func()
	metricsReg prometheus.Registerer
	logger     *slog.Logger
}

// New creates a bridge with the given options.
func New(opts ...func(*Bridge)) (*Bridge, error) {
	cpuCount := runtime.GOMAXPROCS(0)

	b := &Bridge{
		logger: slog.Default(),
		options: &BridgeOption{
			workers:          uint32(cpuCount),
			queueSize:        256,
			dispatchCapacity: 1024,
		},
	}

	for _, opt := range opts {
		opt(b)
	}

	b.metrics = newMetrics()
	if b.metricsReg != nil {
		if err := b.metrics.register(b.metricsReg); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	b.registry = newTargetRegistry()
	b.dispatch = newDispatchChannel(int(b.options.dispatchCapacity), b.wakeFn, b.logger, b.metrics)
	b.router = newCompletionRouter(b.dispatch, b.registry, b.logger, b.metrics)
	b.pool = newPool(b)

	return b, nil
}

// Start launches the worker pool.
func (b *Bridge) Start() error {
	if b.pool == nil {
		return fmt.Errorf("worker pool is not initialized")
	}
	b.pool.start()
	return nil
}

// Submit enqueues op and routes its eventual outcome to target. It never
// blocks: a full queue yields ErrCapacityExceeded immediately. On success
// the target's callback is invoked exactly once, during a later Pump,
// unless the target is released first.
func (b *Bridge) Submit(op Op, target Target) (TaskID, error) {
	return guardValue(b.logger, "submit", func() (TaskID, error) {
		if op == nil {
			return 0, fmt.Errorf("op must not be nil")
		}
		id := b.pool.nextID()
		// Registration happens-before the task can possibly complete.
		b.router.register(id, target)
		t := newTask(id, op)
		if err := b.pool.submit(t); err != nil {
			b.router.unregister(id)
			return 0, err
		}
		return id, nil
	})
}

// Cancel flags a task, best-effort. It returns true only if the flag was
// set before the task started running; cancellation is cooperative and a
// running task is never interrupted. A cancelled task still resolves, with
// ErrCancelled.
func (b *Bridge) Cancel(id TaskID) bool {
	cancelled, _ := guardValue(b.logger, "cancel", func() (bool, error) {
		return b.pool.cancel(id), nil
	})
	return cancelled
}

// Bind registers a host callback and returns its opaque handle. Host
// thread only.
func (b *Bridge) Bind(cb Callback) Target {
	t, _ := guardValue(b.logger, "bind", func() (Target, error) {
		return b.registry.bind(cb), nil
	})
	return t
}

// Release is the host-object-destruction hook. The host must call it, on
// the host thread, before releasing the object behind target: it purges
// every pending delivery for the handle and revokes it, so no callback can
// fire into reclaimed host state. Synchronous; when it returns the handle
// is dead.
func (b *Bridge) Release(target Target) {
	_ = guard(b.logger, "release", func() error {
		b.router.purge(target)
		b.registry.revoke(target)
		return nil
	})
}

// Pump is the pump-integration hook: the host's event loop calls it when
// idle. It drains the dispatch channel and delivers each message to its
// resolved target, in FIFO arrival order. Returns the number of messages
// processed. Host thread only.
func (b *Bridge) Pump() int {
	n, _ := guardValue(b.logger, "pump", func() (int, error) {
		msgs := b.dispatch.drain()
		for _, msg := range msgs {
			b.router.resolveAndDeliver(msg)
		}
		return len(msgs), nil
	})
	return n
}

// Wake returns a channel that receives a (coalesced) signal whenever the
// dispatch channel transitions from empty to non-empty. Host loops that
// block while idle can select on it and call Pump when it fires.
func (b *Bridge) Wake() <-chan struct{} {
	return b.dispatch.wakeCh
}

// Pending reports the number of in-flight tasks still awaiting delivery.
func (b *Bridge) Pending() int {
	return b.router.pendingCount()
}

// Shutdown stops the worker pool and blocks until all workers quiesce.
// Queued tasks that never ran resolve with ErrShutdown. Call once at
// unload; idempotent.
func (b *Bridge) Shutdown() error {
	return guard(b.logger, "shutdown", func() error {
		b.pool.shutdown()
		return nil
	})
}

// WithLogger configures the logger for the bridge.
func WithLogger(logger *slog.Logger) func(*Bridge) {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithWorkers configures the number of worker goroutines.
func WithWorkers(n uint32) func(*Bridge) {
	return func(b *Bridge) {
		if n > 0 {
			b.options.workers = n
		}
	}
}

// WithQueueSize configures the capacity of the work queue.
func WithQueueSize(size uint32) func(*Bridge) {
	return func(b *Bridge) {
		if size > 0 {
			b.options.queueSize = size
		}
	}
}

// WithDispatchCapacity configures the capacity of the dispatch channel.
func WithDispatchCapacity(size uint32) func(*Bridge) {
	return func(b *Bridge) {
		if size > 0 {
			b.options.dispatchCapacity = size
		}
	}
}

// WithWakeFunc configures an optional host wake signal, called from worker
// goroutines whenever the dispatch channel becomes non-empty. It must be
// non-blocking and safe for concurrent use, e.g. signaling a native event
// object the host pump already watches.
func WithWakeFunc(fn func()) func(*Bridge) {
	return func(b *Bridge) {
		b.wakeFn = fn
	}
}

// WithMetricsRegistry attaches the bridge's prometheus collectors to reg.
func WithMetricsRegistry(reg prometheus.Registerer) func(*Bridge) {
	return func(b *Bridge) {
		b.metricsReg = reg
	}
}
