// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package reactorbridge

import (
	"context"
	"sync"
	"sync/atomic"
)

// pool is the executor: a fixed set of worker goroutines pulling tasks
// from one bounded queue. It is the only place asynchronous work actually
// runs. Task state is owned here from submission until the outcome is
// handed to the completion router.
type pool struct {
	bridge *Bridge // Parent bridge, for options, logger and metrics

	queue chan *task
	tasks sync.Map // TaskID -> *task, for best-effort cancellation

	idCounter atomic.Uint64

	// closeMu serializes enqueues against shutdown: submit holds the read
	// side across the closed check and the queue send, so once shutdown
	// sets closed under the write side no further task can slip into the
	// queue behind the workers' drain.
	closeMu sync.RWMutex
	closed  atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	// baseCtx is handed to ops; cancelled at shutdown so running tasks can
	// stop cooperatively.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

func newPool(b *Bridge) *pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &pool{
		bridge:     b,
		queue:      make(chan *task, b.options.queueSize),
		done:       make(chan struct{}),
		baseCtx:    ctx,
		cancelBase: cancel,
	}
}

// start launches the worker goroutines.
func (p *pool) start() {
	for i := uint32(0); i < p.bridge.options.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	if p.bridge.logger != nil {
		p.bridge.logger.Debug("Executor pool started",
			"workers", p.bridge.options.workers,
			"queueSize", p.bridge.options.queueSize)
	}
}

// submit enqueues a task without ever blocking the caller. A full queue is
// an immediate ErrCapacityExceeded; blocking here would freeze the host's
// UI thread.
func (p *pool) submit(t *task) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed.Load() {
		return ErrShutdown
	}
	p.tasks.Store(t.id, t)
	select {
	case p.queue <- t:
		p.bridge.metrics.tasksSubmitted.Inc()
		p.bridge.metrics.queueDepth.Set(float64(len(p.queue)))
		return nil
	default:
		p.tasks.Delete(t.id)
		p.bridge.metrics.tasksRejected.Inc()
		return ErrCapacityExceeded
	}
}

// cancel flags a task. Returns true only when the flag was set before the
// task started; a running task is never interrupted.
func (p *pool) cancel(id TaskID) bool {
	v, ok := p.tasks.Load(id)
	if !ok {
		return false
	}
	t := v.(*task)
	if t.cancel() {
		p.bridge.metrics.tasksCancelled.Inc()
		return true
	}
	return false
}

// nextID allocates a monotonically increasing task id.
func (p *pool) nextID() TaskID {
	return TaskID(p.idCounter.Add(1))
}

// worker pulls tasks until shutdown, then drains the queue so every
// accepted task still resolves.
func (p *pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case t := <-p.queue:
			p.runTask(t)
		case <-p.done:
			for {
				select {
				case t := <-p.queue:
					p.abortTask(t)
				default:
					return
				}
			}
		}
	}
}

// runTask produces exactly one outcome for t and hands it to the router.
// A panic inside the op is captured as a NativeFault outcome for this one
// task; the worker keeps serving subsequent tasks.
func (p *pool) runTask(t *task) {
	p.bridge.metrics.queueDepth.Set(float64(len(p.queue)))
	defer p.tasks.Delete(t.id)

	if p.closed.Load() {
		// Shutdown began before this task started; resolve it instead of
		// running it so the quiesce wait stays bounded.
		p.bridge.router.complete(t.id, nil, ErrShutdown)
		return
	}
	if !t.start() {
		// Cancelled before it started; delivered like any other outcome.
		p.bridge.router.complete(t.id, nil, ErrCancelled)
		return
	}

	value, err := guardValue(p.bridge.logger, "task op", func() (any, error) {
		return t.op(p.baseCtx)
	})
	if _, faulted := AsNativeFault(err); faulted {
		p.bridge.metrics.faultsRecovered.Inc()
	}
	t.finish()
	p.bridge.metrics.tasksCompleted.Inc()
	p.bridge.router.complete(t.id, value, err)
}

// abortTask resolves a queued-but-never-run task during shutdown.
func (p *pool) abortTask(t *task) {
	p.tasks.Delete(t.id)
	p.bridge.router.complete(t.id, nil, ErrShutdown)
}

// shutdown stops the workers and blocks until they quiesce. Idempotent.
func (p *pool) shutdown() {
	p.closeMu.Lock()
	swapped := p.closed.CompareAndSwap(false, true)
	p.closeMu.Unlock()
	if !swapped {
		return
	}
	p.cancelBase()
	close(p.done)
	p.wg.Wait()
	if p.bridge.logger != nil {
		p.bridge.logger.Debug("Executor pool stopped")
	}
}
