// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package gojahost integrates the reactor bridge with a goja JavaScript
// runtime. The goja_nodejs event loop plays the part of the host's native
// message pump: all script execution and all completion callbacks run on
// the loop goroutine, so worker results only ever re-enter JavaScript
// between jobs, when the loop is idle.
package gojahost

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"

	reactorbridge "github.com/buke/reactor-bridge"
)

// Host owns a goja runtime serialized by an event loop and pumps bridge
// completions into it.
type Host struct {
	bridge *reactorbridge.Bridge
	loop   *eventloop.EventLoop
	vm     *goja.Runtime

	logger    *slog.Logger
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	targets []reactorbridge.Target
}

// New wires a started bridge to a fresh goja runtime and begins pumping.
// The caller keeps ownership of the bridge; Close stops the pump and the
// event loop but not the bridge.
func New(bridge *reactorbridge.Bridge, opts ...Option) (*Host, error) {
	loop := eventloop.NewEventLoop()
	h := &Host{
		bridge: bridge,
		loop:   loop,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}

	loop.Start()

	// Capture the loop's runtime; it is only ever touched on the loop.
	ready := make(chan struct{})
	loop.RunOnLoop(func(vm *goja.Runtime) {
		vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
		h.vm = vm
		close(ready)
	})
	<-ready

	for _, opt := range opts {
		if err := opt(h); err != nil {
			loop.Stop()
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	go h.pumpLoop()

	return h, nil
}

// pumpLoop forwards bridge wake signals onto the event loop. The pump
// itself always runs as a loop job, never on this goroutine.
func (h *Host) pumpLoop() {
	for {
		select {
		case <-h.done:
			return
		case <-h.bridge.Wake():
			h.loop.RunOnLoop(func(vm *goja.Runtime) {
				h.bridge.Pump()
			})
		}
	}
}

// RunScript executes a script on the event loop and waits for the result.
func (h *Host) RunScript(name, src string) (goja.Value, error) {
	type scriptResult struct {
		value goja.Value
		err   error
	}
	resultCh := make(chan scriptResult, 1)
	h.loop.RunOnLoop(func(vm *goja.Runtime) {
		v, err := vm.RunScript(name, src)
		resultCh <- scriptResult{value: v, err: err}
	})
	rv := <-resultCh
	if rv.err != nil {
		return nil, fmt.Errorf("failed to run script %s: %w", name, rv.err)
	}
	return rv.value, nil
}

// RunOnLoop schedules fn on the event loop goroutine.
func (h *Host) RunOnLoop(fn func(vm *goja.Runtime)) {
	h.loop.RunOnLoop(fn)
}

// Bind exposes a JS function as a bridge callback target. The function is
// invoked node-style, (err, value), on the event loop. A JS exception from
// the callback is logged; it never disturbs the pump.
func (h *Host) Bind(fn goja.Callable) reactorbridge.Target {
	target := h.bridge.Bind(func(r reactorbridge.Result) {
		errVal := goja.Value(goja.Null())
		if r.Err != nil {
			errVal = h.vm.ToValue(r.Err.Error())
		}
		if _, err := fn(goja.Undefined(), errVal, h.vm.ToValue(r.Value)); err != nil {
			if h.logger != nil {
				h.logger.Error("Host callback threw",
					"taskId", r.TaskID,
					"error", err)
			}
		}
	})
	h.mu.Lock()
	h.targets = append(h.targets, target)
	h.mu.Unlock()
	return target
}

// BindGlobal binds a global JS function by name.
func (h *Host) BindGlobal(name string) (reactorbridge.Target, error) {
	var fn goja.Callable
	found := make(chan bool, 1)
	h.loop.RunOnLoop(func(vm *goja.Runtime) {
		f, ok := goja.AssertFunction(vm.Get(name))
		fn = f
		found <- ok
	})
	if !<-found {
		return 0, fmt.Errorf("global %q is not a function", name)
	}
	return h.Bind(fn), nil
}

// Release is the destruction hook for a target previously bound through
// this host. Pending deliveries are purged before the JS function can be
// collected.
func (h *Host) Release(target reactorbridge.Target) {
	h.mu.Lock()
	for i, t := range h.targets {
		if t == target {
			h.targets = append(h.targets[:i], h.targets[i+1:]...)
			break
		}
	}
	h.mu.Unlock()
	h.bridge.Release(target)
}

// ReleaseAll releases every target still bound through this host.
func (h *Host) ReleaseAll() {
	h.mu.Lock()
	targets := h.targets
	h.targets = nil
	h.mu.Unlock()
	for _, t := range targets {
		h.bridge.Release(t)
	}
}

// Close releases all bound targets and stops the pump and the event loop.
// Queued loop jobs run to completion first. Idempotent.
func (h *Host) Close() error {
	h.closeOnce.Do(func() {
		h.ReleaseAll()
		close(h.done)
		h.loop.Stop()
	})
	return nil
}
