// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package reactorbridge

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityExceeded is returned by Submit when the work queue is full.
	// The submission was rejected; the caller may retry or surface the error
	// to the script.
	ErrCapacityExceeded = errors.New("work queue capacity exceeded")

	// ErrCancelled is the terminal outcome of a task that was cancelled
	// before it started running.
	ErrCancelled = errors.New("task cancelled")

	// ErrShutdown is returned by Submit after Shutdown, and is the terminal
	// outcome of accepted tasks that were still queued when the pool shut
	// down.
	ErrShutdown = errors.New("bridge is shut down")

	// ErrChannelOverflow is the terminal outcome of a task whose completion
	// payload was dropped because the dispatch channel was saturated.
	ErrChannelOverflow = errors.New("dispatch channel overflow")
)

// NativeFault is a panic that was caught at a boundary crossing and
// converted into an error value. It carries the panic value and the stack
// captured at the recovery site.
type NativeFault struct {
	Scope string // Which boundary crossing faulted
	Value any    // The recovered panic value
	Stack []byte // Stack trace captured at recovery
}

// Error implements the error interface.
func (f *NativeFault) Error() string {
	return fmt.Sprintf("native fault in %s: %v", f.Scope, f.Value)
}

// AsNativeFault returns the *NativeFault wrapped in err, if any.
func AsNativeFault(err error) (*NativeFault, bool) {
	var f *NativeFault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
