// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package reactorbridge

import (
	"log/slog"
	"runtime/debug"
)

// guard runs fn and converts a panic into a *NativeFault instead of letting
// it unwind into the caller. Every crossing between host code and the
// bridge, in both directions, goes through here: public entry points, task
// execution on worker goroutines, and host callback invocations during
// delivery.
func guard(logger *slog.Logger, scope string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			fault := &NativeFault{
				Scope: scope,
				Value: r,
				Stack: debug.Stack(),
			}
			if logger != nil {
				logger.Error("Recovered native fault",
					"scope", scope,
					"error", r,
					"stack", string(fault.Stack))
			}
			err = fault
		}
	}()
	return fn()
}

// guardValue is the value-returning form of guard. A fault discards any
// partial value and yields the *NativeFault as the error.
func guardValue[T any](logger *slog.Logger, scope string, fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			fault := &NativeFault{
				Scope: scope,
				Value: r,
				Stack: debug.Stack(),
			}
			if logger != nil {
				logger.Error("Recovered native fault",
					"scope", scope,
					"error", r,
					"stack", string(fault.Stack))
			}
			var zero T
			v = zero
			err = fault
		}
	}()
	return fn()
}
