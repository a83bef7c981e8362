// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package gojahost

import (
	"log/slog"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
)

// Option configures a Host during New.
type Option func(*Host) error

// WithLogger configures the logger for the host.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) error {
		h.logger = logger
		return nil
	}
}

// WithConsole enables the console object (console.log, etc.) in the JS
// runtime.
func WithConsole() Option {
	return func(h *Host) error {
		done := make(chan struct{})
		h.loop.RunOnLoop(func(vm *goja.Runtime) {
			new(require.Registry).Enable(vm)
			console.Enable(vm)
			close(done)
		})
		<-done
		return nil
	}
}

// WithFieldNameMapper sets the field name mapper for Go-to-JS struct
// conversions, overriding the json-tag default.
func WithFieldNameMapper(mapper goja.FieldNameMapper) Option {
	return func(h *Host) error {
		if mapper == nil {
			return nil
		}
		done := make(chan struct{})
		h.loop.RunOnLoop(func(vm *goja.Runtime) {
			vm.SetFieldNameMapper(mapper)
			close(done)
		})
		<-done
		return nil
	}
}

// WithMaxCallStackSize sets the maximum call stack size for the runtime.
// A value of 0 or less means no limit.
func WithMaxCallStackSize(size int) Option {
	return func(h *Host) error {
		done := make(chan struct{})
		h.loop.RunOnLoop(func(vm *goja.Runtime) {
			vm.SetMaxCallStackSize(size)
			close(done)
		})
		<-done
		return nil
	}
}
