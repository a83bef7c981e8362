// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package reactorbridge

import (
	"errors"
	"strings"
	"testing"
)

func TestGuard_PassesThroughResult(t *testing.T) {
	sentinel := errors.New("plain error")
	if err := guard(nil, "test", func() error { return nil }); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := guard(nil, "test", func() error { return sentinel }); !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
}

func TestGuard_ConvertsPanicToFault(t *testing.T) {
	err := guard(nil, "boundary", func() error { panic("boom") })
	fault, ok := AsNativeFault(err)
	if !ok {
		t.Fatalf("expected NativeFault, got %v", err)
	}
	if fault.Scope != "boundary" {
		t.Fatalf("unexpected scope: %q", fault.Scope)
	}
	if fault.Value != "boom" {
		t.Fatalf("unexpected fault value: %v", fault.Value)
	}
	if len(fault.Stack) == 0 || !strings.Contains(string(fault.Stack), "guard_test") {
		t.Fatal("fault should capture the stack at the recovery site")
	}
}

func TestGuardValue_ZeroesValueOnFault(t *testing.T) {
	v, err := guardValue(nil, "test", func() (int, error) {
		panic(errors.New("wrapped panic"))
	})
	if v != 0 {
		t.Fatalf("expected zero value on fault, got %d", v)
	}
	if _, ok := AsNativeFault(err); !ok {
		t.Fatalf("expected NativeFault, got %v", err)
	}
}

func TestGuardValue_PassesThroughValue(t *testing.T) {
	v, err := guardValue(nil, "test", func() (string, error) { return "ok", nil })
	if err != nil || v != "ok" {
		t.Fatalf("unexpected result: %q, %v", v, err)
	}
}
