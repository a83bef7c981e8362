// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package reactorbridge_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	reactorbridge "github.com/buke/reactor-bridge"
)

// BenchmarkSubmitAndPump measures the full round trip: submit on the host
// side, execute on a worker, pump the completion back.
func BenchmarkSubmitAndPump(b *testing.B) {
	bridge, err := reactorbridge.New(
		reactorbridge.WithWorkers(4),
		reactorbridge.WithQueueSize(4096),
		reactorbridge.WithDispatchCapacity(8192),
	)
	if err != nil {
		b.Fatalf("Failed to create bridge: %v", err)
	}
	if err := bridge.Start(); err != nil {
		b.Fatalf("Failed to start bridge: %v", err)
	}
	defer bridge.Shutdown()

	var delivered atomic.Int64
	target := bridge.Bind(func(reactorbridge.Result) {
		delivered.Add(1)
	})

	op := func(ctx context.Context) (any, error) { return nil, nil }

	b.ResetTimer()
	submitted := int64(0)
	for i := 0; i < b.N; i++ {
		if _, err := bridge.Submit(op, target); err != nil {
			// Queue full: drain completions and retry.
			bridge.Pump()
			i--
			continue
		}
		submitted++
		if submitted%1024 == 0 {
			bridge.Pump()
		}
	}
	for delivered.Load() < submitted {
		if bridge.Pump() == 0 {
			select {
			case <-bridge.Wake():
			case <-time.After(time.Millisecond):
			}
		}
	}
}
