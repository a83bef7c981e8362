// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package reactorbridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// pumpUntil drains the bridge until cond holds or the deadline passes.
func pumpUntil(t *testing.T, b *Bridge, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		b.Pump()
		if cond() {
			return
		}
		select {
		case <-b.Wake():
		case <-time.After(10 * time.Millisecond):
		}
	}
	t.Fatal("condition not reached before deadline")
}

func TestBridge_StartShutdown(t *testing.T) {
	b, err := New()
	if err != nil {
		t.Fatalf("Failed to create bridge: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Failed to start bridge: %v", err)
	}
	if err := b.Shutdown(); err != nil {
		t.Fatalf("Failed to shut down bridge: %v", err)
	}
	// Shutdown is idempotent.
	if err := b.Shutdown(); err != nil {
		t.Fatalf("Second shutdown failed: %v", err)
	}
}

func TestBridge_SubmitDeliversExactlyOnce(t *testing.T) {
	b, err := New(WithWorkers(2))
	if err != nil {
		t.Fatalf("Failed to create bridge: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Failed to start bridge: %v", err)
	}
	defer b.Shutdown()

	const n = 20
	var calls atomic.Int32
	target := b.Bind(func(r Result) {
		if r.Err != nil {
			t.Errorf("unexpected error outcome: %v", r.Err)
		}
		calls.Add(1)
	})

	for i := 0; i < n; i++ {
		if _, err := b.Submit(func(ctx context.Context) (any, error) {
			return "ok", nil
		}, target); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	pumpUntil(t, b, func() bool { return calls.Load() == n })

	// No further deliveries once everything has resolved.
	time.Sleep(20 * time.Millisecond)
	b.Pump()
	if got := calls.Load(); got != n {
		t.Fatalf("expected exactly %d callback invocations, got %d", n, got)
	}
}

func TestBridge_ReleasePurgesPending(t *testing.T) {
	b, err := New(WithWorkers(1))
	if err != nil {
		t.Fatalf("Failed to create bridge: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Failed to start bridge: %v", err)
	}
	defer b.Shutdown()

	var calls atomic.Int32
	target := b.Bind(func(r Result) { calls.Add(1) })

	proceed := make(chan struct{})
	finished := make(chan struct{})
	if _, err := b.Submit(func(ctx context.Context) (any, error) {
		<-proceed
		close(finished)
		return "late", nil
	}, target); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// Destroy the target while the task is still in flight.
	b.Release(target)
	if got := b.Pending(); got != 0 {
		t.Fatalf("expected 0 pending entries after release, got %d", got)
	}

	close(proceed)
	<-finished

	// The worker outcome must be a no-op now.
	time.Sleep(20 * time.Millisecond)
	b.Pump()
	if got := calls.Load(); got != 0 {
		t.Fatalf("expected 0 callback invocations after purge, got %d", got)
	}
}

func TestBridge_SubmitNeverBlocksWhenSaturated(t *testing.T) {
	b, err := New(WithWorkers(1), WithQueueSize(1))
	if err != nil {
		t.Fatalf("Failed to create bridge: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Failed to start bridge: %v", err)
	}
	defer b.Shutdown()

	target := b.Bind(func(Result) {})

	// Jam the single worker, then fill the queue.
	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})
	if _, err := b.Submit(func(ctx context.Context) (any, error) {
		close(started)
		<-block
		return nil, nil
	}, target); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-started
	for {
		if _, err := b.Submit(func(ctx context.Context) (any, error) {
			return nil, nil
		}, target); err != nil {
			if !errors.Is(err, ErrCapacityExceeded) {
				t.Fatalf("expected ErrCapacityExceeded, got %v", err)
			}
			break
		}
	}

	// A saturated queue must reject immediately, not hang the caller.
	result := make(chan error, 1)
	go func() {
		_, err := b.Submit(func(ctx context.Context) (any, error) {
			return nil, nil
		}, target)
		result <- err
	}()
	select {
	case err := <-result:
		if !errors.Is(err, ErrCapacityExceeded) {
			t.Fatalf("expected ErrCapacityExceeded, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a saturated queue")
	}
}

func TestBridge_CancelSemantics(t *testing.T) {
	b, err := New(WithWorkers(1), WithQueueSize(4))
	if err != nil {
		t.Fatalf("Failed to create bridge: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Failed to start bridge: %v", err)
	}
	defer b.Shutdown()

	var cancelledErr error
	var cancelledRan atomic.Bool
	var deliveries atomic.Int32
	target := b.Bind(func(r Result) {
		if r.Err != nil {
			cancelledErr = r.Err
		}
		deliveries.Add(1)
	})

	// Jam the single worker so the second task stays queued.
	block := make(chan struct{})
	started := make(chan struct{})
	firstID, err := b.Submit(func(ctx context.Context) (any, error) {
		close(started)
		<-block
		return nil, nil
	}, target)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-started

	queuedID, err := b.Submit(func(ctx context.Context) (any, error) {
		cancelledRan.Store(true)
		return nil, nil
	}, target)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if !b.Cancel(queuedID) {
		t.Fatal("Cancel before start should return true")
	}
	if b.Cancel(queuedID) {
		t.Fatal("Second cancel should return false")
	}

	close(block)
	pumpUntil(t, b, func() bool { return deliveries.Load() == 2 })

	if cancelledRan.Load() {
		t.Fatal("cancelled task must not run")
	}
	if !errors.Is(cancelledErr, ErrCancelled) {
		t.Fatalf("expected ErrCancelled outcome, got %v", cancelledErr)
	}
	// The first task has completed by now.
	if b.Cancel(firstID) {
		t.Fatal("Cancel after completion should return false")
	}
}

func TestBridge_WorkerFaultIsolation(t *testing.T) {
	b, err := New(WithWorkers(1))
	if err != nil {
		t.Fatalf("Failed to create bridge: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Failed to start bridge: %v", err)
	}
	defer b.Shutdown()

	results := make(map[TaskID]Result)
	var deliveries atomic.Int32
	target := b.Bind(func(r Result) {
		results[r.TaskID] = r
		deliveries.Add(1)
	})

	faultyID, err := b.Submit(func(ctx context.Context) (any, error) {
		panic("broken invariant")
	}, target)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	okID, err := b.Submit(func(ctx context.Context) (any, error) {
		return 42, nil
	}, target)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	pumpUntil(t, b, func() bool { return deliveries.Load() == 2 })

	fault, ok := AsNativeFault(results[faultyID].Err)
	if !ok {
		t.Fatalf("expected NativeFault outcome, got %v", results[faultyID].Err)
	}
	if fault.Value != "broken invariant" {
		t.Fatalf("unexpected fault value: %v", fault.Value)
	}
	if results[okID].Err != nil || results[okID].Value != 42 {
		t.Fatalf("task after fault should still succeed, got %+v", results[okID])
	}
}

func TestBridge_ShutdownResolvesQueuedTasks(t *testing.T) {
	b, err := New(WithWorkers(1), WithQueueSize(4))
	if err != nil {
		t.Fatalf("Failed to create bridge: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Failed to start bridge: %v", err)
	}

	var shutdownErr error
	var deliveries atomic.Int32
	target := b.Bind(func(r Result) {
		if r.Err != nil && errors.Is(r.Err, ErrShutdown) {
			shutdownErr = r.Err
		}
		deliveries.Add(1)
	})

	started := make(chan struct{})
	if _, err := b.Submit(func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done() // Cooperative: stop when the bridge shuts down
		return nil, ctx.Err()
	}, target); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-started
	if _, err := b.Submit(func(ctx context.Context) (any, error) {
		return nil, nil
	}, target); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if err := b.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	// The dispatch channel is still drainable after shutdown.
	b.Pump()
	if got := deliveries.Load(); got != 2 {
		t.Fatalf("expected 2 deliveries after shutdown, got %d", got)
	}
	if !errors.Is(shutdownErr, ErrShutdown) {
		t.Fatalf("queued task should resolve with ErrShutdown, got %v", shutdownErr)
	}

	if _, err := b.Submit(func(ctx context.Context) (any, error) {
		return nil, nil
	}, target); !errors.Is(err, ErrShutdown) {
		t.Fatalf("Submit after shutdown should return ErrShutdown, got %v", err)
	}
}

func TestBridge_ConcurrentSubmitDuringShutdownResolvesAllAccepted(t *testing.T) {
	// Submitters racing Shutdown from other goroutines: every Submit that
	// returns nil must still produce exactly one delivery, even when the
	// enqueue lands in the same instant the pool closes.
	for iter := 0; iter < 50; iter++ {
		b, err := New(WithWorkers(2), WithQueueSize(8))
		if err != nil {
			t.Fatalf("Failed to create bridge: %v", err)
		}
		if err := b.Start(); err != nil {
			t.Fatalf("Failed to start bridge: %v", err)
		}

		var deliveries atomic.Int64
		target := b.Bind(func(r Result) {
			deliveries.Add(1)
		})

		var accepted atomic.Int64
		stop := make(chan struct{})
		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
					}
					_, err := b.Submit(func(ctx context.Context) (any, error) {
						return nil, nil
					}, target)
					if err == nil {
						accepted.Add(1)
					} else if errors.Is(err, ErrShutdown) {
						return
					}
				}
			}()
		}

		time.Sleep(time.Duration(iter%5) * time.Millisecond)
		if err := b.Shutdown(); err != nil {
			t.Fatalf("Shutdown failed: %v", err)
		}
		close(stop)
		wg.Wait()

		// Workers have quiesced; everything accepted is now in the
		// dispatch channel.
		deadline := time.Now().Add(5 * time.Second)
		for deliveries.Load() < accepted.Load() && time.Now().Before(deadline) {
			if b.Pump() == 0 {
				time.Sleep(time.Millisecond)
			}
		}
		if got, want := deliveries.Load(), accepted.Load(); got != want {
			t.Fatalf("iter %d: %d accepted tasks but only %d deliveries after shutdown", iter, want, got)
		}
	}
}
