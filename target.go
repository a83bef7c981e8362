// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package reactorbridge

import "sync"

// Target is the opaque, revocable handle identifying a host-side callback
// object. The bridge never assumes a Target is alive: every delivery
// resolves the handle first and is silently discarded when resolution
// fails.
//
// The host owns the identity and lifetime behind a Target. Before the host
// releases the underlying object it must call Bridge.Release, which purges
// every pending delivery for the handle on the host thread, so the bridge
// can never invoke a callback into freed host state.
type Target uint64

// Result is the typed payload handed to a host callback: the task it
// belongs to, its value on success, and its terminal error otherwise.
type Result struct {
	TaskID TaskID
	Value  any
	Err    error
}

// Callback is the host-side completion receiver bound behind a Target. It
// is only ever invoked on the host thread, during Pump.
type Callback func(Result)

// targetRegistry maps live handles to their callbacks. A registry entry is
// the weak-reference analogue here: resolution succeeds only while the host
// has not revoked the handle, and revocation is the host's destruction
// notification.
type targetRegistry struct {
	mu      sync.Mutex
	nextID  uint64
	targets map[Target]Callback
}

func newTargetRegistry() *targetRegistry {
	return &targetRegistry{targets: make(map[Target]Callback)}
}

// bind registers cb and returns its handle. Host thread only.
func (r *targetRegistry) bind(cb Callback) Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t := Target(r.nextID)
	r.targets[t] = cb
	return t
}

// resolve returns the callback behind t, or false if the handle was
// revoked. Host thread only.
func (r *targetRegistry) resolve(t Target) (Callback, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.targets[t]
	return cb, ok
}

// revoke invalidates t. Subsequent resolutions fail.
func (r *targetRegistry) revoke(t Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.targets, t)
}
