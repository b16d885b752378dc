// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package platform

import "sync"

// SystemIdentity is the attribution recorded for writes performed by
// the coordinator itself.
const SystemIdentity = "system"

// Identity tracks the identity on whose behalf the current operation
// runs. State stores read it when recording who performed a write;
// the coordinator elevates to SystemIdentity for the duration of a
// transition so grant and settings writes made on behalf of a caller
// are attributed to the platform, not the caller.
type Identity struct {
	mu      sync.Mutex
	current string
}

// NewIdentity creates an identity scope starting at initial
// (typically the daemon's own service name).
func NewIdentity(initial string) *Identity {
	return &Identity{current: initial}
}

// Current returns the active attribution.
func (i *Identity) Current() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.current
}

// SetCaller records the identity of the caller being served. The
// returned restore function reinstates the previous value and must
// be called exactly once, usually via defer.
func (i *Identity) SetCaller(caller string) (restore func()) {
	return i.push(caller)
}

// AsSystem elevates attribution to SystemIdentity. Satisfies
// vr.IdentityScope.
func (i *Identity) AsSystem() (restore func()) {
	return i.push(SystemIdentity)
}

func (i *Identity) push(next string) func() {
	i.mu.Lock()
	previous := i.current
	i.current = next
	i.mu.Unlock()
	return func() {
		i.mu.Lock()
		i.current = previous
		i.mu.Unlock()
	}
}
