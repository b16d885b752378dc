// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package vr

import (
	"fmt"
	"strings"
)

// StateDump is a point-in-time snapshot of the coordinator state for
// diagnostics. Component fields use the flattened form, with "(none)"
// for unset.
type StateDump struct {
	ModeEnabled         bool    `cbor:"mode_enabled"`
	BoundListener       string  `cbor:"bound_listener"`
	BoundUser           string  `cbor:"bound_user"`
	CallingComponent    string  `cbor:"calling_component"`
	CallingUser         string  `cbor:"calling_user"`
	GrantActive         bool    `cbor:"grant_active"`
	RegisteredCallbacks int     `cbor:"registered_callbacks"`
	UptimeSeconds       float64 `cbor:"uptime_seconds"`
}

// DumpState snapshots the current coordinator state.
func (m *Manager) DumpState() StateDump {
	m.mu.Lock()
	defer m.mu.Unlock()

	dump := StateDump{
		ModeEnabled:         m.modeEnabled,
		BoundListener:       "(none)",
		BoundUser:           "(none)",
		CallingComponent:    m.callingComponent.String(),
		CallingUser:         m.callingUser.String(),
		GrantActive:         m.grants.activeGrant(),
		RegisteredCallbacks: m.broadcaster.count(),
		UptimeSeconds:       m.clock.Now().Sub(m.startedAt).Seconds(),
	}
	if m.current != nil {
		dump.BoundListener = m.current.Component().String()
		dump.BoundUser = m.current.User().String()
	}
	return dump
}

// String renders the dump in the one-field-per-line form served by
// the dump action and the control CLI.
func (d StateDump) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mode enabled: %t\n", d.ModeEnabled)
	fmt.Fprintf(&b, "bound listener: %s (%s)\n", d.BoundListener, d.BoundUser)
	fmt.Fprintf(&b, "calling component: %s (%s)\n", d.CallingComponent, d.CallingUser)
	fmt.Fprintf(&b, "grant active: %t\n", d.GrantActive)
	fmt.Fprintf(&b, "registered callbacks: %d\n", d.RegisteredCallbacks)
	fmt.Fprintf(&b, "uptime: %.0fs\n", d.UptimeSeconds)
	return b.String()
}
