// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package vr

import (
	"errors"
	"testing"

	"github.com/parallax-foundation/parallax/lib/ref"
)

func newGrantsFixture(t *testing.T) (*permissionGrants, *fakePackages, *fakePermissions, *fakePolicy, *fakeSettings) {
	t.Helper()
	log := &transitionLog{}
	packages := &fakePackages{apps: make(map[string]AppInfo), listeners: make(map[string][]ref.Component)}
	permissions := &fakePermissions{log: log}
	policy := &fakePolicy{log: log}
	settings := &fakeSettings{}
	grants := newPermissionGrants(discardLogger(), packages, permissions, policy, settings)
	return grants, packages, permissions, policy, settings
}

func TestGrantTwicePanics(t *testing.T) {
	grants, packages, _, _, _ := newGrantsFixture(t)
	component := mustComponent(t, "io.parallax.hud/HudListener")
	packages.apps["io.parallax.hud"] = AppInfo{Package: "io.parallax.hud", SystemOrigin: true}

	grants.grant(component, ref.PrimaryUser)

	defer func() {
		if recover() == nil {
			t.Fatal("second grant without a revoke did not panic")
		}
	}()
	grants.grant(component, ref.PrimaryUser)
}

func TestRevokeWithoutGrantPanics(t *testing.T) {
	grants, _, _, _, _ := newGrantsFixture(t)
	component := mustComponent(t, "io.parallax.hud/HudListener")

	defer func() {
		if recover() == nil {
			t.Fatal("revoke without a grant did not panic")
		}
	}()
	grants.revoke(component, ref.PrimaryUser)
}

func TestGrantUnknownPackageStillAdvancesPhase(t *testing.T) {
	grants, _, permissions, policy, _ := newGrantsFixture(t)
	component := mustComponent(t, "io.parallax.gone/Listener")

	grants.grant(component, ref.PrimaryUser)
	if grants.activeGrant() {
		t.Fatal("unknown package produced an active grant")
	}
	if len(permissions.granted) != 0 || len(policy.access) != 0 {
		t.Fatal("unknown package mutated permission state")
	}

	// The matching revoke must still be legal so the guard stays in
	// lockstep with bind/unbind.
	grants.revoke(component, ref.PrimaryUser)
}

func TestListenerSettingsReadFailureSkipsListenerGrant(t *testing.T) {
	grants, packages, _, _, settings := newGrantsFixture(t)
	component := mustComponent(t, "io.parallax.hud/HudListener")
	packages.apps["io.parallax.hud"] = AppInfo{Package: "io.parallax.hud", SystemOrigin: true}
	packages.listeners["io.parallax.hud"] = []ref.Component{
		mustComponent(t, "io.parallax.hud/HudNotifications"),
	}
	settings.readErr = errors.New("settings store unavailable")

	grants.grant(component, ref.PrimaryUser)
	if len(grants.record.addedListeners) != 0 {
		t.Fatal("listener entries recorded despite settings read failure")
	}
	grants.revoke(component, ref.PrimaryUser)
}

func TestGrantIgnoresForeignListeners(t *testing.T) {
	grants, packages, _, _, settings := newGrantsFixture(t)
	component := mustComponent(t, "io.parallax.hud/HudListener")
	packages.apps["io.parallax.hud"] = AppInfo{Package: "io.parallax.hud", SystemOrigin: true}
	packages.listeners["io.parallax.hud"] = []ref.Component{
		mustComponent(t, "io.parallax.hud/HudNotifications"),
		mustComponent(t, "io.parallax.other/Impostor"),
	}

	grants.grant(component, ref.PrimaryUser)
	if got := settings.values[ref.PrimaryUser]; got != "io.parallax.hud/HudNotifications" {
		t.Fatalf("enabled listeners = %q, want only the package's own listener", got)
	}
}

func TestRevokeWrongPackageKeepsPolicyAccess(t *testing.T) {
	grants, packages, _, policy, _ := newGrantsFixture(t)
	granted := mustComponent(t, "io.parallax.hud/HudListener")
	packages.apps["io.parallax.hud"] = AppInfo{Package: "io.parallax.hud", SystemOrigin: true}

	grants.grant(granted, ref.PrimaryUser)
	if !policy.AccessGranted("io.parallax.hud") {
		t.Fatal("policy access not granted")
	}

	other := mustComponent(t, "io.parallax.cinema/CinemaListener")
	grants.revoke(other, ref.PrimaryUser)
	if !policy.AccessGranted("io.parallax.hud") {
		t.Fatal("policy access for the granted package was revoked on a mismatched revoke")
	}
}

func TestSplitListenerList(t *testing.T) {
	tests := []struct {
		flat string
		want []string
	}{
		{"", nil},
		{"a/B", []string{"a/B"}},
		{"a/B:c/D", []string{"a/B", "c/D"}},
		{":a/B::c/D:", []string{"a/B", "c/D"}},
	}
	for _, tt := range tests {
		got := splitListenerList(tt.flat)
		if len(got) != len(tt.want) {
			t.Errorf("splitListenerList(%q) = %v, want %v", tt.flat, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitListenerList(%q) = %v, want %v", tt.flat, got, tt.want)
				break
			}
		}
	}
}

func TestJoinListenerList(t *testing.T) {
	if got := joinListenerList([]string{"a/B", "c/D"}); got != "a/B:c/D" {
		t.Fatalf("joinListenerList = %q", got)
	}
	if got := joinListenerList(nil); got != "" {
		t.Fatalf("joinListenerList(nil) = %q, want empty", got)
	}
}
