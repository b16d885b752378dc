// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parallax-foundation/parallax/lib/clock"
	"github.com/parallax-foundation/parallax/lib/ref"
)

func testPermissionStore(t *testing.T) (*PermissionStore, *Identity, string) {
	t.Helper()
	dir := t.TempDir()
	identity := NewIdentity("parallax-vrd")
	clk := clock.Fake(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	store, err := NewPermissionStore(dir, identity, clk, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	return store, identity, dir
}

func TestOverlayPermissionLifecycle(t *testing.T) {
	store, _, _ := testPermissionStore(t)

	if store.HasOverlayPermission("io.parallax.hud", ref.PrimaryUser) {
		t.Fatal("fresh store reports a grant")
	}
	if err := store.GrantOverlayPermission("io.parallax.hud", ref.PrimaryUser); err != nil {
		t.Fatal(err)
	}
	if !store.HasOverlayPermission("io.parallax.hud", ref.PrimaryUser) {
		t.Fatal("grant not visible")
	}

	// Per-user isolation.
	other, _ := ref.ParseUserID(10)
	if store.HasOverlayPermission("io.parallax.hud", other) {
		t.Fatal("grant leaked to another user")
	}

	if err := store.RevokeOverlayPermission("io.parallax.hud", ref.PrimaryUser); err != nil {
		t.Fatal(err)
	}
	if store.HasOverlayPermission("io.parallax.hud", ref.PrimaryUser) {
		t.Fatal("grant survived revoke")
	}

	// Revoking an absent grant is a no-op.
	if err := store.RevokeOverlayPermission("io.parallax.hud", ref.PrimaryUser); err != nil {
		t.Fatal(err)
	}
}

func TestGrantRecordsElevatedIdentity(t *testing.T) {
	store, identity, dir := testPermissionStore(t)

	restore := identity.AsSystem()
	err := store.GrantOverlayPermission("io.parallax.hud", ref.PrimaryUser)
	restore()
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "user-0.json"))
	if err != nil {
		t.Fatal(err)
	}
	var state struct {
		Overlay map[string]struct {
			SystemFixed bool   `json:"system_fixed"`
			GrantedBy   string `json:"granted_by"`
		} `json:"overlay"`
	}
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatal(err)
	}
	grant, ok := state.Overlay["io.parallax.hud"]
	if !ok {
		t.Fatal("grant not persisted")
	}
	if grant.GrantedBy != SystemIdentity {
		t.Fatalf("granted_by = %q, want %q", grant.GrantedBy, SystemIdentity)
	}
	if !grant.SystemFixed {
		t.Fatal("grant not marked system-fixed")
	}

	if identity.Current() != "parallax-vrd" {
		t.Fatalf("identity after restore = %q", identity.Current())
	}
}
