// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parallax-foundation/parallax/lib/clock"
	"github.com/parallax-foundation/parallax/lib/codec"
	"github.com/parallax-foundation/parallax/lib/ref"
	"github.com/parallax-foundation/parallax/lib/service"
	"github.com/parallax-foundation/parallax/lib/servicetoken"
	"github.com/parallax-foundation/parallax/platform"
	"github.com/parallax-foundation/parallax/vr"
	"github.com/parallax-foundation/parallax/vr/vrlistener"
)

var daemonTestEpoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type daemonFixture struct {
	socketPath string
	privateKey ed25519.PrivateKey
	listener   ref.Component
}

func startDaemonFixture(t *testing.T) *daemonFixture {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.Fake(daemonTestEpoch)

	listener, err := ref.ParseComponent("io.parallax.hud/HudListener")
	if err != nil {
		t.Fatal(err)
	}

	// Manifest with one verified system package declaring the
	// listener.
	payload := []byte("hud package image")
	if err := os.WriteFile(filepath.Join(dir, "hud.img"), payload, 0o644); err != nil {
		t.Fatal(err)
	}
	manifest := fmt.Sprintf(`{
  "packages": [
    {
      "name": "io.parallax.hud",
      "system": true,
      "payload": "hud.img",
      "payload_digest": "%s",
      "services": [
        {"class": "HudListener", "vr_listener": true, "bind_permission": true},
        {"class": "HudNotifications", "notification_listener": true},
      ],
    },
  ],
}`, platform.PayloadDigest(payload))
	manifestPath := filepath.Join(dir, "packages.jsonc")
	if err := os.WriteFile(manifestPath, []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}

	index, err := platform.NewPackageIndex(manifestPath, logger)
	if err != nil {
		t.Fatal(err)
	}
	settings, err := platform.NewSettingsStore(filepath.Join(dir, "settings"), logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := settings.SetVrListenerEnabled(listener, ref.PrimaryUser, true); err != nil {
		t.Fatal(err)
	}
	identity := platform.NewIdentity("parallax-vrd-test")
	permissions, err := platform.NewPermissionStore(filepath.Join(dir, "permissions"), identity, clk, logger)
	if err != nil {
		t.Fatal(err)
	}
	policy, err := platform.NewNotificationPolicyStore(filepath.Join(dir, "notification-policy.json"), clk, logger)
	if err != nil {
		t.Fatal(err)
	}
	overlay, err := platform.NewOverlayController(filepath.Join(dir, "overlay-restriction.json"), logger)
	if err != nil {
		t.Fatal(err)
	}

	manager := vr.NewManager(vr.Options{
		Logger:             logger,
		Clock:              clk,
		Oracle:             platform.NewOracle(index, settings, logger),
		Bind:               vrlistener.NewFactory(filepath.Join(dir, "listener"), logger, clk).New,
		Packages:           index,
		Permissions:        permissions,
		NotificationPolicy: policy,
		Settings:           settings,
		Overlay:            overlay,
		Identity:           identity,
	})
	t.Cleanup(manager.Close)

	publicKey, privateKey, err := servicetoken.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}

	socketPath := filepath.Join(dir, "vrmanager.sock")
	server := service.NewSocketServer(socketPath, logger, &service.AuthConfig{
		PublicKey: publicKey,
		Audience:  "vr",
		Now:       func() time.Time { return daemonTestEpoch },
	})
	newVrService(manager, index, clk, logger).register(server)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Serve(ctx); err != nil {
			t.Errorf("Serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	waitForSocket(t, socketPath)

	return &daemonFixture{
		socketPath: socketPath,
		privateKey: privateKey,
		listener:   listener,
	}
}

func waitForSocket(t *testing.T, socketPath string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %s did not appear", socketPath)
}

// mintToken signs a token for the vr audience carrying the given
// grant actions.
func (f *daemonFixture) mintToken(t *testing.T, actions ...string) []byte {
	t.Helper()
	tokenBytes, err := servicetoken.Mint(f.privateKey, &servicetoken.Token{
		Subject:  "test-caller",
		Audience: "vr",
		Grants: []servicetoken.Grant{
			{Actions: actions},
		},
		ID:        "test-token",
		IssuedAt:  daemonTestEpoch.Add(-time.Minute).Unix(),
		ExpiresAt: daemonTestEpoch.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return tokenBytes
}

// call sends one request and decodes the response envelope.
func (f *daemonFixture) call(t *testing.T, request map[string]any) service.Response {
	t.Helper()
	conn, err := net.DialTimeout("unix", f.socketPath, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var response service.Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return response
}

func (f *daemonFixture) setMode(t *testing.T, enabled bool, target string, user int) setVrModeResponse {
	t.Helper()
	response := f.call(t, map[string]any{
		"action":  "set-vr-mode",
		"token":   f.mintToken(t, grantMode),
		"enabled": enabled,
		"target":  target,
		"user":    user,
	})
	if !response.OK {
		t.Fatalf("set-vr-mode failed: %s", response.Error)
	}
	var result setVrModeResponse
	if err := codec.Unmarshal(response.Data, &result); err != nil {
		t.Fatal(err)
	}
	return result
}

func TestStatusIsUnauthenticated(t *testing.T) {
	f := startDaemonFixture(t)
	response := f.call(t, map[string]any{"action": "status"})
	if !response.OK {
		t.Fatalf("status failed: %s", response.Error)
	}
	var status statusResponse
	if err := codec.Unmarshal(response.Data, &status); err != nil {
		t.Fatal(err)
	}
	if status.Service != "parallax-vrd" {
		t.Fatalf("service = %q", status.Service)
	}
}

func TestGetModeStateRequiresAccessGrant(t *testing.T) {
	f := startDaemonFixture(t)

	response := f.call(t, map[string]any{
		"action": "get-mode-state",
		"token":  f.mintToken(t, grantDump),
	})
	if response.OK || !strings.Contains(response.Error, "access denied") {
		t.Fatalf("wrong-grant response = %+v", response)
	}

	response = f.call(t, map[string]any{
		"action": "get-mode-state",
		"token":  f.mintToken(t, grantAccess),
	})
	if !response.OK {
		t.Fatalf("get-mode-state failed: %s", response.Error)
	}
	var state modeStateResponse
	if err := codec.Unmarshal(response.Data, &state); err != nil {
		t.Fatal(err)
	}
	if state.Enabled {
		t.Fatal("fresh daemon reports vr mode enabled")
	}
}

func TestSetVrModeTransition(t *testing.T) {
	f := startDaemonFixture(t)

	result := f.setMode(t, true, f.listener.Flatten(), 0)
	if !result.Valid || !result.Enabled {
		t.Fatalf("set-vr-mode = %+v, want valid and enabled", result)
	}

	response := f.call(t, map[string]any{
		"action":  "is-current-listener",
		"token":   f.mintToken(t, grantMode),
		"package": "io.parallax.hud",
		"user":    0,
	})
	if !response.OK {
		t.Fatalf("is-current-listener failed: %s", response.Error)
	}
	var current isCurrentListenerResponse
	if err := codec.Unmarshal(response.Data, &current); err != nil {
		t.Fatal(err)
	}
	if !current.Current {
		t.Fatal("bound listener not reported as current")
	}

	result = f.setMode(t, false, f.listener.Flatten(), 0)
	if !result.Valid || result.Enabled {
		t.Fatalf("disable = %+v, want valid and disabled", result)
	}
}

func TestSetVrModeInvalidTargetStillFlipsFlag(t *testing.T) {
	f := startDaemonFixture(t)

	result := f.setMode(t, true, "io.parallax.absent/Listener", 0)
	if result.Valid {
		t.Fatal("uninstalled target reported valid")
	}
	if !result.Enabled {
		t.Fatal("mode flag did not flip for an invalid target")
	}
}

func TestSetVrModeRejectsMissingTarget(t *testing.T) {
	f := startDaemonFixture(t)

	response := f.call(t, map[string]any{
		"action":  "set-vr-mode",
		"token":   f.mintToken(t, grantMode),
		"enabled": true,
		"user":    0,
	})
	if response.OK || !strings.Contains(response.Error, "target component is required") {
		t.Fatalf("missing-target response = %+v", response)
	}

	// No state mutation on an invalid-argument failure.
	state := f.call(t, map[string]any{
		"action": "get-mode-state",
		"token":  f.mintToken(t, grantAccess),
	})
	var mode modeStateResponse
	if err := codec.Unmarshal(state.Data, &mode); err != nil {
		t.Fatal(err)
	}
	if mode.Enabled {
		t.Fatal("rejected request changed the mode flag")
	}
}

func TestCheckListenerValidity(t *testing.T) {
	f := startDaemonFixture(t)

	response := f.call(t, map[string]any{
		"action":    "check-listener-validity",
		"token":     f.mintToken(t, grantMode),
		"component": f.listener.Flatten(),
		"user":      0,
	})
	if !response.OK {
		t.Fatalf("check-listener-validity failed: %s", response.Error)
	}
	var result checkValidityResponse
	if err := codec.Unmarshal(response.Data, &result); err != nil {
		t.Fatal(err)
	}
	if !result.OK || result.Validity != "ok" {
		t.Fatalf("validity = %+v", result)
	}

	// Another user never enabled the listener.
	response = f.call(t, map[string]any{
		"action":    "check-listener-validity",
		"token":     f.mintToken(t, grantMode),
		"component": f.listener.Flatten(),
		"user":      10,
	})
	if err := codec.Unmarshal(response.Data, &result); err != nil {
		t.Fatal(err)
	}
	if result.OK || result.Validity != "not-enabled" {
		t.Fatalf("other-user validity = %+v", result)
	}
}

func TestDumpRequiresDumpGrant(t *testing.T) {
	f := startDaemonFixture(t)
	f.setMode(t, true, f.listener.Flatten(), 0)

	response := f.call(t, map[string]any{
		"action": "dump",
		"token":  f.mintToken(t, grantAccess),
	})
	if response.OK || !strings.Contains(response.Error, "access denied") {
		t.Fatalf("access-grant dump response = %+v", response)
	}

	response = f.call(t, map[string]any{
		"action": "dump",
		"token":  f.mintToken(t, grantDump),
	})
	if !response.OK {
		t.Fatalf("dump failed: %s", response.Error)
	}
	var dump vr.StateDump
	if err := codec.Unmarshal(response.Data, &dump); err != nil {
		t.Fatal(err)
	}
	if !dump.ModeEnabled {
		t.Fatal("dump missing mode flag")
	}
	if dump.BoundListener != "io.parallax.hud/HudListener" {
		t.Fatalf("dump bound listener = %q", dump.BoundListener)
	}
	if !dump.GrantActive {
		t.Fatal("dump missing active grant")
	}
}

func TestRegisterListenerStream(t *testing.T) {
	f := startDaemonFixture(t)

	conn, err := net.DialTimeout("unix", f.socketPath, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if err := codec.NewEncoder(conn).Encode(map[string]any{
		"action": "register-listener",
		"token":  f.mintToken(t, grantAccess),
	}); err != nil {
		t.Fatal(err)
	}

	decoder := codec.NewDecoder(conn)
	readFrame := func() modeFrame {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var frame modeFrame
		if err := decoder.Decode(&frame); err != nil {
			t.Fatalf("decoding mode frame: %v", err)
		}
		return frame
	}

	// First frame snapshots the current mode.
	if frame := readFrame(); frame.Event != "mode-changed" || frame.Enabled {
		t.Fatalf("initial frame = %+v", frame)
	}

	f.setMode(t, true, f.listener.Flatten(), 0)
	if frame := readFrame(); !frame.Enabled {
		t.Fatalf("change frame = %+v", frame)
	}

	f.setMode(t, false, f.listener.Flatten(), 0)
	if frame := readFrame(); frame.Enabled {
		t.Fatalf("disable frame = %+v", frame)
	}
}

func TestRegisterListenerStreamRequiresGrant(t *testing.T) {
	f := startDaemonFixture(t)

	conn, err := net.DialTimeout("unix", f.socketPath, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if err := codec.NewEncoder(conn).Encode(map[string]any{
		"action": "register-listener",
		"token":  f.mintToken(t, grantDump),
	}); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var response service.Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatal(err)
	}
	if response.OK || !strings.Contains(response.Error, "access denied") {
		t.Fatalf("stream grant response = %+v", response)
	}
}
