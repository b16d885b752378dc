// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"os"
	"path/filepath"
	"testing"
)

func TestModeHookRunnerPassesModeArgument(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "mode")
	runner := NewModeHookRunner([]string{"/bin/sh", "-c", `printf %s "$0" > ` + outPath}, discardLogger())
	if runner == nil {
		t.Fatal("runner is nil for a non-empty command")
	}

	if err := runner.SetVrMode(true); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "on" {
		t.Fatalf("hook argument = %q, want on", data)
	}

	if err := runner.SetVrMode(false); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(outPath)
	if string(data) != "off" {
		t.Fatalf("hook argument = %q, want off", data)
	}
}

func TestModeHookRunnerReportsFailure(t *testing.T) {
	runner := NewModeHookRunner([]string{"/bin/false"}, discardLogger())
	if err := runner.SetVrMode(true); err == nil {
		t.Fatal("failing hook did not error")
	}
}

func TestModeHookRunnerEmptyCommand(t *testing.T) {
	if runner := NewModeHookRunner(nil, discardLogger()); runner != nil {
		t.Fatal("empty command produced a runner")
	}
}
