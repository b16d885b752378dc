// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const modeHookTimeout = 10 * time.Second

// ModeHookRunner pushes the VR mode flag to the compositor by
// running a configured command with "on" or "off" appended to its
// arguments. Implements vr.ModeHook.
type ModeHookRunner struct {
	logger  *slog.Logger
	command []string
}

// NewModeHookRunner builds a runner for the configured command line.
// Returns nil for an empty command so callers can wire the absence
// of a hook directly.
func NewModeHookRunner(command []string, logger *slog.Logger) *ModeHookRunner {
	if len(command) == 0 {
		return nil
	}
	return &ModeHookRunner{logger: logger, command: command}
}

// SetVrMode runs the hook command. The command's combined output is
// included in the error on failure.
func (r *ModeHookRunner) SetVrMode(enabled bool) error {
	arg := "off"
	if enabled {
		arg = "on"
	}
	ctx, cancel := context.WithTimeout(context.Background(), modeHookTimeout)
	defer cancel()

	args := append(append([]string(nil), r.command[1:]...), arg)
	cmd := exec.CommandContext(ctx, r.command[0], args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("mode hook %q %s: %w (output: %s)",
			r.command[0], arg, err, strings.TrimSpace(string(output)))
	}
	r.logger.Debug("mode hook ran", "arg", arg)
	return nil
}
