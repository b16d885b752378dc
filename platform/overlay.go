// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// overlayRestriction is the on-disk form the compositor watches.
type overlayRestriction struct {
	Restricted bool `json:"restricted"`

	// ExemptPackage may create overlays while the restriction is
	// active. Empty means nobody is exempt.
	ExemptPackage string `json:"exempt_package"`
}

// OverlayController publishes the overlay restriction as an atomic
// JSON file under the runtime directory. Implements
// vr.OverlayController.
type OverlayController struct {
	logger *slog.Logger
	path   string

	mu sync.Mutex
}

func NewOverlayController(path string, logger *slog.Logger) (*OverlayController, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating overlay restriction directory: %w", err)
	}
	controller := &OverlayController{logger: logger, path: path}
	// Publish the unrestricted baseline so watchers always find the
	// file.
	if err := controller.SetRestriction(false, ""); err != nil {
		return nil, err
	}
	return controller, nil
}

// SetRestriction publishes the restriction state.
func (o *OverlayController) SetRestriction(restricted bool, exemptPackage string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	state := overlayRestriction{Restricted: restricted, ExemptPackage: exemptPackage}
	if err := writeJSONAtomic(o.path, state); err != nil {
		return fmt.Errorf("writing overlay restriction: %w", err)
	}
	return nil
}

// Current reads back the published state. Used by diagnostics and
// tests.
func (o *OverlayController) Current() (restricted bool, exemptPackage string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var state overlayRestriction
	if err := readJSON(o.path, &state); err != nil {
		return false, "", fmt.Errorf("reading overlay restriction: %w", err)
	}
	return state.Restricted, state.ExemptPackage, nil
}
