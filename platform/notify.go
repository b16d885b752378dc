// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parallax-foundation/parallax/lib/clock"
)

// automaticRule is one automatic notification policy rule created by
// a package while it held policy access.
type automaticRule struct {
	Package   string    `json:"package"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// notificationPolicyState is the on-disk policy file.
type notificationPolicyState struct {
	// AccessGranted lists packages allowed to read and modify the
	// device notification policy.
	AccessGranted []string `json:"access_granted"`

	AutomaticRules []automaticRule `json:"automatic_rules"`
}

// NotificationPolicyStore keeps device-wide notification policy
// access and automatic rules in one atomic JSON file.
type NotificationPolicyStore struct {
	logger *slog.Logger
	path   string
	clock  clock.Clock

	mu sync.Mutex
}

func NewNotificationPolicyStore(path string, clk clock.Clock, logger *slog.Logger) (*NotificationPolicyStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating notification policy directory: %w", err)
	}
	return &NotificationPolicyStore{logger: logger, path: path, clock: clk}, nil
}

func (n *NotificationPolicyStore) load() (notificationPolicyState, error) {
	var state notificationPolicyState
	if err := readJSON(n.path, &state); err != nil {
		if os.IsNotExist(err) {
			return notificationPolicyState{}, nil
		}
		return notificationPolicyState{}, fmt.Errorf("reading notification policy: %w", err)
	}
	return state, nil
}

func (n *NotificationPolicyStore) store(state notificationPolicyState) error {
	if err := writeJSONAtomic(n.path, state); err != nil {
		return fmt.Errorf("writing notification policy: %w", err)
	}
	return nil
}

// AccessGranted reports whether the package holds notification
// policy access.
func (n *NotificationPolicyStore) AccessGranted(pkg string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	state, err := n.load()
	if err != nil {
		n.logger.Error("could not read notification policy state", "error", err)
		return false
	}
	for _, granted := range state.AccessGranted {
		if granted == pkg {
			return true
		}
	}
	return false
}

// SetAccessGranted grants or revokes notification policy access for
// the package. Both directions are idempotent.
func (n *NotificationPolicyStore) SetAccessGranted(pkg string, granted bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	state, err := n.load()
	if err != nil {
		return err
	}
	updated := state.AccessGranted[:0]
	for _, existing := range state.AccessGranted {
		if existing != pkg {
			updated = append(updated, existing)
		}
	}
	if granted {
		updated = append(updated, pkg)
	}
	state.AccessGranted = updated
	return n.store(state)
}

// AddAutomaticRule records a rule created by a package. Policy
// surfaces call this on behalf of packages holding access.
func (n *NotificationPolicyStore) AddAutomaticRule(pkg, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	state, err := n.load()
	if err != nil {
		return err
	}
	state.AutomaticRules = append(state.AutomaticRules, automaticRule{
		Package:   pkg,
		Name:      name,
		CreatedAt: n.clock.Now().UTC(),
	})
	return n.store(state)
}

// ClearRules removes every automatic rule the package created.
func (n *NotificationPolicyStore) ClearRules(pkg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	state, err := n.load()
	if err != nil {
		return err
	}
	remaining := state.AutomaticRules[:0]
	for _, rule := range state.AutomaticRules {
		if rule.Package != pkg {
			remaining = append(remaining, rule)
		}
	}
	state.AutomaticRules = remaining
	return n.store(state)
}

// RuleCount returns how many automatic rules the package currently
// has. Used by diagnostics.
func (n *NotificationPolicyStore) RuleCount(pkg string) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	state, err := n.load()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, rule := range state.AutomaticRules {
		if rule.Package == pkg {
			count++
		}
	}
	return count, nil
}
