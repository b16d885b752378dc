// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/parallax-foundation/parallax/lib/ref"
)

// userSettings is the on-disk form of one user's settings file.
type userSettings struct {
	// EnabledVrListeners holds the flattened components the user has
	// enabled as VR listener targets.
	EnabledVrListeners []string `json:"enabled_vr_listeners"`

	// EnabledNotificationListeners is the flat colon-separated
	// enabled notification listener list.
	EnabledNotificationListeners string `json:"enabled_notification_listeners"`
}

// SettingsStore keeps per-user settings as atomic JSON files named
// <dir>/user-N.json. A missing file reads as empty settings.
type SettingsStore struct {
	logger *slog.Logger
	dir    string

	mu         sync.Mutex
	changeHook func(user ref.UserID)
}

func NewSettingsStore(dir string, logger *slog.Logger) (*SettingsStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating settings directory: %w", err)
	}
	return &SettingsStore{logger: logger, dir: dir}, nil
}

// SetChangeHook registers a function invoked after any write to a
// user's enabled VR listener set. The coordinator uses it to
// re-validate the bound listener.
func (s *SettingsStore) SetChangeHook(hook func(user ref.UserID)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changeHook = hook
}

func (s *SettingsStore) userPath(user ref.UserID) string {
	return filepath.Join(s.dir, user.String()+".json")
}

func (s *SettingsStore) load(user ref.UserID) (userSettings, error) {
	var settings userSettings
	if err := readJSON(s.userPath(user), &settings); err != nil {
		if os.IsNotExist(err) {
			return userSettings{}, nil
		}
		return userSettings{}, fmt.Errorf("reading settings for %s: %w", user, err)
	}
	return settings, nil
}

// EnabledNotificationListeners returns the user's flat notification
// listener list.
func (s *SettingsStore) EnabledNotificationListeners(user ref.UserID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings, err := s.load(user)
	if err != nil {
		return "", err
	}
	return settings.EnabledNotificationListeners, nil
}

// SetEnabledNotificationListeners replaces the user's flat
// notification listener list.
func (s *SettingsStore) SetEnabledNotificationListeners(user ref.UserID, flat string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings, err := s.load(user)
	if err != nil {
		return err
	}
	settings.EnabledNotificationListeners = flat
	if err := writeJSONAtomic(s.userPath(user), settings); err != nil {
		return fmt.Errorf("writing settings for %s: %w", user, err)
	}
	return nil
}

// VrListenerEnabled reports whether the user has enabled the
// component as a VR listener target.
func (s *SettingsStore) VrListenerEnabled(component ref.Component, user ref.UserID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings, err := s.load(user)
	if err != nil {
		return false, err
	}
	flat := component.Flatten()
	for _, enabled := range settings.EnabledVrListeners {
		if enabled == flat {
			return true, nil
		}
	}
	return false, nil
}

// SetVrListenerEnabled adds or removes a component from the user's
// enabled VR listener set and fires the change hook.
func (s *SettingsStore) SetVrListenerEnabled(component ref.Component, user ref.UserID, enabled bool) error {
	s.mu.Lock()
	settings, err := s.load(user)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	flat := component.Flatten()
	updated := settings.EnabledVrListeners[:0]
	for _, existing := range settings.EnabledVrListeners {
		if existing != flat {
			updated = append(updated, existing)
		}
	}
	if enabled {
		updated = append(updated, flat)
	}
	settings.EnabledVrListeners = updated
	if err := writeJSONAtomic(s.userPath(user), settings); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("writing settings for %s: %w", user, err)
	}
	hook := s.changeHook
	s.mu.Unlock()

	if hook != nil {
		hook(user)
	}
	return nil
}
