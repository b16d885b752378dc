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
	"github.com/parallax-foundation/parallax/lib/ref"
)

// overlayGrant records one overlay permission grant.
type overlayGrant struct {
	// SystemFixed marks the grant as platform-managed: settings
	// surfaces must not let the user toggle it while it stands.
	SystemFixed bool      `json:"system_fixed"`
	GrantedBy   string    `json:"granted_by"`
	GrantedAt   time.Time `json:"granted_at"`
}

// userPermissions is the on-disk form of one user's permission file.
type userPermissions struct {
	Overlay map[string]overlayGrant `json:"overlay"`
}

// PermissionStore keeps per-user runtime permission flags as atomic
// JSON files named <dir>/user-N.json. Writes record the active
// identity for audit.
type PermissionStore struct {
	logger   *slog.Logger
	dir      string
	identity *Identity
	clock    clock.Clock

	mu sync.Mutex
}

func NewPermissionStore(dir string, identity *Identity, clk clock.Clock, logger *slog.Logger) (*PermissionStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating permissions directory: %w", err)
	}
	return &PermissionStore{logger: logger, dir: dir, identity: identity, clock: clk}, nil
}

func (p *PermissionStore) userPath(user ref.UserID) string {
	return filepath.Join(p.dir, user.String()+".json")
}

func (p *PermissionStore) load(user ref.UserID) (userPermissions, error) {
	var permissions userPermissions
	if err := readJSON(p.userPath(user), &permissions); err != nil {
		if os.IsNotExist(err) {
			return userPermissions{}, nil
		}
		return userPermissions{}, fmt.Errorf("reading permissions for %s: %w", user, err)
	}
	return permissions, nil
}

// HasOverlayPermission reports whether the package holds the overlay
// permission for the user.
func (p *PermissionStore) HasOverlayPermission(pkg string, user ref.UserID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	permissions, err := p.load(user)
	if err != nil {
		p.logger.Error("could not read permission state",
			"user", user,
			"error", err)
		return false
	}
	_, granted := permissions.Overlay[pkg]
	return granted
}

// GrantOverlayPermission grants the overlay permission to the
// package as a system-fixed grant.
func (p *PermissionStore) GrantOverlayPermission(pkg string, user ref.UserID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	permissions, err := p.load(user)
	if err != nil {
		return err
	}
	if permissions.Overlay == nil {
		permissions.Overlay = make(map[string]overlayGrant)
	}
	permissions.Overlay[pkg] = overlayGrant{
		SystemFixed: true,
		GrantedBy:   p.identity.Current(),
		GrantedAt:   p.clock.Now().UTC(),
	}
	if err := writeJSONAtomic(p.userPath(user), permissions); err != nil {
		return fmt.Errorf("writing permissions for %s: %w", user, err)
	}
	return nil
}

// RevokeOverlayPermission removes the package's overlay permission.
// Revoking an absent grant is a no-op.
func (p *PermissionStore) RevokeOverlayPermission(pkg string, user ref.UserID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	permissions, err := p.load(user)
	if err != nil {
		return err
	}
	if _, granted := permissions.Overlay[pkg]; !granted {
		return nil
	}
	delete(permissions.Overlay, pkg)
	if err := writeJSONAtomic(p.userPath(user), permissions); err != nil {
		return fmt.Errorf("writing permissions for %s: %w", user, err)
	}
	return nil
}
