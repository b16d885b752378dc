// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package vr

import (
	"log/slog"
	"strings"

	"github.com/parallax-foundation/parallax/lib/ref"
)

// grantPhase enforces the strict alternation between grant and
// revoke. The Manager pairs an elevation with every bind and a
// restoration with every unbind; a double transition in either
// direction is a programming error, so it panics rather than
// silently corrupting the recorded diff.
type grantPhase int

const (
	phaseUngranted grantPhase = iota
	phaseGranted
)

// grantRecord remembers exactly which elevations a grant actually
// performed, so revocation undoes that and nothing more. A package
// that already held a permission before the grant keeps it after the
// revoke.
type grantRecord struct {
	active         bool
	user           ref.UserID
	overlayPackage string
	policyPackage  string
	addedListeners []string
}

// permissionGrants elevates the implied permissions for the bound
// listener's package and restores them on unbind. All methods are
// called with the Manager lock held.
type permissionGrants struct {
	logger      *slog.Logger
	packages    PackageIndex
	permissions PermissionStore
	policy      NotificationPolicy
	settings    ListenerSettings

	phase  grantPhase
	record grantRecord
}

func newPermissionGrants(logger *slog.Logger, packages PackageIndex, permissions PermissionStore, policy NotificationPolicy, settings ListenerSettings) *permissionGrants {
	return &permissionGrants{
		logger:      logger,
		packages:    packages,
		permissions: permissions,
		policy:      policy,
		settings:    settings,
	}
}

// grant elevates permissions for the component's package. Packages
// that are not of system origin get no elevation, but the phase
// still advances so the pairing with revoke holds.
func (g *permissionGrants) grant(component ref.Component, user ref.UserID) {
	if g.phase == phaseGranted {
		panic("vr: granting implied permissions twice without a revoke")
	}
	g.phase = phaseGranted

	pkg := component.Package()
	info, err := g.packages.AppInfo(pkg)
	if err != nil {
		g.logger.Error("cannot find package info while granting vr permissions",
			"package", pkg,
			"error", err)
		return
	}
	if !info.SystemOrigin {
		return
	}

	g.record.active = true
	g.record.user = user
	g.grantOverlay(pkg, user)
	g.grantNotificationPolicyAccess(pkg)
	g.grantNotificationListenerAccess(pkg, user)
}

// revoke restores the state recorded by the matching grant. Must
// follow a grant for the same component and user.
func (g *permissionGrants) revoke(component ref.Component, user ref.UserID) {
	if g.phase == phaseUngranted {
		panic("vr: revoking implied permissions without a matching grant")
	}
	g.phase = phaseUngranted

	if !g.record.active {
		return
	}
	pkg := component.Package()
	g.revokeOverlay(user)
	g.revokeNotificationPolicyAccess(pkg)
	g.revokeNotificationListenerAccess(user)
	g.record = grantRecord{}
}

// activeGrant reports whether the current grant performed any
// elevation.
func (g *permissionGrants) activeGrant() bool {
	return g.record.active
}

func (g *permissionGrants) grantOverlay(pkg string, user ref.UserID) {
	if g.permissions.HasOverlayPermission(pkg, user) {
		return
	}
	if err := g.permissions.GrantOverlayPermission(pkg, user); err != nil {
		g.logger.Error("could not grant overlay permission",
			"package", pkg,
			"user", user,
			"error", err)
		return
	}
	g.record.overlayPackage = pkg
}

func (g *permissionGrants) revokeOverlay(user ref.UserID) {
	if g.record.overlayPackage == "" {
		return
	}
	if err := g.permissions.RevokeOverlayPermission(g.record.overlayPackage, user); err != nil {
		g.logger.Error("could not revoke overlay permission",
			"package", g.record.overlayPackage,
			"user", user,
			"error", err)
	}
	g.record.overlayPackage = ""
}

func (g *permissionGrants) grantNotificationPolicyAccess(pkg string) {
	if g.policy.AccessGranted(pkg) {
		return
	}
	if err := g.policy.SetAccessGranted(pkg, true); err != nil {
		g.logger.Error("could not grant notification policy access",
			"package", pkg,
			"error", err)
		return
	}
	g.record.policyPackage = pkg
}

func (g *permissionGrants) revokeNotificationPolicyAccess(pkg string) {
	if g.record.policyPackage == "" {
		return
	}
	if g.record.policyPackage != pkg {
		g.logger.Error("cannot revoke notification policy access for wrong package",
			"granted", g.record.policyPackage,
			"requested", pkg)
		return
	}
	// Rules created while access was held do not survive the grant.
	if err := g.policy.ClearRules(pkg); err != nil {
		g.logger.Error("could not clear automatic rules",
			"package", pkg,
			"error", err)
	}
	if err := g.policy.SetAccessGranted(pkg, false); err != nil {
		g.logger.Error("could not revoke notification policy access",
			"package", pkg,
			"error", err)
	}
	g.record.policyPackage = ""
}

// grantNotificationListenerAccess adds every notification listener
// the package declares to the user's enabled-listener list, tracking
// only the entries that were actually missing.
func (g *permissionGrants) grantNotificationListenerAccess(pkg string, user ref.UserID) {
	declared, err := g.packages.NotificationListeners(pkg, user)
	if err != nil {
		g.logger.Error("could not enumerate notification listeners",
			"package", pkg,
			"user", user,
			"error", err)
		return
	}

	flat, err := g.settings.EnabledNotificationListeners(user)
	if err != nil {
		g.logger.Error("could not read enabled notification listeners",
			"user", user,
			"error", err)
		return
	}
	current := splitListenerList(flat)

	for _, listener := range declared {
		if listener.Package() != pkg {
			continue
		}
		name := listener.Flatten()
		if containsListener(current, name) {
			continue
		}
		current = append(current, name)
		g.record.addedListeners = append(g.record.addedListeners, name)
	}

	if len(current) > 0 {
		if err := g.settings.SetEnabledNotificationListeners(user, joinListenerList(current)); err != nil {
			g.logger.Error("could not write enabled notification listeners",
				"user", user,
				"error", err)
		}
	}
}

func (g *permissionGrants) revokeNotificationListenerAccess(user ref.UserID) {
	if len(g.record.addedListeners) == 0 {
		return
	}
	flat, err := g.settings.EnabledNotificationListeners(user)
	if err != nil {
		g.logger.Error("could not read enabled notification listeners",
			"user", user,
			"error", err)
		g.record.addedListeners = nil
		return
	}
	current := splitListenerList(flat)

	remaining := current[:0]
	for _, name := range current {
		if containsListener(g.record.addedListeners, name) {
			continue
		}
		remaining = append(remaining, name)
	}

	if err := g.settings.SetEnabledNotificationListeners(user, joinListenerList(remaining)); err != nil {
		g.logger.Error("could not write enabled notification listeners",
			"user", user,
			"error", err)
	}
	g.record.addedListeners = nil
}

// splitListenerList parses the flat colon-separated enabled-listener
// setting, skipping empty entries.
func splitListenerList(flat string) []string {
	if flat == "" {
		return nil
	}
	var listeners []string
	for _, entry := range strings.Split(flat, ":") {
		if entry == "" {
			continue
		}
		listeners = append(listeners, entry)
	}
	return listeners
}

func joinListenerList(listeners []string) string {
	return strings.Join(listeners, ":")
}

func containsListener(listeners []string, name string) bool {
	for _, listener := range listeners {
		if listener == name {
			return true
		}
	}
	return false
}
