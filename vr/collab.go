// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package vr

import (
	"github.com/parallax-foundation/parallax/lib/ref"
)

// ComponentOracle answers whether a component is a valid VR listener
// target for a user. The Manager consults it on every mode change and
// on explicit validity checks; implementations read the package index
// and the user's enabled-listener settings.
type ComponentOracle interface {
	Validity(component ref.Component, user ref.UserID) Validity
}

// Event is delivered to the bound listener service when the focused
// activity component changes, including immediately after a
// connection is established.
type Event struct {
	FocusedComponent ref.Component `cbor:"focused_component"`
}

// BindingHandle is a live connection attempt to one listener service.
// The Manager creates at most one handle at a time through its
// BindingFactory; Disconnect ends the handle permanently, and a later
// bind to the same component gets a fresh handle.
//
// Connect starts the connection machinery and returns immediately;
// implementations retry internally, so a returned error indicates a
// permanent misconfiguration rather than a transient failure.
// DeliverEvent is best effort: events sent before the connection is
// up, or after it has dropped, may be coalesced or lost. It may block
// on a slow peer up to its write deadline; the Manager invokes it
// only from the delivery goroutine, never under its state lock.
type BindingHandle interface {
	Connect() error
	Disconnect()
	Matches(component ref.Component, user ref.UserID) bool
	DeliverEvent(event Event)
	Component() ref.Component
	User() ref.UserID
}

// BindingFactory creates the handle used to reach a listener service.
type BindingFactory func(component ref.Component, user ref.UserID) BindingHandle

// AppInfo describes an installed package as far as the permission
// grant logic cares: implied permissions are only elevated for
// packages of system origin.
type AppInfo struct {
	Package      string
	SystemOrigin bool
}

// PackageIndex looks up installed packages and the notification
// listener services they declare.
type PackageIndex interface {
	AppInfo(pkg string) (*AppInfo, error)
	NotificationListeners(pkg string, user ref.UserID) ([]ref.Component, error)
}

// PermissionStore holds per-user runtime permission flags. The
// Manager only touches the overlay permission, and only with the
// system-fixed flag so user settings screens cannot flip it while a
// VR listener holds the grant.
type PermissionStore interface {
	HasOverlayPermission(pkg string, user ref.UserID) bool
	GrantOverlayPermission(pkg string, user ref.UserID) error
	RevokeOverlayPermission(pkg string, user ref.UserID) error
}

// NotificationPolicy controls which packages may read and modify the
// device notification policy. ClearRules removes any automatic rules
// a package created while it held access.
type NotificationPolicy interface {
	AccessGranted(pkg string) bool
	SetAccessGranted(pkg string, granted bool) error
	ClearRules(pkg string) error
}

// ListenerSettings stores the per-user enabled notification listener
// list in its flat form: flattened component names joined by colons.
type ListenerSettings interface {
	EnabledNotificationListeners(user ref.UserID) (string, error)
	SetEnabledNotificationListeners(user ref.UserID, flat string) error
}

// OverlayController applies or lifts the VR overlay restriction.
// While restricted, only the exempt package (empty for none) may
// create system overlays.
type OverlayController interface {
	SetRestriction(restricted bool, exemptPackage string) error
}

// ModeHook pushes the mode flag down to the compositor layer. It is
// invoked on every effective flag change, before callbacks are
// notified.
type ModeHook interface {
	SetVrMode(enabled bool) error
}

// IdentityScope elevates the calling identity to the system for the
// duration of a state transition, so permission and settings writes
// performed on behalf of a caller are not attributed to that caller.
// The returned function restores the previous identity and must be
// called exactly once.
type IdentityScope interface {
	AsSystem() (restore func())
}

// StateCallback receives mode-change notifications. Callbacks are
// invoked sequentially on a delivery goroutine, never under the
// Manager lock; a callback returning an error is logged and skipped,
// and delivery continues with the remaining callbacks.
//
// Implementations must be comparable values (pointers are the usual
// choice): the registry keys a map by callback identity, and a
// non-comparable value passed to RegisterCallback will panic.
type StateCallback interface {
	ModeChanged(enabled bool) error
}

type noopIdentity struct{}

func (noopIdentity) AsSystem() func() { return func() {} }
