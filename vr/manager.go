// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package vr

import (
	"log/slog"
	"sync"
	"time"

	"github.com/parallax-foundation/parallax/lib/clock"
	"github.com/parallax-foundation/parallax/lib/ref"
)

// Options wires a Manager to its platform collaborators. Oracle,
// Bind, Packages, Permissions, NotificationPolicy, Settings, and
// Overlay are required; Logger, Clock, Hook, and Identity default to
// slog.Default, the real clock, no hook, and no identity elevation.
type Options struct {
	Logger *slog.Logger
	Clock  clock.Clock

	Oracle             ComponentOracle
	Bind               BindingFactory
	Packages           PackageIndex
	Permissions        PermissionStore
	NotificationPolicy NotificationPolicy
	Settings           ListenerSettings
	Overlay            OverlayController

	Hook     ModeHook
	Identity IdentityScope
}

// Manager is the VR mode coordinator. It owns the device-wide mode
// flag, keeps at most one listener service bound, pairs the implied
// permission grant with that binding, and notifies registered
// callbacks of mode changes.
//
// All state lives under a single mutex; every externally observable
// transition happens atomically with respect to other transitions.
type Manager struct {
	logger      *slog.Logger
	clock       clock.Clock
	oracle      ComponentOracle
	bind        BindingFactory
	overlay     OverlayController
	hook        ModeHook
	identity    IdentityScope
	broadcaster *broadcaster
	startedAt   time.Time

	mu               sync.Mutex
	modeEnabled      bool
	current          BindingHandle
	callingComponent ref.Component
	callingUser      ref.UserID
	grants           *permissionGrants
	closed           bool
}

// NewManager constructs a Manager with VR mode off and no listener
// bound. Call Close to stop the notification delivery goroutine.
func NewManager(options Options) *Manager {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Identity == nil {
		options.Identity = noopIdentity{}
	}
	for name, missing := range map[string]bool{
		"Oracle":             options.Oracle == nil,
		"Bind":               options.Bind == nil,
		"Packages":           options.Packages == nil,
		"Permissions":        options.Permissions == nil,
		"NotificationPolicy": options.NotificationPolicy == nil,
		"Settings":           options.Settings == nil,
		"Overlay":            options.Overlay == nil,
	} {
		if missing {
			panic("vr: NewManager called without required collaborator " + name)
		}
	}
	return &Manager{
		logger:      options.Logger,
		clock:       options.Clock,
		oracle:      options.Oracle,
		bind:        options.Bind,
		overlay:     options.Overlay,
		hook:        options.Hook,
		identity:    options.Identity,
		broadcaster: newBroadcaster(options.Logger),
		startedAt:   options.Clock.Now(),
		grants: newPermissionGrants(options.Logger, options.Packages,
			options.Permissions, options.NotificationPolicy, options.Settings),
	}
}

// SetMode applies a mode-change intent. The mode flag always takes
// the requested value; the return value reports only whether the
// target component was valid and is (or is becoming) the bound
// listener. Callers that want VR rendering without a usable listener
// get exactly that: the flag flips, nothing binds.
//
// calling, when non-nil, records the focused activity component that
// initiated the change; the bound listener is told about it through
// a focus event.
func (m *Manager) SetMode(enabled bool, target ref.Component, user ref.UserID, calling *ref.Component) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateCurrentServiceLocked(enabled, target, user, calling)
}

// Mode reports the current VR mode flag.
func (m *Manager) Mode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modeEnabled
}

// IsCurrentListener reports whether the given package owns the
// currently bound listener service for the given user.
func (m *Manager) IsCurrentListener(pkg string, user ref.UserID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return false
	}
	return m.current.Component().Package() == pkg && m.current.User() == user
}

// CheckListenerValidity classifies a component as a VR listener
// target without changing any state.
func (m *Manager) CheckListenerValidity(component ref.Component, user ref.UserID) Validity {
	return m.oracle.Validity(component, user)
}

// RecheckCurrentService re-validates the bound listener against the
// current package and settings state, unbinding it if it is no
// longer valid. Called when enabled-listener settings or the package
// index change underneath a binding.
func (m *Manager) RecheckCurrentService() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return
	}
	component, user := m.current.Component(), m.current.User()
	if m.oracle.Validity(component, user) == ValidityOK {
		return
	}
	m.logger.Info("bound vr listener no longer valid, updating",
		"component", component,
		"user", user)
	m.updateCurrentServiceLocked(m.modeEnabled, component, user, nil)
}

// NotifyUserChange rebinds the listener service for a new foreground
// user. The mode flag and target component carry over; the binding
// and its permission grant move to the new user's instance of the
// component if it is valid there.
func (m *Manager) NotifyUserChange(user ref.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return
	}
	if m.current.User() == user {
		return
	}
	m.updateCurrentServiceLocked(m.modeEnabled, m.current.Component(), user, nil)
}

// RegisterCallback subscribes a callback to mode-change
// notifications. It does not receive the current value on
// registration; callers that need it should read Mode first.
// Callbacks are tracked by identity in a map, so the value must be
// comparable; pointer implementations satisfy this naturally.
func (m *Manager) RegisterCallback(callback StateCallback) {
	if callback == nil {
		panic("vr: RegisterCallback called with nil callback")
	}
	m.broadcaster.register(callback)
}

// UnregisterCallback removes a previously registered callback.
// Unknown callbacks are ignored.
func (m *Manager) UnregisterCallback(callback StateCallback) {
	m.broadcaster.unregister(callback)
}

// Close disconnects any bound listener and stops the notification
// delivery goroutine, draining queued notifications first.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.current != nil {
		m.current.Disconnect()
		m.grants.revoke(m.current.Component(), m.current.User())
		m.current = nil
	}
	m.mu.Unlock()
	m.broadcaster.close()
}

// updateCurrentServiceLocked is the single state transition. Order
// matters and is observable:
//
//  1. the mode flag takes the requested value unconditionally,
//     pushing the hook, the overlay restriction, and the callback
//     notification before any binding work;
//  2. the binding is reconciled against (enabled, target validity):
//     disconnect and revoke the old listener before connecting and
//     granting the new one, so the grant record never covers two
//     packages at once;
//  3. the calling component is updated and a focus event is queued
//     for the bound listener if anything it cares about changed; the
//     event is written off-lock on the delivery goroutine.
func (m *Manager) updateCurrentServiceLocked(enabled bool, target ref.Component, user ref.UserID, calling *ref.Component) bool {
	restore := m.identity.AsSystem()
	defer restore()

	sendFocusEvent := false
	valid := m.oracle.Validity(target, user) == ValidityOK

	var exempt ref.Component
	if enabled && valid {
		exempt = target
	}
	m.changeModeLocked(enabled, exempt)

	switch {
	case !enabled || !valid:
		if m.current != nil {
			m.disconnectCurrentLocked()
		}
	case m.current == nil:
		m.connectLocked(target, user)
		sendFocusEvent = true
	case !m.current.Matches(target, user):
		m.disconnectCurrentLocked()
		m.connectLocked(target, user)
		sendFocusEvent = true
	}

	if calling != nil && *calling != m.callingComponent {
		m.callingComponent = *calling
		m.callingUser = user
		sendFocusEvent = true
	}

	if m.current != nil && sendFocusEvent {
		// Delivery can block on the listener's socket; hand it to the
		// broadcaster goroutine so the state lock is never held across
		// a write to the peer.
		handle := m.current
		event := Event{FocusedComponent: m.callingComponent}
		m.broadcaster.enqueue(func() { handle.DeliverEvent(event) })
	}
	return valid
}

func (m *Manager) connectLocked(target ref.Component, user ref.UserID) {
	m.logger.Info("connecting vr listener",
		"component", target,
		"user", user)
	handle := m.bind(target, user)
	if err := handle.Connect(); err != nil {
		m.logger.Error("could not start vr listener connection",
			"component", target,
			"user", user,
			"error", err)
	}
	m.current = handle
	m.grants.grant(target, user)
}

func (m *Manager) disconnectCurrentLocked() {
	component, user := m.current.Component(), m.current.User()
	m.logger.Info("disconnecting vr listener",
		"component", component,
		"user", user)
	m.current.Disconnect()
	m.grants.revoke(component, user)
	m.current = nil
}

// changeModeLocked applies the flag if it differs, then pushes the
// consequences: compositor hook, overlay restriction, callback
// notification.
func (m *Manager) changeModeLocked(enabled bool, exempt ref.Component) {
	if m.modeEnabled == enabled {
		return
	}
	m.modeEnabled = enabled
	m.logger.Info("vr mode changed", "enabled", enabled)
	if m.hook != nil {
		if err := m.hook.SetVrMode(enabled); err != nil {
			m.logger.Error("vr mode hook failed",
				"enabled", enabled,
				"error", err)
		}
	}
	exemptPackage := ""
	if !exempt.IsZero() {
		exemptPackage = exempt.Package()
	}
	if err := m.overlay.SetRestriction(enabled, exemptPackage); err != nil {
		m.logger.Error("could not update overlay restriction",
			"restricted", enabled,
			"exempt", exemptPackage,
			"error", err)
	}
	m.broadcaster.enqueueMode(enabled)
}
