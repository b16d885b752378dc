// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package vr

// Validity classifies whether a component may serve as the VR
// listener service. Only ValidityOK permits binding; the other
// values name the first check that failed so callers can report a
// precise reason.
type Validity int

const (
	// ValidityOK means the component resolves to an installed
	// service that declares the VR listener role and the binding
	// permission.
	ValidityOK Validity = iota

	// ValidityNotFound means the component does not resolve to any
	// installed service for the user.
	ValidityNotFound

	// ValidityNotEnabled means the component exists but is not in
	// the user's enabled VR listener set.
	ValidityNotEnabled

	// ValidityNoPermission means the component exists and is
	// enabled but does not require the VR listener binding
	// permission, so binding to it would be unsafe.
	ValidityNoPermission
)

func (v Validity) String() string {
	switch v {
	case ValidityOK:
		return "ok"
	case ValidityNotFound:
		return "not-found"
	case ValidityNotEnabled:
		return "not-enabled"
	case ValidityNoPermission:
		return "no-permission"
	default:
		return "unknown"
	}
}
