// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// Package vr implements the device-wide VR mode state machine: the
// mode flag, the lifecycle of the single bound VR listener service,
// the implied-permission grants tied to that binding, and the
// fan-out of mode-change notifications to registered callbacks.
//
// The Manager owns all mutable state under one lock. Platform
// concerns — component validity, the actual service connection,
// permission and settings storage, the compositor hook — enter as
// small collaborator interfaces so the transition logic stays
// testable with in-memory fakes. Notification delivery (mode-change
// broadcasts and focus events to the bound listener) always happens
// off the state lock, on a dedicated delivery goroutine, so a
// callback that calls back into the Manager cannot deadlock.
package vr
