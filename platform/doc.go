// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// Package platform implements the VR coordinator's collaborators on
// top of the local filesystem: the installed-package index (a JSONC
// manifest with BLAKE3 payload verification), per-user settings and
// permission stores (atomic JSON files), the notification policy
// store, the overlay restriction file, the compositor mode hook, and
// the component validity oracle that ties the index and settings
// together.
//
// Everything here is deliberately boring storage and lookup; the
// interesting state transitions live in package vr.
package platform
