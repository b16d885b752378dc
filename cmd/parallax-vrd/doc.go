// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// parallax-vrd is the VR mode coordination daemon. It owns the
// device-wide VR mode flag, keeps at most one listener service bound
// over its Unix socket, manages the implied permission grants tied
// to that binding, and serves the coordination surface on a
// CBOR-over-Unix-socket request protocol.
//
// The socket is restricted to same-UID peers. Beyond that, actions
// are gated by service-token grants: vr/access for mode queries and
// the mode-change stream, vr/mode for state transitions, vr/dump for
// diagnostics. The status action is unauthenticated liveness.
//
// SIGHUP reloads the installed-package manifest and re-validates the
// bound listener against it.
package main
