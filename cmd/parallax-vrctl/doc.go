// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// parallax-vrctl is the operator CLI for the VR mode coordinator
// daemon (parallax-vrd).
//
// It connects to the daemon's unix socket with a service token and
// exposes the coordinator's operations as subcommands: querying and
// flipping the mode flag, checking listener validity, streaming
// mode-change notifications, and dumping diagnostic state.
//
// The token file is minted by the deployment's provisioning tooling
// with the grants the subcommand needs (vr/access for reads, vr/mode
// for mode changes, vr/dump for diagnostics).
package main
