// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// Package servicetoken implements signed capability tokens for the
// Parallax service sockets.
//
// A token is a CBOR payload (subject, audience, grants, expiry)
// followed by a 64-byte Ed25519 signature over the payload bytes.
// The session manager mints tokens for trusted clients; each service
// verifies against the issuer's public key and its own audience name
// before dispatching an authenticated action. Authorization inside a
// service is grant-based: glob patterns over "/"-separated action
// names, optionally restricted to target packages.
package servicetoken
