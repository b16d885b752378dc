// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec centralizes CBOR encoding configuration for all
// Parallax wire formats: the vrmanager socket protocol, listener
// event frames, and service token payloads. Consumers import this
// package instead of fxamacker/cbor so every component shares one
// deterministic encoder configuration.
package codec
