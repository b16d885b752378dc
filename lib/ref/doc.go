// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable identity references
// for Parallax entities: installed-package components and platform
// users.
//
// All constructors validate their inputs and return errors for
// invalid names. Once constructed, a ref is immutable. The canonical
// serialization form of a Component is the flattened "package/Class"
// string; CBOR and JSON marshaling use this form via
// encoding.TextMarshaler.
package ref
