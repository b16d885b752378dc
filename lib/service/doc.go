// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// Package service implements the Unix-socket CBOR protocol shared by
// Parallax services: a request-response server with optional
// token-authenticated actions and long-lived stream actions, and the
// matching client.
//
// Every request is one CBOR map with an "action" field for routing
// and, for authenticated actions, a "token" field holding raw
// servicetoken bytes. Responses are {ok, error, data} envelopes;
// stream actions instead keep the connection open and push CBOR
// frames defined by the individual service.
package service
