// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package servicetoken

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/parallax-foundation/parallax/lib/codec"
)

// signatureSize is the fixed size of an Ed25519 signature.
const signatureSize = ed25519.SignatureSize // 64 bytes

// Grant is an authorization grant embedded in a service token. A
// token may carry several grants; a request is authorized when any
// grant's action patterns match the requested action.
type Grant struct {
	// Actions is a list of action patterns (glob syntax over the
	// "/"-separated action hierarchy, e.g. "vr/access" or "vr/*").
	Actions []string `cbor:"1,keyasint"`

	// Targets optionally restricts which component packages the
	// grant applies to (glob patterns over package names). Empty
	// means unrestricted.
	Targets []string `cbor:"2,keyasint,omitempty"`
}

// Token is the CBOR-encoded payload of a service identity token.
// The wire form is the CBOR payload followed by a 64-byte Ed25519
// signature over the payload bytes.
type Token struct {
	// Subject identifies the client holding the token (e.g.,
	// "compositor", "shell", "session-manager"). Used for logging
	// and dump output, not for authorization decisions.
	Subject string `cbor:"1,keyasint"`

	// Audience is the service this token is scoped to. Tokens for
	// the VR manager carry "vr"; a token minted for another
	// Parallax service is rejected here.
	Audience string `cbor:"2,keyasint"`

	// Grants are the capability grants for this client.
	Grants []Grant `cbor:"3,keyasint,omitempty"`

	// ID is a unique token identifier (hex string), reserved for
	// emergency revocation.
	ID string `cbor:"4,keyasint"`

	// IssuedAt is a Unix timestamp (seconds) of when the token was
	// minted.
	IssuedAt int64 `cbor:"5,keyasint"`

	// ExpiresAt is a Unix timestamp (seconds) after which the token
	// is no longer valid.
	ExpiresAt int64 `cbor:"6,keyasint"`
}

// Errors returned by Verify and related functions.
var (
	ErrTokenTooShort    = errors.New("servicetoken: token too short for signature")
	ErrInvalidSignature = errors.New("servicetoken: invalid Ed25519 signature")
	ErrTokenExpired     = errors.New("servicetoken: token has expired")
	ErrAudienceMismatch = errors.New("servicetoken: audience does not match")
)

// Mint signs a Token with the issuer's private key and returns the
// raw wire-format bytes: CBOR-encoded payload followed by the 64-byte
// Ed25519 signature.
func Mint(privateKey ed25519.PrivateKey, token *Token) ([]byte, error) {
	payload, err := codec.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("servicetoken: encoding token payload: %w", err)
	}

	signature := ed25519.Sign(privateKey, payload)

	result := make([]byte, len(payload)+signatureSize)
	copy(result, payload)
	copy(result[len(payload):], signature)

	return result, nil
}

// Verify splits the raw token bytes, verifies the Ed25519 signature,
// CBOR-decodes the payload, and checks expiry. Returns the decoded
// Token on success.
//
// The caller should additionally check the Audience field against the
// expected service name (or use VerifyForService, which does both).
func Verify(publicKey ed25519.PublicKey, tokenBytes []byte) (*Token, error) {
	return VerifyAt(publicKey, tokenBytes, time.Now())
}

// VerifyAt is like Verify but accepts an explicit time for expiry
// checks. This supports deterministic testing.
func VerifyAt(publicKey ed25519.PublicKey, tokenBytes []byte, now time.Time) (*Token, error) {
	if len(tokenBytes) <= signatureSize {
		return nil, ErrTokenTooShort
	}

	splitPoint := len(tokenBytes) - signatureSize
	payload := tokenBytes[:splitPoint]
	signature := tokenBytes[splitPoint:]

	if !ed25519.Verify(publicKey, payload, signature) {
		return nil, ErrInvalidSignature
	}

	var token Token
	if err := codec.Unmarshal(payload, &token); err != nil {
		return nil, fmt.Errorf("servicetoken: decoding token payload: %w", err)
	}

	if now.Unix() >= token.ExpiresAt {
		return nil, ErrTokenExpired
	}

	return &token, nil
}

// VerifyForService combines Verify with an audience check. This is
// the standard verification path for a service socket: verify
// signature, check expiry, and confirm the token is scoped to this
// service.
func VerifyForService(publicKey ed25519.PublicKey, tokenBytes []byte, expectedAudience string) (*Token, error) {
	return VerifyForServiceAt(publicKey, tokenBytes, expectedAudience, time.Now())
}

// VerifyForServiceAt is like VerifyForService but accepts an explicit
// time.
func VerifyForServiceAt(publicKey ed25519.PublicKey, tokenBytes []byte, expectedAudience string, now time.Time) (*Token, error) {
	token, err := VerifyAt(publicKey, tokenBytes, now)
	if err != nil {
		return nil, err
	}

	if token.Audience != expectedAudience {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrAudienceMismatch, token.Audience, expectedAudience)
	}

	return token, nil
}

// GrantsAllow checks whether the grant set authorizes an action,
// optionally against a target package. For actions with no target
// (empty string), only the action patterns are checked. A grant with
// target patterns also covers targetless actions — the targets field
// restricts per-package use, not the plain capability.
func GrantsAllow(grants []Grant, action, target string) bool {
	for _, grant := range grants {
		if !matchAny(grant.Actions, action) {
			continue
		}
		if target == "" {
			return true
		}
		if len(grant.Targets) == 0 {
			// No target restriction: the grant covers every package.
			return true
		}
		if matchAny(grant.Targets, target) {
			return true
		}
	}
	return false
}

// matchAny reports whether value matches any pattern in the list.
func matchAny(patterns []string, value string) bool {
	for _, pattern := range patterns {
		if matchPattern(pattern, value) {
			return true
		}
	}
	return false
}

// matchPattern matches a "/"-separated value against a glob pattern:
//
//	"vr/access"  matches "vr/access" exactly
//	"vr/*"       matches "vr/access" but not "vr/a/b"
//	"vr/**"      matches "vr/access" and "vr/a/b"
//	"**"         matches anything
//
// Single-segment "*" does not cross "/" (standard path.Match
// behavior). Malformed patterns deny rather than propagate errors —
// a malformed pattern must never grant access.
func matchPattern(pattern, value string) bool {
	if pattern == "**" {
		return true
	}
	if suffix, found := strings.CutSuffix(pattern, "/**"); found {
		if suffix == value {
			return true
		}
		matched, err := path.Match(suffix, value)
		if err == nil && matched {
			return true
		}
		return strings.HasPrefix(value, suffix+"/")
	}
	matched, err := path.Match(pattern, value)
	if err != nil {
		return false
	}
	return matched
}
