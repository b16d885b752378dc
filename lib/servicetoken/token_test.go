// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package servicetoken

import (
	"errors"
	"testing"
	"time"
)

var tokenTestEpoch = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func testToken() *Token {
	return &Token{
		Subject:  "compositor",
		Audience: "vrmanager",
		Grants: []Grant{
			{Actions: []string{"vr/access"}},
		},
		ID:        "token-1",
		IssuedAt:  tokenTestEpoch.Add(-time.Minute).Unix(),
		ExpiresAt: tokenTestEpoch.Add(time.Hour).Unix(),
	}
}

func TestMintVerifyRoundTrip(t *testing.T) {
	public, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	tokenBytes, err := Mint(private, testToken())
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	decoded, err := VerifyAt(public, tokenBytes, tokenTestEpoch)
	if err != nil {
		t.Fatalf("VerifyAt: %v", err)
	}
	if decoded.Subject != "compositor" {
		t.Errorf("Subject = %q", decoded.Subject)
	}
	if decoded.Audience != "vrmanager" {
		t.Errorf("Audience = %q", decoded.Audience)
	}
	if len(decoded.Grants) != 1 {
		t.Errorf("got %d grants, want 1", len(decoded.Grants))
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	public, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	tokenBytes, err := Mint(private, testToken())
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	tokenBytes[0] ^= 0xFF
	if _, err := VerifyAt(public, tokenBytes, tokenTestEpoch); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("got %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	_, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	otherPublic, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	tokenBytes, err := Mint(private, testToken())
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := VerifyAt(otherPublic, tokenBytes, tokenTestEpoch); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("got %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	public, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	tokenBytes, err := Mint(private, testToken())
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := VerifyAt(public, tokenBytes, tokenTestEpoch.Add(2*time.Hour)); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("got %v, want ErrTokenExpired", err)
	}
}

func TestVerifyRejectsShortToken(t *testing.T) {
	public, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	if _, err := VerifyAt(public, make([]byte, 10), tokenTestEpoch); !errors.Is(err, ErrTokenTooShort) {
		t.Errorf("got %v, want ErrTokenTooShort", err)
	}
}

func TestVerifyForServiceAudience(t *testing.T) {
	public, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	tokenBytes, err := Mint(private, testToken())
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	if _, err := VerifyForServiceAt(public, tokenBytes, "vrmanager", tokenTestEpoch); err != nil {
		t.Errorf("matching audience rejected: %v", err)
	}
	if _, err := VerifyForServiceAt(public, tokenBytes, "telemetry", tokenTestEpoch); !errors.Is(err, ErrAudienceMismatch) {
		t.Errorf("got %v, want ErrAudienceMismatch", err)
	}
}

func TestGrantsAllow(t *testing.T) {
	tests := []struct {
		name   string
		grants []Grant
		action string
		target string
		want   bool
	}{
		{"exact action", []Grant{{Actions: []string{"vr/access"}}}, "vr/access", "", true},
		{"no grants", nil, "vr/access", "", false},
		{"wrong action", []Grant{{Actions: []string{"vr/dump"}}}, "vr/access", "", false},
		{"single wildcard", []Grant{{Actions: []string{"vr/*"}}}, "vr/access", "", true},
		{"single wildcard no crossing", []Grant{{Actions: []string{"vr/*"}}}, "vr/a/b", "", false},
		{"recursive wildcard", []Grant{{Actions: []string{"vr/**"}}}, "vr/a/b", "", true},
		{"universal", []Grant{{Actions: []string{"**"}}}, "anything/at/all", "", true},
		{"target match", []Grant{{Actions: []string{"vr/access"}, Targets: []string{"io.parallax.*"}}}, "vr/access", "io.parallax.hud", true},
		{"target mismatch", []Grant{{Actions: []string{"vr/access"}, Targets: []string{"io.parallax.*"}}}, "vr/access", "com.example.app", false},
		{"no target restriction covers any target", []Grant{{Actions: []string{"vr/access"}}}, "vr/access", "com.example.app", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GrantsAllow(tt.grants, tt.action, tt.target); got != tt.want {
				t.Errorf("GrantsAllow = %v, want %v", got, tt.want)
			}
		})
	}
}
