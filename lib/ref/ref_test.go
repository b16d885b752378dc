// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "testing"

func TestNewComponent(t *testing.T) {
	tests := []struct {
		name    string
		pkg     string
		class   string
		wantErr bool
	}{
		{"valid", "io.parallax.hud", "HudListener", false},
		{"single segment package", "hud", "Listener", false},
		{"hyphenated segment", "io.parallax.hud-overlay", "Overlay", false},
		{"dotted class", "io.parallax.hud", "listeners.Hud", false},
		{"empty package", "", "Listener", true},
		{"empty class", "io.parallax.hud", "", true},
		{"uppercase package", "io.Parallax", "Listener", true},
		{"empty package segment", "io..hud", "Listener", true},
		{"segment starts with digit", "io.9hud", "Listener", true},
		{"class starts with digit", "io.parallax.hud", "9Listener", true},
		{"class with slash", "io.parallax.hud", "a/b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewComponent(tt.pkg, tt.class)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewComponent(%q, %q) error = %v, wantErr %v", tt.pkg, tt.class, err, tt.wantErr)
			}
		})
	}
}

func TestParseComponentRoundTrip(t *testing.T) {
	component, err := ParseComponent("io.parallax.hud/HudListener")
	if err != nil {
		t.Fatalf("ParseComponent: %v", err)
	}
	if component.Package() != "io.parallax.hud" {
		t.Errorf("Package() = %q", component.Package())
	}
	if component.Class() != "HudListener" {
		t.Errorf("Class() = %q", component.Class())
	}
	if component.Flatten() != "io.parallax.hud/HudListener" {
		t.Errorf("Flatten() = %q", component.Flatten())
	}
}

func TestParseComponentRejectsMissingSeparator(t *testing.T) {
	if _, err := ParseComponent("io.parallax.hud"); err == nil {
		t.Error("expected error for missing separator")
	}
}

func TestComponentZeroValue(t *testing.T) {
	var zero Component
	if !zero.IsZero() {
		t.Error("zero value not IsZero")
	}
	if zero.Flatten() != "" {
		t.Errorf("zero Flatten() = %q, want empty", zero.Flatten())
	}
	if zero.String() != "(none)" {
		t.Errorf("zero String() = %q, want (none)", zero.String())
	}
}

func TestComponentTextMarshalRoundTrip(t *testing.T) {
	component, err := NewComponent("io.parallax.hud", "HudListener")
	if err != nil {
		t.Fatalf("NewComponent: %v", err)
	}
	text, err := component.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var decoded Component
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if decoded != component {
		t.Errorf("round trip: got %v, want %v", decoded, component)
	}
}

func TestParseUserID(t *testing.T) {
	if _, err := ParseUserID(-1); err == nil {
		t.Error("expected error for negative user id")
	}
	user, err := ParseUserID(10)
	if err != nil {
		t.Fatalf("ParseUserID(10): %v", err)
	}
	if user.String() != "user-10" {
		t.Errorf("String() = %q", user.String())
	}
}
