// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// Component identifies a single service class inside an installed
// package (e.g., class "HudListener" in package "io.parallax.hud").
//
// The canonical flattened form is "package/Class", which is the form
// used in settings strings, wire messages, and log output.
//
// Component is an immutable value type. The zero value is not valid;
// use IsZero to check.
type Component struct {
	pkg   string
	class string
}

// NewComponent validates and constructs a Component from a package
// name and a class name.
func NewComponent(pkg, class string) (Component, error) {
	if err := ValidatePackageName(pkg); err != nil {
		return Component{}, err
	}
	if err := validateClassName(class); err != nil {
		return Component{}, err
	}
	return Component{pkg: pkg, class: class}, nil
}

// ParseComponent parses the flattened "package/Class" form.
func ParseComponent(flat string) (Component, error) {
	pkg, class, found := strings.Cut(flat, "/")
	if !found {
		return Component{}, fmt.Errorf("component %q: missing '/' separator", flat)
	}
	component, err := NewComponent(pkg, class)
	if err != nil {
		return Component{}, fmt.Errorf("component %q: %w", flat, err)
	}
	return component, nil
}

// Package returns the package name portion.
func (c Component) Package() string { return c.pkg }

// Class returns the class name portion.
func (c Component) Class() string { return c.class }

// Flatten returns the canonical "package/Class" form. Returns the
// empty string for a zero-value Component.
func (c Component) Flatten() string {
	if c.IsZero() {
		return ""
	}
	return c.pkg + "/" + c.class
}

// String returns the flattened form, or "(none)" for the zero value.
// Used in log output and dumps.
func (c Component) String() string {
	if c.IsZero() {
		return "(none)"
	}
	return c.Flatten()
}

// IsZero reports whether the Component is the zero value.
func (c Component) IsZero() bool { return c.pkg == "" && c.class == "" }

// MarshalText implements encoding.TextMarshaler so components
// serialize as their flattened form in CBOR and JSON.
func (c Component) MarshalText() ([]byte, error) {
	return []byte(c.Flatten()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value, mirroring MarshalText.
func (c *Component) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*c = Component{}
		return nil
	}
	parsed, err := ParseComponent(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ValidatePackageName checks that the name is a lowercase dotted
// identifier like "io.parallax.hud": one or more dot-separated
// segments, each starting with a letter and containing only lowercase
// letters, digits, and hyphens.
func ValidatePackageName(pkg string) error {
	if pkg == "" {
		return fmt.Errorf("package name is empty")
	}
	for _, segment := range strings.Split(pkg, ".") {
		if segment == "" {
			return fmt.Errorf("package name %q has an empty segment", pkg)
		}
		if segment[0] < 'a' || segment[0] > 'z' {
			return fmt.Errorf("package name %q: segment %q must start with a lowercase letter", pkg, segment)
		}
		for _, r := range segment {
			if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
				return fmt.Errorf("package name %q: invalid character %q", pkg, r)
			}
		}
	}
	return nil
}

// validateClassName checks that the name is a plausible exported
// class identifier: starts with a letter or underscore, contains only
// letters, digits, underscores, and dots.
func validateClassName(class string) error {
	if class == "" {
		return fmt.Errorf("class name is empty")
	}
	first := rune(class[0])
	if !isClassLetter(first) {
		return fmt.Errorf("class name %q must start with a letter or underscore", class)
	}
	for _, r := range class {
		if !isClassLetter(r) && (r < '0' || r > '9') && r != '.' {
			return fmt.Errorf("class name %q: invalid character %q", class, r)
		}
	}
	return nil
}

func isClassLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}
