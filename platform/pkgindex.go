// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"

	"github.com/parallax-foundation/parallax/lib/ref"
	"github.com/parallax-foundation/parallax/vr"
)

// payloadDomainKey is the BLAKE3 keyed-hash domain for package
// payload digests. Fixed constant; changing it invalidates every
// digest recorded in existing manifests. The bytes are the ASCII
// domain name zero-padded to 32 bytes so the key is readable in hex
// dumps.
var payloadDomainKey = [32]byte{
	'p', 'a', 'r', 'a', 'l', 'l', 'a', 'x', '.', 'p', 'a', 'c', 'k', 'a', 'g', 'e',
	'.', 'p', 'a', 'y', 'l', 'o', 'a', 'd', 0, 0, 0, 0, 0, 0, 0, 0,
}

// manifestService is one service class a package declares.
type manifestService struct {
	Class string `json:"class"`

	// VrListener marks the class as implementing the VR listener
	// role.
	VrListener bool `json:"vr_listener"`

	// BindPermission reports whether the class requires the VR
	// listener binding permission. A VR listener without it is
	// unsafe to bind.
	BindPermission bool `json:"bind_permission"`

	// NotificationListener marks the class as a notification
	// listener service.
	NotificationListener bool `json:"notification_listener"`
}

// manifestPackage is one installed package in the manifest.
type manifestPackage struct {
	Name string `json:"name"`

	// System claims system origin. The claim only stands if the
	// payload digest verifies.
	System bool `json:"system"`

	// Payload is the package image path, relative to the manifest
	// file. Required for system packages.
	Payload string `json:"payload"`

	// PayloadDigest is the hex BLAKE3 keyed digest of the payload.
	PayloadDigest string `json:"payload_digest"`

	Services []manifestService `json:"services"`
}

type manifest struct {
	Packages []manifestPackage `json:"packages"`
}

// PackageIndex serves installed-package lookups from a JSONC
// manifest. System-origin claims are verified against the payload
// digest at load time: a package whose payload is missing or does
// not match its recorded digest is demoted to non-system, which in
// turn blocks implied permission grants for it.
type PackageIndex struct {
	logger *slog.Logger
	path   string

	mu             sync.RWMutex
	packages       map[string]manifestPackage
	systemVerified map[string]bool
	changeHook     func()
}

// NewPackageIndex loads the manifest at path. The manifest may use
// JSONC comments and trailing commas.
func NewPackageIndex(path string, logger *slog.Logger) (*PackageIndex, error) {
	index := &PackageIndex{logger: logger, path: path}
	if err := index.Reload(); err != nil {
		return nil, err
	}
	return index, nil
}

// SetChangeHook registers a function invoked after every successful
// Reload. The coordinator uses it to re-validate the bound listener
// when the package set changes.
func (x *PackageIndex) SetChangeHook(hook func()) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.changeHook = hook
}

// Reload re-reads the manifest and re-verifies payload digests. On
// parse failure the previous contents stay in effect.
func (x *PackageIndex) Reload() error {
	data, err := os.ReadFile(x.path)
	if err != nil {
		return fmt.Errorf("reading package manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(jsonc.ToJSON(data), &m); err != nil {
		return fmt.Errorf("parsing package manifest %s: %w", x.path, err)
	}

	packages := make(map[string]manifestPackage, len(m.Packages))
	verified := make(map[string]bool)
	for _, pkg := range m.Packages {
		if err := ref.ValidatePackageName(pkg.Name); err != nil {
			return fmt.Errorf("package manifest %s: %w", x.path, err)
		}
		if _, dup := packages[pkg.Name]; dup {
			return fmt.Errorf("package manifest %s: duplicate package %q", x.path, pkg.Name)
		}
		packages[pkg.Name] = pkg
		if pkg.System {
			verified[pkg.Name] = x.verifyPayload(pkg)
		}
	}

	x.mu.Lock()
	x.packages = packages
	x.systemVerified = verified
	hook := x.changeHook
	x.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

// verifyPayload checks the recorded digest against the payload file.
func (x *PackageIndex) verifyPayload(pkg manifestPackage) bool {
	if pkg.Payload == "" || pkg.PayloadDigest == "" {
		x.logger.Warn("system package has no payload digest, demoting to non-system",
			"package", pkg.Name)
		return false
	}
	payloadPath := pkg.Payload
	if !filepath.IsAbs(payloadPath) {
		payloadPath = filepath.Join(filepath.Dir(x.path), payloadPath)
	}
	data, err := os.ReadFile(payloadPath)
	if err != nil {
		x.logger.Warn("cannot read system package payload, demoting to non-system",
			"package", pkg.Name,
			"payload", payloadPath,
			"error", err)
		return false
	}
	if got := PayloadDigest(data); got != pkg.PayloadDigest {
		x.logger.Warn("system package payload digest mismatch, demoting to non-system",
			"package", pkg.Name,
			"payload", payloadPath)
		return false
	}
	return true
}

// PayloadDigest computes the hex payload-domain BLAKE3 digest of a
// package image, as recorded in the manifest.
func PayloadDigest(data []byte) string {
	hasher, err := blake3.NewKeyed(payloadDomainKey[:])
	if err != nil {
		panic("platform: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}

// AppInfo returns package metadata for the grant logic. SystemOrigin
// is only true for packages whose payload digest verified.
func (x *PackageIndex) AppInfo(pkg string) (*vr.AppInfo, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	entry, ok := x.packages[pkg]
	if !ok {
		return nil, fmt.Errorf("package %q not installed", pkg)
	}
	return &vr.AppInfo{
		Package:      entry.Name,
		SystemOrigin: entry.System && x.systemVerified[pkg],
	}, nil
}

// NotificationListeners returns the notification listener components
// a package declares. The user argument is accepted for interface
// symmetry; declarations are not per-user.
func (x *PackageIndex) NotificationListeners(pkg string, user ref.UserID) ([]ref.Component, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	entry, ok := x.packages[pkg]
	if !ok {
		return nil, fmt.Errorf("package %q not installed", pkg)
	}
	var listeners []ref.Component
	for _, svc := range entry.Services {
		if !svc.NotificationListener {
			continue
		}
		component, err := ref.NewComponent(entry.Name, svc.Class)
		if err != nil {
			return nil, fmt.Errorf("package %q service: %w", pkg, err)
		}
		listeners = append(listeners, component)
	}
	return listeners, nil
}

// vrListenerService looks up a declared VR listener service class.
func (x *PackageIndex) vrListenerService(component ref.Component) (manifestService, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	entry, ok := x.packages[component.Package()]
	if !ok {
		return manifestService{}, false
	}
	for _, svc := range entry.Services {
		if svc.Class == component.Class() && svc.VrListener {
			return svc, true
		}
	}
	return manifestService{}, false
}
