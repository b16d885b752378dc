// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"log/slog"

	"github.com/parallax-foundation/parallax/lib/ref"
	"github.com/parallax-foundation/parallax/vr"
)

// Oracle decides VR listener validity from the package index and the
// user's enabled-listener settings. Implements vr.ComponentOracle.
type Oracle struct {
	logger   *slog.Logger
	index    *PackageIndex
	settings *SettingsStore
}

func NewOracle(index *PackageIndex, settings *SettingsStore, logger *slog.Logger) *Oracle {
	return &Oracle{logger: logger, index: index, settings: settings}
}

// Validity classifies a component: it must resolve to a declared VR
// listener service, be in the user's enabled set, and require the
// binding permission, in that order.
func (o *Oracle) Validity(component ref.Component, user ref.UserID) vr.Validity {
	if component.IsZero() {
		return vr.ValidityNotFound
	}
	svc, ok := o.index.vrListenerService(component)
	if !ok {
		return vr.ValidityNotFound
	}
	enabled, err := o.settings.VrListenerEnabled(component, user)
	if err != nil {
		o.logger.Error("could not read enabled vr listeners",
			"component", component,
			"user", user,
			"error", err)
		return vr.ValidityNotEnabled
	}
	if !enabled {
		return vr.ValidityNotEnabled
	}
	if !svc.BindPermission {
		return vr.ValidityNoPermission
	}
	return vr.ValidityOK
}
