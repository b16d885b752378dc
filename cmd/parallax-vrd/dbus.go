// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

const (
	dbusName       = "io.parallax.VrManager"
	dbusObjectPath = dbus.ObjectPath("/io/parallax/VrManager")
	dbusSignalName = "io.parallax.VrManager.ModeChanged"
)

// dbusAnnouncer republishes mode changes as a D-Bus signal so
// desktop components that already sit on the session bus do not need
// a service token and socket connection just to follow the flag.
// Registered as one more coordinator callback.
type dbusAnnouncer struct {
	logger *slog.Logger
	conn   *dbus.Conn
}

func newDBusAnnouncer(logger *slog.Logger) (*dbusAnnouncer, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to session bus: %w", err)
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("requesting bus name %s: %w", dbusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("bus name %s already owned", dbusName)
	}
	return &dbusAnnouncer{logger: logger, conn: conn}, nil
}

// ModeChanged implements vr.StateCallback.
func (a *dbusAnnouncer) ModeChanged(enabled bool) error {
	if err := a.conn.Emit(dbusObjectPath, dbusSignalName, enabled); err != nil {
		return fmt.Errorf("emitting %s: %w", dbusSignalName, err)
	}
	return nil
}

func (a *dbusAnnouncer) Close() {
	a.conn.Close()
}
