// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/parallax-foundation/parallax/lib/clock"
	"github.com/parallax-foundation/parallax/lib/codec"
	"github.com/parallax-foundation/parallax/lib/ref"
	"github.com/parallax-foundation/parallax/lib/service"
	"github.com/parallax-foundation/parallax/lib/servicetoken"
	"github.com/parallax-foundation/parallax/lib/version"
	"github.com/parallax-foundation/parallax/platform"
	"github.com/parallax-foundation/parallax/vr"
)

// Grant actions gating the socket surface.
const (
	// grantAccess covers mode queries and the mode-change stream.
	grantAccess = "vr/access"

	// grantMode covers state transitions. Held by trusted platform
	// services (compositor, session manager), never by applications.
	grantMode = "vr/mode"

	// grantDump covers the diagnostic dump.
	grantDump = "vr/dump"
)

const streamWriteTimeout = 10 * time.Second

// vrService is the daemon's socket surface over the coordinator.
type vrService struct {
	logger    *slog.Logger
	manager   *vr.Manager
	index     *platform.PackageIndex
	clock     clock.Clock
	startedAt time.Time
}

func newVrService(manager *vr.Manager, index *platform.PackageIndex, clk clock.Clock, logger *slog.Logger) *vrService {
	return &vrService{
		logger:    logger,
		manager:   manager,
		index:     index,
		clock:     clk,
		startedAt: clk.Now(),
	}
}

func (s *vrService) register(server *service.SocketServer) {
	server.Handle("status", s.handleStatus)
	server.HandleAuth("get-mode-state", s.handleGetModeState)
	server.HandleAuth("set-vr-mode", s.handleSetVrMode)
	server.HandleAuth("is-current-listener", s.handleIsCurrentListener)
	server.HandleAuth("check-listener-validity", s.handleCheckListenerValidity)
	server.HandleAuth("notify-user-change", s.handleNotifyUserChange)
	server.HandleAuth("reload-packages", s.handleReloadPackages)
	server.HandleAuth("dump", s.handleDump)
	server.HandleAuthStream("register-listener", s.handleRegisterListener)
}

// requireGrant checks the token for a grant action. The error text
// reaches the caller verbatim.
func requireGrant(token *servicetoken.Token, action string) error {
	if !servicetoken.GrantsAllow(token.Grants, action, "") {
		return fmt.Errorf("access denied: missing grant for %s", action)
	}
	return nil
}

type statusResponse struct {
	Service       string  `cbor:"service"`
	Version       string  `cbor:"version"`
	UptimeSeconds float64 `cbor:"uptime_seconds"`
}

// handleStatus is unauthenticated liveness. It reveals only identity
// and uptime.
func (s *vrService) handleStatus(ctx context.Context, raw []byte) (any, error) {
	return statusResponse{
		Service:       "parallax-vrd",
		Version:       version.Short(),
		UptimeSeconds: s.clock.Now().Sub(s.startedAt).Seconds(),
	}, nil
}

type modeStateResponse struct {
	Enabled bool `cbor:"enabled"`
}

func (s *vrService) handleGetModeState(ctx context.Context, token *servicetoken.Token, raw []byte) (any, error) {
	if err := requireGrant(token, grantAccess); err != nil {
		return nil, err
	}
	return modeStateResponse{Enabled: s.manager.Mode()}, nil
}

type setVrModeRequest struct {
	Enabled bool           `cbor:"enabled"`
	Target  ref.Component  `cbor:"target"`
	User    int            `cbor:"user"`
	Calling *ref.Component `cbor:"calling,omitempty"`
}

type setVrModeResponse struct {
	// Valid reports whether the target was a bindable listener. The
	// mode flag takes the requested value either way.
	Valid   bool `cbor:"valid"`
	Enabled bool `cbor:"enabled"`
}

func (s *vrService) handleSetVrMode(ctx context.Context, token *servicetoken.Token, raw []byte) (any, error) {
	if err := requireGrant(token, grantMode); err != nil {
		return nil, err
	}
	var request setVrModeRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid set-vr-mode request: %w", err)
	}
	if request.Target.IsZero() {
		return nil, fmt.Errorf("target component is required")
	}
	user, err := ref.ParseUserID(request.User)
	if err != nil {
		return nil, err
	}
	valid := s.manager.SetMode(request.Enabled, request.Target, user, request.Calling)
	return setVrModeResponse{Valid: valid, Enabled: s.manager.Mode()}, nil
}

type isCurrentListenerRequest struct {
	Package string `cbor:"package"`
	User    int    `cbor:"user"`
}

type isCurrentListenerResponse struct {
	Current bool `cbor:"current"`
}

func (s *vrService) handleIsCurrentListener(ctx context.Context, token *servicetoken.Token, raw []byte) (any, error) {
	if err := requireGrant(token, grantMode); err != nil {
		return nil, err
	}
	var request isCurrentListenerRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid is-current-listener request: %w", err)
	}
	if err := ref.ValidatePackageName(request.Package); err != nil {
		return nil, err
	}
	user, err := ref.ParseUserID(request.User)
	if err != nil {
		return nil, err
	}
	return isCurrentListenerResponse{
		Current: s.manager.IsCurrentListener(request.Package, user),
	}, nil
}

type checkValidityRequest struct {
	Component ref.Component `cbor:"component"`
	User      int           `cbor:"user"`
}

type checkValidityResponse struct {
	Validity string `cbor:"validity"`
	OK       bool   `cbor:"ok"`
}

func (s *vrService) handleCheckListenerValidity(ctx context.Context, token *servicetoken.Token, raw []byte) (any, error) {
	if err := requireGrant(token, grantMode); err != nil {
		return nil, err
	}
	var request checkValidityRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid check-listener-validity request: %w", err)
	}
	if request.Component.IsZero() {
		return nil, fmt.Errorf("component is required")
	}
	user, err := ref.ParseUserID(request.User)
	if err != nil {
		return nil, err
	}
	validity := s.manager.CheckListenerValidity(request.Component, user)
	return checkValidityResponse{
		Validity: validity.String(),
		OK:       validity == vr.ValidityOK,
	}, nil
}

type notifyUserChangeRequest struct {
	User int `cbor:"user"`
}

func (s *vrService) handleNotifyUserChange(ctx context.Context, token *servicetoken.Token, raw []byte) (any, error) {
	if err := requireGrant(token, grantMode); err != nil {
		return nil, err
	}
	var request notifyUserChangeRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid notify-user-change request: %w", err)
	}
	user, err := ref.ParseUserID(request.User)
	if err != nil {
		return nil, err
	}
	s.manager.NotifyUserChange(user)
	return nil, nil
}

func (s *vrService) handleReloadPackages(ctx context.Context, token *servicetoken.Token, raw []byte) (any, error) {
	if err := requireGrant(token, grantMode); err != nil {
		return nil, err
	}
	if err := s.index.Reload(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *vrService) handleDump(ctx context.Context, token *servicetoken.Token, raw []byte) (any, error) {
	if err := requireGrant(token, grantDump); err != nil {
		return nil, err
	}
	return s.manager.DumpState(), nil
}

// modeFrame is one frame on the register-listener stream.
type modeFrame struct {
	Event   string `cbor:"event"`
	Enabled bool   `cbor:"enabled"`
}

// streamCallback writes mode changes to a stream connection. The
// open stream is the registration: stream end unregisters. The first
// frame on the wire is always the snapshot written by prime: changes
// delivered between registration and prime are buffered, keeping only
// the latest, and flushed after the snapshot if they still differ
// from it. Frame writes are serialized because the broadcaster and
// the priming goroutine race.
type streamCallback struct {
	conn net.Conn

	mu      sync.Mutex
	primed  bool
	pending *bool
}

func (c *streamCallback) ModeChanged(enabled bool) error {
	c.mu.Lock()
	if !c.primed {
		value := enabled
		c.pending = &value
		c.mu.Unlock()
		return nil
	}
	defer c.mu.Unlock()
	return c.writeFrameLocked(enabled)
}

// prime writes the snapshot frame and releases any change buffered
// while the stream was unprimed.
func (c *streamCallback) prime(current bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.primed = true
	if err := c.writeFrameLocked(current); err != nil {
		return err
	}
	if c.pending != nil && *c.pending != current {
		if err := c.writeFrameLocked(*c.pending); err != nil {
			return err
		}
	}
	c.pending = nil
	return nil
}

func (c *streamCallback) writeFrameLocked(enabled bool) error {
	payload, err := codec.Marshal(modeFrame{Event: "mode-changed", Enabled: enabled})
	if err != nil {
		return fmt.Errorf("encoding mode frame: %w", err)
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if _, err := c.conn.Write(payload); err != nil {
		return fmt.Errorf("writing mode frame: %w", err)
	}
	return nil
}

// handleRegisterListener registers the stream as a mode-change
// callback. The first frame snapshots the current mode; subsequent
// frames carry changes. The callback stays registered until the peer
// closes the stream or the daemon shuts down.
func (s *vrService) handleRegisterListener(ctx context.Context, token *servicetoken.Token, raw []byte, conn net.Conn) {
	if err := requireGrant(token, grantAccess); err != nil {
		s.writeStreamError(conn, err.Error())
		return
	}

	callback := &streamCallback{conn: conn}
	s.manager.RegisterCallback(callback)
	defer s.manager.UnregisterCallback(callback)

	if err := callback.prime(s.manager.Mode()); err != nil {
		s.logger.Debug("mode stream initial frame failed", "error", err)
		return
	}

	// Block until the peer hangs up or the server shuts down.
	// Subscribers never send data after the request, so any read
	// result ends the stream.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		buf := make([]byte, 1)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()
	select {
	case <-disconnected:
	case <-ctx.Done():
	}
}

func (s *vrService) writeStreamError(conn net.Conn, message string) {
	payload, err := codec.Marshal(service.Response{OK: false, Error: message})
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	conn.Write(payload)
}
