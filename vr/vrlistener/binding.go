// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// Package vrlistener connects the VR coordinator to a listener
// service over the service's Unix socket. Each binding owns one
// reconnect loop: dial, deliver coalesced events, watch for the
// peer dropping, back off, dial again. The loop runs until the
// coordinator disconnects the binding; a binding is never reused
// after that.
package vrlistener

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/parallax-foundation/parallax/lib/clock"
	"github.com/parallax-foundation/parallax/lib/codec"
	"github.com/parallax-foundation/parallax/lib/netutil"
	"github.com/parallax-foundation/parallax/lib/ref"
	"github.com/parallax-foundation/parallax/vr"
)

const (
	dialTimeout    = 5 * time.Second
	writeTimeout   = 10 * time.Second
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Factory creates bindings rooted at a listener socket directory.
// Listener services listen at <dir>/<user>/<package>.sock.
type Factory struct {
	socketDir string
	logger    *slog.Logger
	clock     clock.Clock
}

func NewFactory(socketDir string, logger *slog.Logger, clk clock.Clock) *Factory {
	return &Factory{socketDir: socketDir, logger: logger, clock: clk}
}

// New creates an unconnected binding for the component. Satisfies
// vr.BindingFactory.
func (f *Factory) New(component ref.Component, user ref.UserID) vr.BindingHandle {
	return &Binding{
		component:  component,
		user:       user,
		socketPath: SocketPath(f.socketDir, component, user),
		logger: f.logger.With(
			"component", component,
			"user", user),
		clock: f.clock,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// SocketPath returns the socket a listener service must listen on to
// receive the binding for the given user.
func SocketPath(socketDir string, component ref.Component, user ref.UserID) string {
	return filepath.Join(socketDir, user.String(), component.Package()+".sock")
}

// eventFrame is the wire form of one delivery to the listener
// service.
type eventFrame struct {
	Event            string        `cbor:"event"`
	FocusedComponent ref.Component `cbor:"focused_component"`
}

// Binding is one connection attempt lifecycle for a listener
// service. Implements vr.BindingHandle.
type Binding struct {
	component  ref.Component
	user       ref.UserID
	socketPath string
	logger     *slog.Logger
	clock      clock.Clock

	stop chan struct{}
	done chan struct{}

	mu      sync.Mutex
	conn    net.Conn
	pending *vr.Event
	stopped bool
}

// Connect starts the reconnect loop. The connection is established
// asynchronously; dial failures are retried with exponential backoff
// and are not reported here.
func (b *Binding) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return errors.New("binding already disconnected")
	}
	go b.run()
	return nil
}

// Disconnect permanently stops the binding, closing any live
// connection, and waits for the reconnect loop to exit.
func (b *Binding) Disconnect() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	close(b.stop)
	if b.conn != nil {
		b.conn.Close()
	}
	b.mu.Unlock()
	<-b.done
}

func (b *Binding) Matches(component ref.Component, user ref.UserID) bool {
	return b.component == component && b.user == user
}

func (b *Binding) Component() ref.Component { return b.component }
func (b *Binding) User() ref.UserID         { return b.user }

// DeliverEvent sends a focus event to the listener service. While
// disconnected events coalesce: only the most recent one is sent
// once the connection comes up.
func (b *Binding) DeliverEvent(event vr.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	if b.conn == nil {
		b.pending = &event
		return
	}
	if err := writeFrame(b.conn, eventFrame{
		Event:            "focus",
		FocusedComponent: event.FocusedComponent,
	}); err != nil {
		if netutil.IsExpectedCloseError(err) {
			b.logger.Debug("listener service hung up, reconnecting")
		} else {
			b.logger.Warn("event delivery failed, reconnecting", "error", err)
		}
		b.pending = &event
		b.conn.Close()
		b.conn = nil
	}
}

func (b *Binding) run() {
	defer close(b.done)
	backoff := initialBackoff
	for {
		conn, err := net.DialTimeout("unix", b.socketPath, dialTimeout)
		if err != nil {
			select {
			case <-b.stop:
				return
			case <-b.clock.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff
		if !b.attach(conn) {
			conn.Close()
			return
		}
		b.logger.Info("vr listener service connected")

		awaitClose(conn)
		b.detach(conn)
		select {
		case <-b.stop:
			return
		default:
		}
		b.logger.Info("vr listener service connection lost, reconnecting")
		select {
		case <-b.stop:
			return
		case <-b.clock.After(initialBackoff):
		}
	}
}

// attach installs the live connection and flushes the coalesced
// pending event. Returns false if the binding stopped while dialing.
func (b *Binding) attach(conn net.Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return false
	}
	b.conn = conn
	if b.pending != nil {
		event := *b.pending
		b.pending = nil
		if err := writeFrame(conn, eventFrame{
			Event:            "focus",
			FocusedComponent: event.FocusedComponent,
		}); err != nil {
			b.logger.Warn("pending event delivery failed", "error", err)
			b.pending = &event
			b.conn = nil
			conn.Close()
		}
	}
	return true
}

func (b *Binding) detach(conn net.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	conn.Close()
	if b.conn == conn {
		b.conn = nil
	}
}

// awaitClose blocks until the peer closes the connection or the
// binding closes it from under us. Listener services never send
// data back, so any read result means the connection is done.
func awaitClose(conn net.Conn) {
	buf := make([]byte, 1)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}

func writeFrame(conn net.Conn, frame eventFrame) error {
	payload, err := codec.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encoding event frame: %w", err)
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("writing event frame: %w", err)
	}
	return nil
}
