// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/parallax-foundation/parallax/lib/codec"
	"github.com/parallax-foundation/parallax/lib/netutil"
	"github.com/parallax-foundation/parallax/lib/servicetoken"
)

// ActionFunc processes a socket request for a specific action. The
// raw parameter is the full CBOR request (including the "action"
// field); the handler decodes action-specific fields from it.
//
// Return a value to include in the success response, or an error for
// a failure response. If the returned value is nil, the response
// contains only {ok: true}; otherwise the value is marshaled as CBOR
// and placed in the response's "data" field.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// AuthActionFunc is an ActionFunc that additionally receives the
// verified service token of the caller.
type AuthActionFunc func(ctx context.Context, token *servicetoken.Token, raw []byte) (any, error)

// StreamFunc handles a long-lived stream action. Unlike ActionFunc,
// the handler owns the connection for its lifetime: it writes CBOR
// frames directly and returns when the stream ends. The server closes
// the connection after the handler returns.
type StreamFunc func(ctx context.Context, token *servicetoken.Token, raw []byte, conn net.Conn)

// Response is the wire-format envelope for request-response actions.
// Handlers return a result value (or nil) and an error; the server
// wraps these into a Response before encoding.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// AuthConfig holds the verification material for authenticated
// actions. Required when any handler is registered with HandleAuth or
// HandleAuthStream.
type AuthConfig struct {
	// PublicKey verifies token signatures.
	PublicKey []byte

	// Audience is this service's name; tokens minted for a
	// different audience are rejected.
	Audience string

	// Now returns the current time for expiry checks. Defaults to
	// time.Now when nil.
	Now func() time.Time
}

// SocketServer serves a CBOR request-response protocol on a Unix
// socket. A plain connection handles exactly one request-response
// cycle; stream actions keep the connection open and push frames
// until either side ends it.
//
// Actions are registered with Handle, HandleAuth, or HandleAuthStream
// before calling Serve. Unknown actions receive an error response.
type SocketServer struct {
	socketPath string
	logger     *slog.Logger
	auth       *AuthConfig

	handlers       map[string]ActionFunc
	streamHandlers map[string]StreamFunc

	// sameUIDPeerOnly restricts connections to peers with the
	// server's own UID, checked via SO_PEERCRED.
	sameUIDPeerOnly bool

	// activeConnections tracks in-flight handlers for graceful
	// shutdown. Serve waits for all of them before returning.
	activeConnections sync.WaitGroup
}

// NewSocketServer creates a server that will listen on socketPath.
// auth may be nil when only unauthenticated actions are registered.
func NewSocketServer(socketPath string, logger *slog.Logger, auth *AuthConfig) *SocketServer {
	return &SocketServer{
		socketPath:     socketPath,
		logger:         logger,
		auth:           auth,
		handlers:       make(map[string]ActionFunc),
		streamHandlers: make(map[string]StreamFunc),
	}
}

// RequireSameUIDPeer restricts the socket to clients running under
// the server's own UID. Must be called before Serve.
func (s *SocketServer) RequireSameUIDPeer() {
	s.sameUIDPeerOnly = true
}

// Handle registers an unauthenticated handler for the given action
// name. Panics on duplicate registration.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	s.checkDuplicate(action)
	s.handlers[action] = handler
}

// HandleAuth registers a handler that requires a valid service token.
// Panics if the server was constructed without an AuthConfig.
func (s *SocketServer) HandleAuth(action string, handler AuthActionFunc) {
	if s.auth == nil {
		panic("service.SocketServer: HandleAuth requires an AuthConfig")
	}
	s.checkDuplicate(action)
	s.handlers[action] = func(ctx context.Context, raw []byte) (any, error) {
		token, err := s.authenticate(raw)
		if err != nil {
			return nil, err
		}
		return handler(ctx, token, raw)
	}
}

// HandleAuthStream registers a stream handler that requires a valid
// service token. Panics if the server was constructed without an
// AuthConfig.
func (s *SocketServer) HandleAuthStream(action string, handler StreamFunc) {
	if s.auth == nil {
		panic("service.SocketServer: HandleAuthStream requires an AuthConfig")
	}
	s.checkDuplicate(action)
	s.streamHandlers[action] = handler
}

func (s *SocketServer) checkDuplicate(action string) {
	_, plain := s.handlers[action]
	_, stream := s.streamHandlers[action]
	if plain || stream {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
}

// Serve starts accepting connections on the Unix socket and
// dispatches requests to registered action handlers. Blocks until
// ctx is cancelled, then stops accepting new connections and waits
// for active handlers to complete.
//
// Any existing socket file at the configured path is removed before
// listening. The socket file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("socket server listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// readTimeout is how long we wait for the client to send its request.
// A well-behaved client sends the request immediately after
// connecting.
const readTimeout = 30 * time.Second

// writeTimeout is how long we wait for a response to be written.
const writeTimeout = 10 * time.Second

// maxRequestSize is the maximum size of a single CBOR request. The
// largest vrmanager request is a register-listener frame well under
// a kilobyte; 1 MB leaves headroom without allowing memory abuse.
const maxRequestSize = 1024 * 1024

// handleConnection processes one request. Request-response actions
// complete one cycle; stream actions hand the connection to their
// handler.
func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if s.sameUIDPeerOnly {
		if err := checkSameUIDPeer(conn); err != nil {
			s.logger.Warn("rejecting peer", "error", err)
			s.writeError(conn, "permission denied")
			return
		}
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	// Decode one CBOR value from the connection. CBOR is self-
	// delimiting so no framing protocol is needed. LimitReader
	// prevents a malicious client from exhausting memory.
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if netutil.IsExpectedCloseError(err) {
			// Client connected but hung up without a request.
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	// Extract the action field for routing.
	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, "missing required field: action")
		return
	}

	if streamHandler, exists := s.streamHandlers[header.Action]; exists {
		token, err := s.authenticate(raw)
		if err != nil {
			s.writeError(conn, err.Error())
			return
		}
		// Stream handlers own the connection; no read deadline.
		conn.SetReadDeadline(time.Time{})
		streamHandler(ctx, token, []byte(raw), conn)
		return
	}

	handler, exists := s.handlers[header.Action]
	if !exists {
		s.writeError(conn, fmt.Sprintf("unknown action %q", header.Action))
		return
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action failed",
			"action", header.Action,
			"error", err,
		)
		s.writeError(conn, err.Error())
		return
	}

	s.writeSuccess(conn, result)
}

// authenticate extracts and verifies the "token" field of a request.
func (s *SocketServer) authenticate(raw []byte) (*servicetoken.Token, error) {
	var credential struct {
		Token []byte `cbor:"token"`
	}
	if err := codec.Unmarshal(raw, &credential); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if len(credential.Token) == 0 {
		return nil, errors.New("missing token field")
	}

	now := time.Now()
	if s.auth.Now != nil {
		now = s.auth.Now()
	}
	token, err := servicetoken.VerifyForServiceAt(s.auth.PublicKey, credential.Token, s.auth.Audience, now)
	if err != nil {
		return nil, fmt.Errorf("token rejected: %w", err)
	}
	return token, nil
}

// writeError sends a failure response: {ok: false, error: "..."}.
// Write failures are logged at debug level — the connection is
// closing regardless.
func (s *SocketServer) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{
		OK:    false,
		Error: message,
	}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

// writeSuccess sends a success response. If result is nil, the
// response is {ok: true}; otherwise the value is marshaled as CBOR
// and placed in the "data" field.
func (s *SocketServer) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}

	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}

	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
