// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides small helpers for unix socket connection
// handling shared by the daemon and the listener binding.
package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IsExpectedCloseError reports whether err is a normal connection
// termination: EOF, closed connection, broken pipe, or connection
// reset. These occur whenever one side of a socket hangs up while the
// other has a read or write in flight, which is the ordinary way
// listener services and mode subscribers disconnect.
//
// Peers that full-close (closing the entire connection rather than
// half-close via CloseWrite) produce ECONNRESET and EPIPE instead of
// EOF on the surviving side. All four are expected and should not be
// logged as errors.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
