// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// checkSameUIDPeer verifies via SO_PEERCRED that the connecting peer
// runs under the server's own UID. Root peers are accepted as well —
// a root client could read the socket's backing credentials anyway.
func checkSameUIDPeer(conn net.Conn) error {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return fmt.Errorf("peer check: not a unix connection")
	}

	rawConn, err := unixConn.SyscallConn()
	if err != nil {
		return fmt.Errorf("peer check: %w", err)
	}

	var credentials *unix.Ucred
	var credentialsErr error
	controlErr := rawConn.Control(func(fd uintptr) {
		credentials, credentialsErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if controlErr != nil {
		return fmt.Errorf("peer check: %w", controlErr)
	}
	if credentialsErr != nil {
		return fmt.Errorf("peer check: reading SO_PEERCRED: %w", credentialsErr)
	}

	ourUID := uint32(os.Getuid())
	if credentials.Uid != ourUID && credentials.Uid != 0 {
		return fmt.Errorf("peer uid %d does not match server uid %d", credentials.Uid, ourUID)
	}
	return nil
}
