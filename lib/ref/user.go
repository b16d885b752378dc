// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// UserID identifies a platform user. User 0 is the primary user;
// additional users get sequential non-negative identifiers. Negative
// values are never valid.
type UserID int

// PrimaryUser is the first user created on a device.
const PrimaryUser UserID = 0

// ParseUserID validates a raw integer as a user identifier.
func ParseUserID(raw int) (UserID, error) {
	if raw < 0 {
		return 0, fmt.Errorf("user id %d: must be non-negative", raw)
	}
	return UserID(raw), nil
}

// String returns the canonical "user-N" form used in file names and
// log output.
func (u UserID) String() string {
	return fmt.Sprintf("user-%d", int(u))
}
