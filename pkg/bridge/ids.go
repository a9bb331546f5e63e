// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"maunium.net/go/mautrix/id"
)

// RemoteUserID identifies an actor on the remote network. It is opaque to
// the bridge core and only meaningful together with the consumer that owns
// the remote session.
type RemoteUserID string

// RemoteRoomID identifies a group conversation on the remote network.
type RemoteRoomID string

// MakeRemoteUserID creates a RemoteUserID from a raw remote identifier.
func MakeRemoteUserID(raw string) RemoteUserID {
	return RemoteUserID(raw)
}

// ParseRemoteUserID extracts the raw remote identifier.
func ParseRemoteUserID(userID RemoteUserID) string {
	return string(userID)
}

// MakeRemoteRoomID creates a RemoteRoomID from a raw remote identifier.
func MakeRemoteRoomID(raw string) RemoteRoomID {
	return RemoteRoomID(raw)
}

// ParseRemoteRoomID extracts the raw remote identifier.
func ParseRemoteRoomID(roomID RemoteRoomID) string {
	return string(roomID)
}

// GhostMXID derives the Matrix user ID of the ghost that represents the
// given remote user. The remote identifier is encoded so that arbitrary
// remote IDs always produce a valid localpart.
func GhostMXID(prefix, domain string, remote RemoteUserID) id.UserID {
	localpart := prefix + id.EncodeUserLocalpart(string(remote))
	return id.NewUserID(localpart, domain)
}
