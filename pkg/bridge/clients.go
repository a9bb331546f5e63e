// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"

	"maunium.net/go/mautrix/id"
)

// LocalClient is the local-network (Matrix) side of the bridge. The
// production implementation lives in the matrixlocal package; tests inject
// fakes.
type LocalClient interface {
	// CreateRoom materializes a native room with the given invitees and
	// returns its ID. direct marks the room as a two-party conversation.
	CreateRoom(ctx context.Context, invitees []id.UserID, name string, direct bool) (id.RoomID, error)
	// SendText posts a text message into the room as the bridge bot.
	SendText(ctx context.Context, roomID id.RoomID, text string) error
	// SendTextAs posts a text message into the room as the given ghost.
	SendTextAs(ctx context.Context, sender id.UserID, roomID id.RoomID, text string) error
	// JoinedMembers returns the user IDs currently joined to the room.
	JoinedMembers(ctx context.Context, roomID id.RoomID) ([]id.UserID, error)
	// AcceptInvite joins the bridge bot into the room it was invited to.
	AcceptInvite(ctx context.Context, roomID id.RoomID) error
	// SetGhostProfile updates the displayname of a bridge-owned ghost.
	SetGhostProfile(ctx context.Context, ghost id.UserID, displayname string) error

	BotUserID() id.UserID
	IsBot(userID id.UserID) bool
	IsGhost(userID id.UserID) bool
}

// RemoteSession is one consumer's authenticated connection to the remote
// network. Sessions are owned by the SessionRegistry and looked up by
// consumer MXID, never traversed by identity.
type RemoteSession interface {
	// SelfID returns the remote identity the session is logged in as.
	SelfID() RemoteUserID
	// IsLoggedOn reports whether the session is currently authenticated.
	IsLoggedOn() bool
	// Contact loads a remote contact by ID.
	Contact(ctx context.Context, userID RemoteUserID) (RemoteContact, error)
	// Room loads a remote group conversation by ID.
	Room(ctx context.Context, roomID RemoteRoomID) (RemoteRoom, error)
}

// RemoteContact is a handle to an individual on the remote network.
type RemoteContact interface {
	ID() RemoteUserID
	Name() string
	SendText(ctx context.Context, text string) error
}

// RemoteRoom is a handle to a group conversation on the remote network.
type RemoteRoom interface {
	ID() RemoteRoomID
	Name() string
	SendText(ctx context.Context, text string) error
	MemberIDs(ctx context.Context) ([]RemoteUserID, error)
}

// DialogContext carries enough state for a dialog flow to resume where the
// triggering event left off.
type DialogContext struct {
	ConsumerID id.UserID
	RoomID     id.RoomID
	Body       string
}

// DialogManager runs stateful conversational flows. Invocations are
// fire-and-forget from the router's perspective: a returned error is logged
// at the dispatch boundary and does not affect routing.
type DialogManager interface {
	StartEnableFlow(ctx context.Context, dctx DialogContext) error
	StartSetupFlow(ctx context.Context, dctx DialogContext) error
	StartLoginFlow(ctx context.Context, dctx DialogContext) error
}
