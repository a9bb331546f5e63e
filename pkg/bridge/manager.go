// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"maunium.net/go/mautrix/id"
)

// CorrelationManager is the bidirectional mapping engine between local and
// remote identities. Lookups are get-or-create: the first translation
// request for a remote entity mints the local counterpart and persists the
// correlation; records are never deleted.
//
// Get-or-create is serialized per (consumer, remote) key through a
// singleflight group, so concurrent events referencing the same
// not-yet-correlated entity result in exactly one creation. Late callers
// adopt the published result instead of minting duplicates.
type CorrelationManager struct {
	store    CorrelationStore
	local    LocalClient
	sessions *SessionRegistry
	config   *Config
	creates  singleflight.Group
	log      zerolog.Logger
}

func NewCorrelationManager(store CorrelationStore, local LocalClient, sessions *SessionRegistry, config *Config, log zerolog.Logger) *CorrelationManager {
	return &CorrelationManager{
		store:    store,
		local:    local,
		sessions: sessions,
		config:   config,
		log:      log.With().Str("component", "correlation_manager").Logger(),
	}
}

// RemoteSelf resolves the remote self-identity belonging to the session
// owned by the given local user.
func (m *CorrelationManager) RemoteSelf(localUser id.UserID) (RemoteUserID, error) {
	session, ok := m.sessions.Get(localUser)
	if !ok {
		return "", fmt.Errorf("no remote session for %s: %w", localUser, ErrNotFound)
	}
	return session.SelfID(), nil
}

// RemoteUserFor reads the user correlation attached to a local ghost.
func (m *CorrelationManager) RemoteUserFor(ctx context.Context, localUser id.UserID) (*UserCorrelation, error) {
	record, err := m.store.GetUser(ctx, localUser)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// LocalUserFor returns the local ghost representing the given remote user
// for the consumer, creating and persisting it on first use. When the
// remote user is the consumer's own remote identity, the consumer's real
// MXID is returned instead of a ghost. name, when non-empty, is used to
// set the freshly minted ghost's displayname.
func (m *CorrelationManager) LocalUserFor(ctx context.Context, consumer id.UserID, remote RemoteUserID, name string) (id.UserID, error) {
	if session, ok := m.sessions.Get(consumer); ok && session.SelfID() == remote {
		return consumer, nil
	}

	key := "user\x00" + string(consumer) + "\x00" + string(remote)
	v, err, _ := m.creates.Do(key, func() (any, error) {
		entries, err := m.store.QueryUsers(ctx, func(_ id.UserID, record *UserCorrelation) bool {
			return record.ConsumerID == consumer && record.RemoteUserID == remote
		})
		if err != nil {
			return nil, fmt.Errorf("query user correlations: %w", err)
		}
		switch len(entries) {
		case 0:
			// fall through to creation
		case 1:
			return entries[0].MXID, nil
		default:
			return nil, fmt.Errorf("%w: %d local users for consumer %s remote %s",
				ErrInvalidState, len(entries), consumer, remote)
		}

		ghost := GhostMXID(m.config.UsernamePrefix, m.config.HomeserverDomain, remote)
		record := &UserCorrelation{ConsumerID: consumer, RemoteUserID: remote}
		if err := m.store.PutUser(ctx, ghost, record); err != nil {
			return nil, fmt.Errorf("persist user correlation: %w", err)
		}
		m.log.Info().
			Str("consumer", string(consumer)).
			Str("remote_user", string(remote)).
			Str("ghost", string(ghost)).
			Msg("Created user correlation")

		if name != "" {
			displayname := m.config.FormatDisplayname(DisplaynameParams{ID: string(remote), Name: name})
			if err := m.local.SetGhostProfile(ctx, ghost, displayname); err != nil {
				m.log.Warn().Err(err).Str("ghost", string(ghost)).Msg("Failed to set ghost displayname")
			}
		}
		return ghost, nil
	})
	if err != nil {
		return "", err
	}
	return v.(id.UserID), nil
}

// RemoteRoomFor reads the group-room correlation of a local room. It fails
// with ErrNotFound when the room has no record at all and with
// ErrMissingCorrelation when the record carries no remote room reference.
func (m *CorrelationManager) RemoteRoomFor(ctx context.Context, localRoom id.RoomID) (id.UserID, RemoteRoomID, error) {
	record, err := m.store.GetRoom(ctx, localRoom)
	if err != nil {
		return "", "", err
	}
	if err := record.Validate(); err != nil {
		return "", "", err
	}
	if record.RemoteRoomID == "" {
		return "", "", fmt.Errorf("room %s has no remote room reference: %w", localRoom, ErrMissingCorrelation)
	}
	return record.ConsumerID, record.RemoteRoomID, nil
}

// LocalRoomForRemoteRoom returns the local group room correlated to the
// given remote room, creating it on first use. Creation invites the
// consumer plus a ghost for every remote room member, mapped through
// LocalUserFor.
func (m *CorrelationManager) LocalRoomForRemoteRoom(ctx context.Context, consumer id.UserID, room RemoteRoom) (id.RoomID, error) {
	key := "room\x00" + string(consumer) + "\x00" + string(room.ID())
	v, err, _ := m.creates.Do(key, func() (any, error) {
		entries, err := m.store.QueryRooms(ctx, func(_ id.RoomID, record *RoomCorrelation) bool {
			return record.ConsumerID == consumer && record.RemoteRoomID == room.ID()
		})
		if err != nil {
			return nil, fmt.Errorf("query room correlations: %w", err)
		}
		switch len(entries) {
		case 0:
			// fall through to creation
		case 1:
			return entries[0].RoomID, nil
		default:
			return nil, fmt.Errorf("%w: %d local rooms for consumer %s remote room %s",
				ErrInvalidState, len(entries), consumer, room.ID())
		}

		memberIDs, err := room.MemberIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("enumerate remote room members: %w", err)
		}
		invitees := []id.UserID{consumer}
		seen := map[id.UserID]struct{}{consumer: {}}
		for _, memberID := range memberIDs {
			localUser, err := m.LocalUserFor(ctx, consumer, memberID, "")
			if err != nil {
				return nil, fmt.Errorf("map remote member %s: %w", memberID, err)
			}
			if _, ok := seen[localUser]; ok {
				continue
			}
			seen[localUser] = struct{}{}
			invitees = append(invitees, localUser)
		}

		name := room.Name() + m.config.RoomNameSuffix
		localRoom, err := m.local.CreateRoom(ctx, invitees, name, false)
		if err != nil {
			return nil, fmt.Errorf("create local group room: %w", err)
		}
		record := &RoomCorrelation{ConsumerID: consumer, RemoteRoomID: room.ID()}
		if err := m.store.PutRoom(ctx, localRoom, record); err != nil {
			return nil, fmt.Errorf("persist room correlation: %w", err)
		}
		m.log.Info().
			Str("consumer", string(consumer)).
			Str("remote_room", string(room.ID())).
			Str("local_room", string(localRoom)).
			Int("invitees", len(invitees)).
			Msg("Created group room correlation")
		return localRoom, nil
	})
	if err != nil {
		return "", err
	}
	return v.(id.RoomID), nil
}

// LocalRoomForRemoteUser returns the local direct-message room between the
// consumer and the ghost of the given remote contact, creating both the
// ghost and the room on first use.
func (m *CorrelationManager) LocalRoomForRemoteUser(ctx context.Context, consumer id.UserID, contact RemoteContact) (id.RoomID, error) {
	key := "droom\x00" + string(consumer) + "\x00" + string(contact.ID())
	v, err, _ := m.creates.Do(key, func() (any, error) {
		peer, err := m.LocalUserFor(ctx, consumer, contact.ID(), contact.Name())
		if err != nil {
			return nil, err
		}
		return m.getOrCreateDirectRoom(ctx, consumer, peer, contact.Name())
	})
	if err != nil {
		return "", err
	}
	return v.(id.RoomID), nil
}

// DirectRoomWithBot returns the direct-message room between the consumer
// and the bridge bot, creating it on first use. It backs service notices
// and the dialog flows.
func (m *CorrelationManager) DirectRoomWithBot(ctx context.Context, consumer id.UserID) (id.RoomID, error) {
	key := "botdm\x00" + string(consumer)
	v, err, _ := m.creates.Do(key, func() (any, error) {
		return m.getOrCreateDirectRoom(ctx, consumer, m.local.BotUserID(), m.config.BotDisplayname)
	})
	if err != nil {
		return "", err
	}
	return v.(id.RoomID), nil
}

// getOrCreateDirectRoom looks up the DM room between consumer and peer,
// materializing it when absent. Callers hold the singleflight slot for the
// (consumer, peer source) key.
func (m *CorrelationManager) getOrCreateDirectRoom(ctx context.Context, consumer, peer id.UserID, name string) (id.RoomID, error) {
	entries, err := m.store.QueryRooms(ctx, func(_ id.RoomID, record *RoomCorrelation) bool {
		return record.ConsumerID == consumer && record.DirectPeerID == peer
	})
	if err != nil {
		return "", fmt.Errorf("query room correlations: %w", err)
	}
	switch len(entries) {
	case 0:
		// fall through to creation
	case 1:
		return entries[0].RoomID, nil
	default:
		return "", fmt.Errorf("%w: %d direct rooms for consumer %s peer %s",
			ErrInvalidState, len(entries), consumer, peer)
	}

	roomName := name + m.config.RoomNameSuffix
	localRoom, err := m.local.CreateRoom(ctx, []id.UserID{consumer, peer}, roomName, true)
	if err != nil {
		return "", fmt.Errorf("create local direct room: %w", err)
	}
	record := &RoomCorrelation{ConsumerID: consumer, DirectPeerID: peer}
	if err := m.store.PutRoom(ctx, localRoom, record); err != nil {
		return "", fmt.Errorf("persist room correlation: %w", err)
	}
	m.log.Info().
		Str("consumer", string(consumer)).
		Str("peer", string(peer)).
		Str("local_room", string(localRoom)).
		Msg("Created direct room correlation")
	return localRoom, nil
}

// IsDirectRoom reports whether the room carries a direct-message
// correlation. Rooms without any record are not direct.
func (m *CorrelationManager) IsDirectRoom(ctx context.Context, roomID id.RoomID) (bool, error) {
	record, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return record.IsDirect(), nil
}

// DirectPair resolves the (owner, counterpart) pair of a direct-message
// room. It fails with ErrMissingCorrelation when the room carries no
// direct-message data.
func (m *CorrelationManager) DirectPair(ctx context.Context, roomID id.RoomID) (owner, counterpart id.UserID, err error) {
	record, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		if isNotFound(err) {
			return "", "", fmt.Errorf("room %s: %w", roomID, ErrMissingCorrelation)
		}
		return "", "", err
	}
	if err := record.Validate(); err != nil {
		return "", "", err
	}
	if !record.IsDirect() {
		return "", "", fmt.Errorf("room %s has no direct-message data: %w", roomID, ErrMissingCorrelation)
	}
	return record.ConsumerID, record.DirectPeerID, nil
}

// SetDirectRoom merges direct-message data into the room's record without
// erasing unrelated fields. A consumer or peer that is already set to a
// different value is a defect.
func (m *CorrelationManager) SetDirectRoom(ctx context.Context, owner, counterpart id.UserID, roomID id.RoomID) error {
	record, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		if !isNotFound(err) {
			return err
		}
		record = &RoomCorrelation{}
	}
	if record.ConsumerID != "" && record.ConsumerID != owner {
		return fmt.Errorf("%w: room %s already owned by %s, cannot reassign to %s",
			ErrInvalidState, roomID, record.ConsumerID, owner)
	}
	if record.DirectPeerID != "" && record.DirectPeerID != counterpart {
		return fmt.Errorf("%w: room %s already paired with %s, cannot repair to %s",
			ErrInvalidState, roomID, record.DirectPeerID, counterpart)
	}
	record.ConsumerID = owner
	record.DirectPeerID = counterpart
	if err := m.store.PutRoom(ctx, roomID, record); err != nil {
		return fmt.Errorf("persist room correlation: %w", err)
	}
	m.log.Info().
		Str("owner", string(owner)).
		Str("counterpart", string(counterpart)).
		Str("local_room", string(roomID)).
		Msg("Registered direct room")
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
