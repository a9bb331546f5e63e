// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"fmt"
	"sync"

	"maunium.net/go/mautrix/id"
)

// UserCorrelation links a local ghost user to the remote contact it
// represents, scoped to the consumer whose session can reach that contact.
// Once persisted, neither field is ever changed.
type UserCorrelation struct {
	ConsumerID   id.UserID    `json:"consumer_mxid"`
	RemoteUserID RemoteUserID `json:"remote_user_id"`
}

// RoomCorrelation links a local room to its remote counterpart. Exactly one
// of RemoteRoomID (group room) or DirectPeerID (direct-message room) is set
// once the room is in use. ConsumerID and an already-set reference are never
// changed; updates only ever add fields.
type RoomCorrelation struct {
	ConsumerID   id.UserID    `json:"consumer_mxid"`
	RemoteRoomID RemoteRoomID `json:"remote_room_id,omitempty"`
	DirectPeerID id.UserID    `json:"direct_peer_mxid,omitempty"`
}

// IsDirect reports whether the correlation describes a direct-message room.
func (rc *RoomCorrelation) IsDirect() bool {
	return rc.DirectPeerID != ""
}

// Validate checks the one-of constraint on the remote reference.
func (rc *RoomCorrelation) Validate() error {
	if rc.RemoteRoomID != "" && rc.DirectPeerID != "" {
		return fmt.Errorf("%w: room correlation has both remote room %q and direct peer %q",
			ErrInvalidState, rc.RemoteRoomID, rc.DirectPeerID)
	}
	return nil
}

// UserEntry is one result of a user correlation query.
type UserEntry struct {
	MXID   id.UserID
	Record *UserCorrelation
}

// RoomEntry is one result of a room correlation query.
type RoomEntry struct {
	RoomID id.RoomID
	Record *RoomCorrelation
}

// CorrelationStore persists correlation records keyed by local identity.
// Writers must treat records as merge-only: a Put must never erase fields
// set by a previous writer unless the caller read and carried them forward.
//
// Get methods return ErrNotFound (wrapped) when no record exists.
type CorrelationStore interface {
	GetUser(ctx context.Context, mxid id.UserID) (*UserCorrelation, error)
	PutUser(ctx context.Context, mxid id.UserID, record *UserCorrelation) error
	QueryUsers(ctx context.Context, match func(id.UserID, *UserCorrelation) bool) ([]UserEntry, error)

	GetRoom(ctx context.Context, roomID id.RoomID) (*RoomCorrelation, error)
	PutRoom(ctx context.Context, roomID id.RoomID, record *RoomCorrelation) error
	QueryRooms(ctx context.Context, match func(id.RoomID, *RoomCorrelation) bool) ([]RoomEntry, error)
}

// MemoryStore is a CorrelationStore held entirely in memory. It backs tests
// and single-run deployments; persistent setups use the sqlstore package.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[id.UserID]UserCorrelation
	rooms map[id.RoomID]RoomCorrelation
}

var _ CorrelationStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[id.UserID]UserCorrelation),
		rooms: make(map[id.RoomID]RoomCorrelation),
	}
}

func (s *MemoryStore) GetUser(_ context.Context, mxid id.UserID) (*UserCorrelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.users[mxid]
	if !ok {
		return nil, fmt.Errorf("user correlation for %s: %w", mxid, ErrNotFound)
	}
	return &record, nil
}

func (s *MemoryStore) PutUser(_ context.Context, mxid id.UserID, record *UserCorrelation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[mxid] = *record
	return nil
}

func (s *MemoryStore) QueryUsers(_ context.Context, match func(id.UserID, *UserCorrelation) bool) ([]UserEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []UserEntry
	for mxid, record := range s.users {
		record := record
		if match(mxid, &record) {
			entries = append(entries, UserEntry{MXID: mxid, Record: &record})
		}
	}
	return entries, nil
}

func (s *MemoryStore) GetRoom(_ context.Context, roomID id.RoomID) (*RoomCorrelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("room correlation for %s: %w", roomID, ErrNotFound)
	}
	return &record, nil
}

func (s *MemoryStore) PutRoom(_ context.Context, roomID id.RoomID, record *RoomCorrelation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[roomID] = *record
	return nil
}

func (s *MemoryStore) QueryRooms(_ context.Context, match func(id.RoomID, *RoomCorrelation) bool) ([]RoomEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []RoomEntry
	for roomID, record := range s.rooms {
		record := record
		if match(roomID, &record) {
			entries = append(entries, RoomEntry{RoomID: roomID, Record: &record})
		}
	}
	return entries, nil
}
