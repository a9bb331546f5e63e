// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package sqlstore provides the SQLite-backed CorrelationStore.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"maunium.net/go/mautrix/id"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/aiku/matrix-courier/pkg/bridge"
)

// Store persists correlation records in SQLite. It is suitable for
// single-process production use.
type Store struct {
	db *sql.DB
}

var _ bridge.CorrelationStore = (*Store)(nil)

// New opens (and if needed bootstraps) the store at the given file path.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS user_correlations (
			mxid           TEXT NOT NULL PRIMARY KEY,
			consumer_mxid  TEXT NOT NULL,
			remote_user_id TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create user table: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS room_correlations (
			room_id          TEXT NOT NULL PRIMARY KEY,
			consumer_mxid    TEXT NOT NULL,
			remote_room_id   TEXT NOT NULL DEFAULT '',
			direct_peer_mxid TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create room table: %w", err)
	}
	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_user_correlations_remote
		ON user_correlations(consumer_mxid, remote_user_id)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetUser(ctx context.Context, mxid id.UserID) (*bridge.UserCorrelation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT consumer_mxid, remote_user_id FROM user_correlations WHERE mxid = ?", string(mxid))
	var consumer, remote string
	if err := row.Scan(&consumer, &remote); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user correlation for %s: %w", mxid, bridge.ErrNotFound)
		}
		return nil, fmt.Errorf("load user correlation: %w", err)
	}
	return &bridge.UserCorrelation{
		ConsumerID:   id.UserID(consumer),
		RemoteUserID: bridge.RemoteUserID(remote),
	}, nil
}

func (s *Store) PutUser(ctx context.Context, mxid id.UserID, record *bridge.UserCorrelation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_correlations (mxid, consumer_mxid, remote_user_id)
		VALUES (?, ?, ?)
		ON CONFLICT(mxid) DO UPDATE SET
			consumer_mxid = excluded.consumer_mxid,
			remote_user_id = excluded.remote_user_id
	`, string(mxid), string(record.ConsumerID), string(record.RemoteUserID))
	if err != nil {
		return fmt.Errorf("save user correlation: %w", err)
	}
	return nil
}

func (s *Store) QueryUsers(ctx context.Context, match func(id.UserID, *bridge.UserCorrelation) bool) ([]bridge.UserEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT mxid, consumer_mxid, remote_user_id FROM user_correlations")
	if err != nil {
		return nil, fmt.Errorf("query user correlations: %w", err)
	}
	defer rows.Close()

	var entries []bridge.UserEntry
	for rows.Next() {
		var mxid, consumer, remote string
		if err := rows.Scan(&mxid, &consumer, &remote); err != nil {
			return nil, fmt.Errorf("scan user correlation: %w", err)
		}
		record := &bridge.UserCorrelation{
			ConsumerID:   id.UserID(consumer),
			RemoteUserID: bridge.RemoteUserID(remote),
		}
		if match(id.UserID(mxid), record) {
			entries = append(entries, bridge.UserEntry{MXID: id.UserID(mxid), Record: record})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user correlations: %w", err)
	}
	return entries, nil
}

func (s *Store) GetRoom(ctx context.Context, roomID id.RoomID) (*bridge.RoomCorrelation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT consumer_mxid, remote_room_id, direct_peer_mxid FROM room_correlations WHERE room_id = ?",
		string(roomID))
	var consumer, remoteRoom, directPeer string
	if err := row.Scan(&consumer, &remoteRoom, &directPeer); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room correlation for %s: %w", roomID, bridge.ErrNotFound)
		}
		return nil, fmt.Errorf("load room correlation: %w", err)
	}
	return &bridge.RoomCorrelation{
		ConsumerID:   id.UserID(consumer),
		RemoteRoomID: bridge.RemoteRoomID(remoteRoom),
		DirectPeerID: id.UserID(directPeer),
	}, nil
}

func (s *Store) PutRoom(ctx context.Context, roomID id.RoomID, record *bridge.RoomCorrelation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_correlations (room_id, consumer_mxid, remote_room_id, direct_peer_mxid)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET
			consumer_mxid = excluded.consumer_mxid,
			remote_room_id = excluded.remote_room_id,
			direct_peer_mxid = excluded.direct_peer_mxid
	`, string(roomID), string(record.ConsumerID), string(record.RemoteRoomID), string(record.DirectPeerID))
	if err != nil {
		return fmt.Errorf("save room correlation: %w", err)
	}
	return nil
}

func (s *Store) QueryRooms(ctx context.Context, match func(id.RoomID, *bridge.RoomCorrelation) bool) ([]bridge.RoomEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT room_id, consumer_mxid, remote_room_id, direct_peer_mxid FROM room_correlations")
	if err != nil {
		return nil, fmt.Errorf("query room correlations: %w", err)
	}
	defer rows.Close()

	var entries []bridge.RoomEntry
	for rows.Next() {
		var roomID, consumer, remoteRoom, directPeer string
		if err := rows.Scan(&roomID, &consumer, &remoteRoom, &directPeer); err != nil {
			return nil, fmt.Errorf("scan room correlation: %w", err)
		}
		record := &bridge.RoomCorrelation{
			ConsumerID:   id.UserID(consumer),
			RemoteRoomID: bridge.RemoteRoomID(remoteRoom),
			DirectPeerID: id.UserID(directPeer),
		}
		if match(id.RoomID(roomID), record) {
			entries = append(entries, bridge.RoomEntry{RoomID: id.RoomID(roomID), Record: record})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate room correlations: %w", err)
	}
	return entries, nil
}
