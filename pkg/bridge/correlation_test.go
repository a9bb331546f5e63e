// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"errors"
	"testing"

	"maunium.net/go/mautrix/id"
)

func TestRoomCorrelationValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		record RoomCorrelation
		valid  bool
	}{
		{"empty", RoomCorrelation{ConsumerID: testConsumer}, true},
		{"group", RoomCorrelation{ConsumerID: testConsumer, RemoteRoomID: "room-1"}, true},
		{"direct", RoomCorrelation{ConsumerID: testConsumer, DirectPeerID: testBotMXID}, true},
		{"both", RoomCorrelation{ConsumerID: testConsumer, RemoteRoomID: "room-1", DirectPeerID: testBotMXID}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.record.Validate()
			if tc.valid && err != nil {
				t.Errorf("Validate = %v, want nil", err)
			}
			if !tc.valid && !errors.Is(err, ErrInvalidState) {
				t.Errorf("Validate = %v, want ErrInvalidState", err)
			}
		})
	}
}

func TestMemoryStoreUsers(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	ctx := context.Background()
	ghost := id.UserID("@courier_bob:test.local")

	_, err := store.GetUser(ctx, ghost)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing user error = %v, want ErrNotFound", err)
	}

	record := &UserCorrelation{ConsumerID: testConsumer, RemoteUserID: "remote-bob"}
	if err := store.PutUser(ctx, ghost, record); err != nil {
		t.Fatalf("PutUser: %v", err)
	}

	got, err := store.GetUser(ctx, ghost)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if *got != *record {
		t.Errorf("GetUser = %+v, want %+v", got, record)
	}
	// The store hands out copies: mutating a result must not leak back.
	got.RemoteUserID = "tampered"
	again, _ := store.GetUser(ctx, ghost)
	if again.RemoteUserID != "remote-bob" {
		t.Error("mutating a Get result changed the stored record")
	}
}

func TestMemoryStoreQueryRooms(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	ctx := context.Background()

	records := map[id.RoomID]*RoomCorrelation{
		"!a:test.local": {ConsumerID: testConsumer, RemoteRoomID: "room-1"},
		"!b:test.local": {ConsumerID: testConsumer, DirectPeerID: testBotMXID},
		"!c:test.local": {ConsumerID: "@other:test.local", RemoteRoomID: "room-1"},
	}
	for roomID, record := range records {
		if err := store.PutRoom(ctx, roomID, record); err != nil {
			t.Fatalf("PutRoom(%s): %v", roomID, err)
		}
	}

	entries, err := store.QueryRooms(ctx, func(_ id.RoomID, record *RoomCorrelation) bool {
		return record.ConsumerID == testConsumer
	})
	if err != nil {
		t.Fatalf("QueryRooms: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("matched %d rooms, want 2: %v", len(entries), entries)
	}

	none, err := store.QueryRooms(ctx, func(id.RoomID, *RoomCorrelation) bool { return false })
	if err != nil {
		t.Fatalf("QueryRooms: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("matched %d rooms, want 0", len(none))
	}
}
