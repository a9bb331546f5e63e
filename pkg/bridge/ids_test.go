// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"strings"
	"testing"
)

func TestGhostMXID(t *testing.T) {
	t.Parallel()
	ghost := GhostMXID("courier_", "test.local", "remote-bob")
	localpart, homeserver, err := ghost.Parse()
	if err != nil {
		t.Fatalf("Parse(%s): %v", ghost, err)
	}
	if homeserver != "test.local" {
		t.Errorf("homeserver = %q, want test.local", homeserver)
	}
	if !strings.HasPrefix(localpart, "courier_") {
		t.Errorf("localpart %q missing prefix", localpart)
	}
}

func TestGhostMXIDEncodesUnsafeCharacters(t *testing.T) {
	t.Parallel()
	// Remote IDs can contain anything; the localpart must still be valid.
	ghost := GhostMXID("courier_", "test.local", "Weird User#42 @home")
	if _, _, err := ghost.Parse(); err != nil {
		t.Fatalf("Parse(%s): %v", ghost, err)
	}
	if strings.ContainsAny(string(ghost), " #") {
		t.Errorf("ghost MXID %s contains unencoded characters", ghost)
	}
}

func TestGhostMXIDStable(t *testing.T) {
	t.Parallel()
	a := GhostMXID("courier_", "test.local", "remote-bob")
	b := GhostMXID("courier_", "test.local", "remote-bob")
	if a != b {
		t.Errorf("same remote ID produced %s and %s", a, b)
	}
	c := GhostMXID("courier_", "test.local", "remote-carol")
	if a == c {
		t.Error("different remote IDs collided")
	}
}
