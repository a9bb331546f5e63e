// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import "errors"

// Error taxonomy for the bridge core. Callers are expected to match with
// errors.Is; everything is wrapped with fmt.Errorf("...: %w", err) on the
// way up.
var (
	// ErrNotFound means a requested correlation, session, room, or remote
	// entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState means the store holds structurally impossible data,
	// e.g. a room correlation with both a remote room and a direct peer,
	// or a query that matched more than one local identity.
	ErrInvalidState = errors.New("invalid correlation state")

	// ErrMissingCorrelation means a room carries no data for the requested
	// correlation kind.
	ErrMissingCorrelation = errors.New("missing correlation data")

	// ErrNotLoggedOn means the consumer's remote session exists but is not
	// authenticated.
	ErrNotLoggedOn = errors.New("remote session not logged on")
)
