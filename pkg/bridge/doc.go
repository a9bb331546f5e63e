// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package bridge implements the core of a bidirectional messaging bridge:
// it correlates identities between a local Matrix-style network and a
// remote network, classifies inbound events, and routes each event to the
// correct counterpart action.
//
// # Core Types
//
// [CorrelationManager] is the bidirectional mapping engine. Given a local
// identity it resolves the correlated remote identity and vice versa,
// creating local ghosts and rooms on demand. Get-or-create is serialized
// per correlation key so concurrent events for the same not-yet-correlated
// entity produce exactly one record.
//
// [Router] consumes classified events and decides between dropping,
// handing off to a dialog flow, forwarding to a remote individual or room,
// or delivering an inbound remote message to the local consumer. Every
// dispatch yields an [Outcome]; failures are logged at the dispatch
// boundary and never escape.
//
// [EventClassifier] derives structural facts (age, sender kind, event
// kind, room kind) from one raw event without side effects.
//
// [SessionRegistry] maps each consumer to their live remote session. A
// consumer is enabled for bridging iff a session is registered.
//
// # Collaborators
//
// The network transports are interfaces: [LocalClient] (implemented by the
// matrixlocal package) and [RemoteSession] (implemented by the mmremote
// package). [CorrelationStore] persistence is pluggable; the sqlstore
// package provides the SQLite implementation. [DialogManager] hosts the
// conversational flows, invoked fire-and-forget by the router.
//
// # Echo Prevention
//
// The router drops events whose sender is the bridge bot or one of its
// ghosts before any other processing, and inbound remote messages sent by
// the session's own identity. These layers prevent message loops between
// the networks and must not be removed.
package bridge
