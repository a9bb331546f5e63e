// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"sync"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"
)

// SessionRegistry maps consumer MXIDs to their live remote sessions. A
// consumer is considered enabled for bridging iff a session is registered
// for them; deregistering is how the enable flow is reset.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[id.UserID]RemoteSession
	log      zerolog.Logger
}

func NewSessionRegistry(log zerolog.Logger) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[id.UserID]RemoteSession),
		log:      log.With().Str("component", "session_registry").Logger(),
	}
}

// Register attaches a remote session to a consumer, replacing any existing
// session for the same consumer.
func (r *SessionRegistry) Register(consumer id.UserID, session RemoteSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[consumer] = session
	r.log.Info().
		Str("consumer", string(consumer)).
		Str("remote_self", string(session.SelfID())).
		Msg("Registered remote session")
}

// Deregister removes the consumer's session, if any.
func (r *SessionRegistry) Deregister(consumer id.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[consumer]; ok {
		delete(r.sessions, consumer)
		r.log.Info().Str("consumer", string(consumer)).Msg("Deregistered remote session")
	}
}

// Get returns the consumer's session.
func (r *SessionRegistry) Get(consumer id.UserID) (RemoteSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[consumer]
	return session, ok
}

// IsEnabled reports whether the consumer has a registered session.
func (r *SessionRegistry) IsEnabled(consumer id.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[consumer]
	return ok
}

// Count returns the number of registered sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ConsumerIDs returns the MXIDs of all consumers with a registered session.
func (r *SessionRegistry) ConsumerIDs() []id.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	consumers := make([]id.UserID, 0, len(r.sessions))
	for consumer := range r.sessions {
		consumers = append(consumers, consumer)
	}
	return consumers
}
