// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"
)

// Transcript is the classification-time view of a message handed to the
// observer.
type Transcript struct {
	Sender id.UserID
	RoomID id.RoomID
	Body   string
}

// TranscriptObserver is a pluggable diagnostic sink invoked after
// classification, independent of the routing decision. Implementations
// must be best-effort: they swallow their own failures and must never
// block or fail the primary route.
type TranscriptObserver interface {
	MessageObserved(ctx context.Context, transcript Transcript)
}

// NopObserver discards transcripts.
type NopObserver struct{}

func (NopObserver) MessageObserved(context.Context, Transcript) {}

// DiagnosticObserver forwards transcripts to the sender's diagnostic
// contact on the remote network and, when configured, echoes them into a
// local diagnostic room. All failures are logged at debug and swallowed.
type DiagnosticObserver struct {
	sessions  *SessionRegistry
	local     LocalClient
	contactID RemoteUserID
	echoRoom  id.RoomID
	log       zerolog.Logger
}

var _ TranscriptObserver = (*DiagnosticObserver)(nil)

func NewDiagnosticObserver(sessions *SessionRegistry, local LocalClient, config *Config, log zerolog.Logger) *DiagnosticObserver {
	return &DiagnosticObserver{
		sessions:  sessions,
		local:     local,
		contactID: RemoteUserID(config.Diagnostics.ContactID),
		echoRoom:  id.RoomID(config.Diagnostics.EchoRoomID),
		log:       log.With().Str("component", "diagnostic_observer").Logger(),
	}
}

func (o *DiagnosticObserver) MessageObserved(ctx context.Context, transcript Transcript) {
	line := fmt.Sprintf("%s in %s said: %s", transcript.Sender, transcript.RoomID, transcript.Body)

	if o.contactID != "" {
		if session, ok := o.sessions.Get(transcript.Sender); ok {
			contact, err := session.Contact(ctx, o.contactID)
			if err != nil {
				o.log.Debug().Err(err).Str("contact", string(o.contactID)).Msg("Diagnostic contact unavailable")
			} else if err := contact.SendText(ctx, line); err != nil {
				o.log.Debug().Err(err).Str("contact", string(o.contactID)).Msg("Diagnostic forward failed")
			}
		}
	}

	if o.echoRoom != "" {
		if err := o.local.SendText(ctx, o.echoRoom, line); err != nil {
			o.log.Debug().Err(err).Str("room_id", string(o.echoRoom)).Msg("Diagnostic echo failed")
		}
	}
}
