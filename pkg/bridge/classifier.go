// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"time"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// SenderKind classifies the origin of an event's sender.
type SenderKind int

const (
	// SenderHuman is a real local-network user.
	SenderHuman SenderKind = iota
	// SenderBot is the bridge bot itself.
	SenderBot
	// SenderGhost is a bridge-owned virtual actor representing a remote
	// contact.
	SenderGhost
)

func (k SenderKind) String() string {
	switch k {
	case SenderBot:
		return "bot"
	case SenderGhost:
		return "ghost"
	default:
		return "human"
	}
}

// EventClassifier derives structural facts about raw local-network events.
// It has no side effects; the only external read is one correlation lookup
// for direct-message detection.
type EventClassifier struct {
	local   LocalClient
	manager *CorrelationManager
	now     func() time.Time
}

func NewEventClassifier(local LocalClient, manager *CorrelationManager) *EventClassifier {
	return &EventClassifier{
		local:   local,
		manager: manager,
		now:     time.Now,
	}
}

// Classify wraps a raw event for inspection by the router.
func (c *EventClassifier) Classify(evt *event.Event) *ClassifiedEvent {
	return &ClassifiedEvent{Event: evt, classifier: c}
}

// ClassifiedEvent is a read-only view over one raw event.
type ClassifiedEvent struct {
	Event      *event.Event
	classifier *EventClassifier
}

// Age returns the elapsed time since the event originated.
func (ce *ClassifiedEvent) Age() time.Duration {
	return ce.classifier.now().Sub(time.UnixMilli(ce.Event.Timestamp))
}

// SenderKind classifies the event sender as human, bot, or ghost.
func (ce *ClassifiedEvent) SenderKind() SenderKind {
	switch {
	case ce.classifier.local.IsBot(ce.Event.Sender):
		return SenderBot
	case ce.classifier.local.IsGhost(ce.Event.Sender):
		return SenderGhost
	default:
		return SenderHuman
	}
}

// IsRoomInvitation reports whether the event is a membership invite.
func (ce *ClassifiedEvent) IsRoomInvitation() bool {
	if ce.Event.Type != event.StateMember {
		return false
	}
	member := ce.Event.Content.AsMember()
	return member != nil && member.Membership == event.MembershipInvite
}

// IsBotTarget reports whether the event's state target is the bridge bot.
func (ce *ClassifiedEvent) IsBotTarget() bool {
	return id.UserID(ce.Event.GetStateKey()) == ce.classifier.local.BotUserID()
}

// Type returns the underlying event's structural type tag.
func (ce *ClassifiedEvent) Type() event.Type {
	return ce.Event.Type
}

// Sender returns the event sender's MXID.
func (ce *ClassifiedEvent) Sender() id.UserID {
	return ce.Event.Sender
}

// RoomID returns the room the event was sent into.
func (ce *ClassifiedEvent) RoomID() id.RoomID {
	return ce.Event.RoomID
}

// Body returns the message body, or "" for non-message events.
func (ce *ClassifiedEvent) Body() string {
	msg := ce.Event.Content.AsMessage()
	if msg == nil {
		return ""
	}
	return msg.Body
}

// IsDirectMessage reports whether the event's room is correlated as a
// direct-message room.
func (ce *ClassifiedEvent) IsDirectMessage(ctx context.Context) (bool, error) {
	return ce.classifier.manager.IsDirectRoom(ctx, ce.Event.RoomID)
}
