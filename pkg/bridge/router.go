// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Outcome describes what the router decided to do with an event. Every
// dispatch produces exactly one outcome, which the top-level handler logs.
type Outcome string

const (
	OutcomeDroppedStale     Outcome = "dropped_stale"
	OutcomeDroppedEcho      Outcome = "dropped_echo"
	OutcomeDroppedUnknown   Outcome = "dropped_unknown_type"
	OutcomeDroppedUnlinked  Outcome = "dropped_no_correlation"
	OutcomeInviteIgnored    Outcome = "invite_ignored"
	OutcomeInviteAccepted   Outcome = "invite_accepted"
	OutcomeDirectRegistered Outcome = "direct_room_registered"
	OutcomeDialogEnable     Outcome = "dialog_enable"
	OutcomeDialogSetup      Outcome = "dialog_setup"
	OutcomeDialogLogin      Outcome = "dialog_login"
	OutcomeForwardedDirect  Outcome = "forwarded_direct"
	OutcomeForwardedRoom    Outcome = "forwarded_room"
	OutcomeNoticeSent       Outcome = "notice_sent"
	OutcomeDeliveredLocal   Outcome = "delivered_local"
	OutcomeFailed           Outcome = "failed"
)

const disabledNotice = "The bridge is not enabled for your account yet. " +
	"Message the bridge bot to get started."

// RemoteMessage is an inbound message from the remote network. Room is nil
// for direct messages.
type RemoteMessage struct {
	From RemoteContact
	Room RemoteRoom
	Text string
}

// Router consumes classified events and decides the downstream action. It
// holds no per-event state; multiple events may be dispatched concurrently.
type Router struct {
	classifier *EventClassifier
	manager    *CorrelationManager
	sessions   *SessionRegistry
	local      LocalClient
	dialogs    DialogManager
	observer   TranscriptObserver
	ageLimit   time.Duration
	log        zerolog.Logger
}

func NewRouter(classifier *EventClassifier, manager *CorrelationManager, sessions *SessionRegistry, local LocalClient, dialogs DialogManager, observer TranscriptObserver, config *Config, log zerolog.Logger) *Router {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Router{
		classifier: classifier,
		manager:    manager,
		sessions:   sessions,
		local:      local,
		dialogs:    dialogs,
		observer:   observer,
		ageLimit:   config.AgeLimit(),
		log:        log.With().Str("component", "router").Logger(),
	}
}

// HandleEvent is the top-level entry point for local-network events. Every
// failure is logged here and never escapes: one broken event must not
// crash the dispatch loop or block subsequent events.
func (r *Router) HandleEvent(ctx context.Context, evt *event.Event) Outcome {
	outcome, err := r.dispatch(ctx, evt)
	logEvt := r.log.Debug()
	if err != nil {
		outcome = OutcomeFailed
		logEvt = r.log.Error().Err(err)
	}
	logEvt.
		Str("event_type", evt.Type.Type).
		Str("sender", string(evt.Sender)).
		Str("room_id", string(evt.RoomID)).
		Str("outcome", string(outcome)).
		Msg("Handled event")
	return outcome
}

func (r *Router) dispatch(ctx context.Context, evt *event.Event) (Outcome, error) {
	ce := r.classifier.Classify(evt)

	if age := ce.Age(); age > r.ageLimit {
		r.log.Debug().
			Dur("age", age).
			Dur("age_limit", r.ageLimit).
			Msg("Skipping stale event")
		return OutcomeDroppedStale, nil
	}

	if kind := ce.SenderKind(); kind != SenderHuman {
		r.log.Debug().
			Stringer("sender_kind", kind).
			Str("sender", string(ce.Sender())).
			Msg("Skipping bridge-origin event")
		return OutcomeDroppedEcho, nil
	}

	if ce.IsRoomInvitation() {
		if !ce.IsBotTarget() {
			return OutcomeInviteIgnored, nil
		}
		return r.handleBotInvite(ctx, ce)
	}

	switch ce.Type() {
	case event.EventMessage:
		return r.handleMessage(ctx, ce)
	default:
		r.log.Debug().Str("event_type", ce.Type().Type).Msg("Unhandled event type")
		return OutcomeDroppedUnknown, nil
	}
}

// handleBotInvite accepts an invitation addressed to the bridge bot. A
// room that ends up with exactly two members is registered as the direct
// message room of the inviter; anything larger is left alone.
func (r *Router) handleBotInvite(ctx context.Context, ce *ClassifiedEvent) (Outcome, error) {
	roomID := ce.RoomID()
	if err := r.local.AcceptInvite(ctx, roomID); err != nil {
		return OutcomeFailed, fmt.Errorf("accept invitation to %s: %w", roomID, err)
	}

	members, err := r.local.JoinedMembers(ctx, roomID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("inspect members of %s: %w", roomID, err)
	}
	if len(members) != 2 {
		r.log.Debug().
			Int("member_count", len(members)).
			Str("room_id", string(roomID)).
			Msg("Invited room is not a direct room")
		return OutcomeInviteAccepted, nil
	}

	if err := r.manager.SetDirectRoom(ctx, ce.Sender(), r.local.BotUserID(), roomID); err != nil {
		return OutcomeFailed, fmt.Errorf("register direct room %s: %w", roomID, err)
	}
	return OutcomeDirectRegistered, nil
}

func (r *Router) handleMessage(ctx context.Context, ce *ClassifiedEvent) (Outcome, error) {
	// The transcript observer is best-effort and independent of the main
	// route; implementations swallow their own failures.
	r.observer.MessageObserved(ctx, Transcript{
		Sender: ce.Sender(),
		RoomID: ce.RoomID(),
		Body:   ce.Body(),
	})

	isDirect, err := ce.IsDirectMessage(ctx)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("classify room %s: %w", ce.RoomID(), err)
	}
	if isDirect {
		return r.handleDirectMessage(ctx, ce)
	}
	return r.handleGroupMessage(ctx, ce)
}

func (r *Router) handleDirectMessage(ctx context.Context, ce *ClassifiedEvent) (Outcome, error) {
	owner, counterpart, err := r.manager.DirectPair(ctx, ce.RoomID())
	if err != nil {
		return OutcomeFailed, err
	}

	dctx := DialogContext{ConsumerID: owner, RoomID: ce.RoomID(), Body: ce.Body()}

	if !r.sessions.IsEnabled(owner) {
		if err := r.dialogs.StartEnableFlow(ctx, dctx); err != nil {
			return OutcomeFailed, fmt.Errorf("start enable flow: %w", err)
		}
		return OutcomeDialogEnable, nil
	}

	switch {
	case r.local.IsBot(counterpart):
		if err := r.dialogs.StartSetupFlow(ctx, dctx); err != nil {
			return OutcomeFailed, fmt.Errorf("start setup flow: %w", err)
		}
		return OutcomeDialogSetup, nil

	case r.local.IsGhost(counterpart):
		return r.forwardToRemoteIndividual(ctx, ce, owner, counterpart)

	default:
		return OutcomeFailed, fmt.Errorf("%w: direct room %s counterpart %s is neither bot nor ghost",
			ErrInvalidState, ce.RoomID(), counterpart)
	}
}

func (r *Router) forwardToRemoteIndividual(ctx context.Context, ce *ClassifiedEvent, owner, counterpart id.UserID) (Outcome, error) {
	session, ok := r.sessions.Get(owner)
	if !ok {
		return OutcomeFailed, fmt.Errorf("no remote session for %s: %w", owner, ErrNotFound)
	}
	if !session.IsLoggedOn() {
		dctx := DialogContext{ConsumerID: owner, RoomID: ce.RoomID(), Body: ce.Body()}
		if err := r.dialogs.StartLoginFlow(ctx, dctx); err != nil {
			return OutcomeFailed, fmt.Errorf("start login flow: %w", err)
		}
		return OutcomeDialogLogin, nil
	}

	record, err := r.manager.RemoteUserFor(ctx, counterpart)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("resolve ghost %s: %w", counterpart, err)
	}
	contact, err := session.Contact(ctx, record.RemoteUserID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("find remote contact %s: %w", record.RemoteUserID, err)
	}
	if err := contact.SendText(ctx, ce.Body()); err != nil {
		return OutcomeFailed, fmt.Errorf("send to remote contact %s: %w", record.RemoteUserID, err)
	}
	return OutcomeForwardedDirect, nil
}

func (r *Router) handleGroupMessage(ctx context.Context, ce *ClassifiedEvent) (Outcome, error) {
	sender := ce.Sender()

	if !r.sessions.IsEnabled(sender) {
		noticeRoom, err := r.manager.DirectRoomWithBot(ctx, sender)
		if err != nil {
			return OutcomeFailed, fmt.Errorf("get notice room for %s: %w", sender, err)
		}
		if err := r.local.SendText(ctx, noticeRoom, disabledNotice); err != nil {
			return OutcomeFailed, fmt.Errorf("send disabled notice: %w", err)
		}
		return OutcomeNoticeSent, nil
	}

	consumer, remoteRoomID, err := r.manager.RemoteRoomFor(ctx, ce.RoomID())
	if err != nil {
		// Fail soft on unlinked rooms: log and move on.
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrMissingCorrelation) {
			r.log.Debug().
				Str("room_id", string(ce.RoomID())).
				Msg("Group room has no remote correlation")
			return OutcomeDroppedUnlinked, nil
		}
		return OutcomeFailed, err
	}

	session, ok := r.sessions.Get(consumer)
	if !ok {
		return OutcomeFailed, fmt.Errorf("no remote session for %s: %w", consumer, ErrNotFound)
	}
	remoteRoom, err := session.Room(ctx, remoteRoomID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("find remote room %s: %w", remoteRoomID, err)
	}
	if err := remoteRoom.SendText(ctx, ce.Body()); err != nil {
		return OutcomeFailed, fmt.Errorf("send to remote room %s: %w", remoteRoomID, err)
	}
	return OutcomeForwardedRoom, nil
}

// HandleRemoteMessage routes an inbound remote-network message to the
// correlated local room, posting as the sender's ghost. Like HandleEvent,
// failures are logged and contained here.
func (r *Router) HandleRemoteMessage(ctx context.Context, consumer id.UserID, msg RemoteMessage) Outcome {
	outcome, err := r.deliverRemote(ctx, consumer, msg)
	logEvt := r.log.Debug()
	if err != nil {
		outcome = OutcomeFailed
		logEvt = r.log.Error().Err(err)
	}
	logEvt.
		Str("consumer", string(consumer)).
		Str("remote_sender", string(msg.From.ID())).
		Str("outcome", string(outcome)).
		Msg("Handled remote message")
	return outcome
}

func (r *Router) deliverRemote(ctx context.Context, consumer id.UserID, msg RemoteMessage) (Outcome, error) {
	if session, ok := r.sessions.Get(consumer); ok && session.SelfID() == msg.From.ID() {
		return OutcomeDroppedEcho, nil
	}

	var localRoom id.RoomID
	var err error
	if msg.Room != nil {
		localRoom, err = r.manager.LocalRoomForRemoteRoom(ctx, consumer, msg.Room)
	} else {
		localRoom, err = r.manager.LocalRoomForRemoteUser(ctx, consumer, msg.From)
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("resolve local room: %w", err)
	}

	ghost, err := r.manager.LocalUserFor(ctx, consumer, msg.From.ID(), msg.From.Name())
	if err != nil {
		return OutcomeFailed, fmt.Errorf("resolve sender ghost: %w", err)
	}
	if err := r.local.SendTextAs(ctx, ghost, localRoom, msg.Text); err != nil {
		return OutcomeFailed, fmt.Errorf("deliver to local room %s: %w", localRoom, err)
	}
	return OutcomeDeliveredLocal, nil
}

// NotifyConsumer sends a service notice from the bridge bot into the
// consumer's direct room, creating the room on first use. Used for
// best-effort transient failure notices.
func (r *Router) NotifyConsumer(ctx context.Context, consumer id.UserID, text string) error {
	noticeRoom, err := r.manager.DirectRoomWithBot(ctx, consumer)
	if err != nil {
		return fmt.Errorf("get notice room for %s: %w", consumer, err)
	}
	if err := r.local.SendText(ctx, noticeRoom, text); err != nil {
		return fmt.Errorf("send notice: %w", err)
	}
	return nil
}
