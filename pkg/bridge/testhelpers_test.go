// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"go.mau.fi/util/ptr"
)

const (
	testDomain      = "test.local"
	testBotMXID     = id.UserID("@courierbot:test.local")
	testGhostPrefix = "courier_"
	testConsumer    = id.UserID("@alice:test.local")
)

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	config := &Config{
		HomeserverAddress: "http://localhost:8008",
		HomeserverDomain:  testDomain,
		BotMXID:           string(testBotMXID),
		UsernamePrefix:    testGhostPrefix,
		RoomNameSuffix:    " (Remote)",
		BotDisplayname:    "Courier Bot",
	}
	if err := config.PostProcess(); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	return config
}

type createRoomCall struct {
	Invitees []id.UserID
	Name     string
	Direct   bool
	RoomID   id.RoomID
}

type sentText struct {
	Sender id.UserID
	RoomID id.RoomID
	Text   string
}

// fakeLocalClient records every mutation so tests can assert on exact
// call sequences. It is safe for concurrent use.
type fakeLocalClient struct {
	mu sync.Mutex

	createCalls   []createRoomCall
	createErr     error
	sent          []sentText
	sendErr       error
	acceptedRooms []id.RoomID
	profiles      map[id.UserID]string
	joinedMembers map[id.RoomID][]id.UserID

	nextRoom int
}

var _ LocalClient = (*fakeLocalClient)(nil)

func newFakeLocalClient() *fakeLocalClient {
	return &fakeLocalClient{
		profiles:      make(map[id.UserID]string),
		joinedMembers: make(map[id.RoomID][]id.UserID),
	}
}

func (f *fakeLocalClient) CreateRoom(_ context.Context, invitees []id.UserID, name string, direct bool) (id.RoomID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextRoom++
	roomID := id.RoomID(fmt.Sprintf("!room-%d:%s", f.nextRoom, testDomain))
	f.createCalls = append(f.createCalls, createRoomCall{
		Invitees: append([]id.UserID(nil), invitees...),
		Name:     name,
		Direct:   direct,
		RoomID:   roomID,
	})
	return roomID, nil
}

func (f *fakeLocalClient) SendText(_ context.Context, roomID id.RoomID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentText{Sender: testBotMXID, RoomID: roomID, Text: text})
	return nil
}

func (f *fakeLocalClient) SendTextAs(_ context.Context, sender id.UserID, roomID id.RoomID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentText{Sender: sender, RoomID: roomID, Text: text})
	return nil
}

func (f *fakeLocalClient) JoinedMembers(_ context.Context, roomID id.RoomID) ([]id.UserID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joinedMembers[roomID], nil
}

func (f *fakeLocalClient) AcceptInvite(_ context.Context, roomID id.RoomID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acceptedRooms = append(f.acceptedRooms, roomID)
	return nil
}

func (f *fakeLocalClient) SetGhostProfile(_ context.Context, ghost id.UserID, displayname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[ghost] = displayname
	return nil
}

func (f *fakeLocalClient) BotUserID() id.UserID {
	return testBotMXID
}

func (f *fakeLocalClient) IsBot(userID id.UserID) bool {
	return userID == testBotMXID
}

func (f *fakeLocalClient) IsGhost(userID id.UserID) bool {
	localpart, homeserver, err := userID.Parse()
	if err != nil || homeserver != testDomain {
		return false
	}
	return strings.HasPrefix(localpart, testGhostPrefix)
}

func (f *fakeLocalClient) createdRooms() []createRoomCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]createRoomCall(nil), f.createCalls...)
}

func (f *fakeLocalClient) sentTexts() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentText(nil), f.sent...)
}

type fakeContact struct {
	mu   sync.Mutex
	id   RemoteUserID
	name string
	sent []string
	err  error
}

var _ RemoteContact = (*fakeContact)(nil)

func (c *fakeContact) ID() RemoteUserID { return c.id }
func (c *fakeContact) Name() string     { return c.name }

func (c *fakeContact) SendText(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeContact) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type fakeRoom struct {
	mu      sync.Mutex
	id      RemoteRoomID
	name    string
	members []RemoteUserID
	sent    []string
}

var _ RemoteRoom = (*fakeRoom)(nil)

func (r *fakeRoom) ID() RemoteRoomID { return r.id }
func (r *fakeRoom) Name() string     { return r.name }

func (r *fakeRoom) SendText(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return nil
}

func (r *fakeRoom) MemberIDs(context.Context) ([]RemoteUserID, error) {
	return append([]RemoteUserID(nil), r.members...), nil
}

func (r *fakeRoom) sentTexts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

type fakeRemoteSession struct {
	selfID   RemoteUserID
	loggedOn bool
	contacts map[RemoteUserID]*fakeContact
	rooms    map[RemoteRoomID]*fakeRoom
}

var _ RemoteSession = (*fakeRemoteSession)(nil)

func newFakeRemoteSession(selfID RemoteUserID) *fakeRemoteSession {
	return &fakeRemoteSession{
		selfID:   selfID,
		loggedOn: true,
		contacts: make(map[RemoteUserID]*fakeContact),
		rooms:    make(map[RemoteRoomID]*fakeRoom),
	}
}

func (s *fakeRemoteSession) addContact(userID RemoteUserID, name string) *fakeContact {
	contact := &fakeContact{id: userID, name: name}
	s.contacts[userID] = contact
	return contact
}

func (s *fakeRemoteSession) addRoom(roomID RemoteRoomID, name string, members ...RemoteUserID) *fakeRoom {
	room := &fakeRoom{id: roomID, name: name, members: members}
	s.rooms[roomID] = room
	return room
}

func (s *fakeRemoteSession) SelfID() RemoteUserID { return s.selfID }
func (s *fakeRemoteSession) IsLoggedOn() bool     { return s.loggedOn }

func (s *fakeRemoteSession) Contact(_ context.Context, userID RemoteUserID) (RemoteContact, error) {
	contact, ok := s.contacts[userID]
	if !ok {
		return nil, fmt.Errorf("remote contact %s: %w", userID, ErrNotFound)
	}
	return contact, nil
}

func (s *fakeRemoteSession) Room(_ context.Context, roomID RemoteRoomID) (RemoteRoom, error) {
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("remote room %s: %w", roomID, ErrNotFound)
	}
	return room, nil
}

type dialogRecorder struct {
	mu    sync.Mutex
	flows []string
	ctxs  []DialogContext
}

var _ DialogManager = (*dialogRecorder)(nil)

func (d *dialogRecorder) record(flow string, dctx DialogContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flows = append(d.flows, flow)
	d.ctxs = append(d.ctxs, dctx)
	return nil
}

func (d *dialogRecorder) StartEnableFlow(_ context.Context, dctx DialogContext) error {
	return d.record("enable", dctx)
}

func (d *dialogRecorder) StartSetupFlow(_ context.Context, dctx DialogContext) error {
	return d.record("setup", dctx)
}

func (d *dialogRecorder) StartLoginFlow(_ context.Context, dctx DialogContext) error {
	return d.record("login", dctx)
}

func (d *dialogRecorder) started() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.flows...)
}

type observerRecorder struct {
	mu          sync.Mutex
	transcripts []Transcript
}

var _ TranscriptObserver = (*observerRecorder)(nil)

func (o *observerRecorder) MessageObserved(_ context.Context, transcript Transcript) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transcripts = append(o.transcripts, transcript)
}

func (o *observerRecorder) observed() []Transcript {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Transcript(nil), o.transcripts...)
}

// testEnv wires a full routing stack around in-memory fakes.
type testEnv struct {
	config   *Config
	store    *MemoryStore
	local    *fakeLocalClient
	sessions *SessionRegistry
	manager  *CorrelationManager
	router   *Router
	dialogs  *dialogRecorder
	observer *observerRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zerolog.Nop()
	env := &testEnv{
		config:   newTestConfig(t),
		store:    NewMemoryStore(),
		local:    newFakeLocalClient(),
		sessions: NewSessionRegistry(log),
		dialogs:  &dialogRecorder{},
		observer: &observerRecorder{},
	}
	env.manager = NewCorrelationManager(env.store, env.local, env.sessions, env.config, log)
	classifier := NewEventClassifier(env.local, env.manager)
	env.router = NewRouter(classifier, env.manager, env.sessions, env.local, env.dialogs, env.observer, env.config, log)
	return env
}

// enableConsumer registers a logged-on remote session for the consumer.
func (env *testEnv) enableConsumer(consumer id.UserID, selfID RemoteUserID) *fakeRemoteSession {
	session := newFakeRemoteSession(selfID)
	env.sessions.Register(consumer, session)
	return session
}

// registerDirectRoom seeds a direct-message correlation and returns its
// room ID.
func (env *testEnv) registerDirectRoom(t *testing.T, owner, counterpart id.UserID) id.RoomID {
	t.Helper()
	roomID := id.RoomID(fmt.Sprintf("!direct-%s-%d:%s", counterpart, len(env.store.rooms), testDomain))
	if err := env.manager.SetDirectRoom(context.Background(), owner, counterpart, roomID); err != nil {
		t.Fatalf("SetDirectRoom: %v", err)
	}
	return roomID
}

func messageEvent(sender id.UserID, roomID id.RoomID, body string) *event.Event {
	return &event.Event{
		Type:      event.EventMessage,
		Sender:    sender,
		RoomID:    roomID,
		Timestamp: time.Now().UnixMilli(),
		Content: event.Content{
			Parsed: &event.MessageEventContent{MsgType: event.MsgText, Body: body},
		},
	}
}

func inviteEvent(sender, target id.UserID, roomID id.RoomID) *event.Event {
	return &event.Event{
		Type:      event.StateMember,
		Sender:    sender,
		RoomID:    roomID,
		StateKey:  ptr.Ptr(string(target)),
		Timestamp: time.Now().UnixMilli(),
		Content: event.Content{
			Parsed: &event.MemberEventContent{Membership: event.MembershipInvite},
		},
	}
}
