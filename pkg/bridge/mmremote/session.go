// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package mmremote implements bridge.RemoteSession on top of the
// Mattermost REST API, so a Mattermost server can act as the remote
// network.
package mmremote

import (
	"context"
	"fmt"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/matrix-courier/pkg/bridge"
)

// Session is one consumer's authenticated Mattermost connection.
type Session struct {
	client    *model.Client4
	serverURL string
	selfID    string
	log       zerolog.Logger
}

var _ bridge.RemoteSession = (*Session)(nil)

// NewSession creates a session against the given server with a personal
// access token. Connect must be called before the session is usable.
func NewSession(serverURL, token string, log zerolog.Logger) *Session {
	client := model.NewAPIv4Client(serverURL)
	client.SetToken(token)
	return &Session{
		client:    client,
		serverURL: serverURL,
		log:       log.With().Str("component", "mm_session").Str("server_url", serverURL).Logger(),
	}
}

// Connect verifies the token and resolves the session's own identity.
func (s *Session) Connect(ctx context.Context) error {
	me, _, err := s.client.GetMe(ctx, "")
	if err != nil {
		return fmt.Errorf("verify session: %w", err)
	}
	s.selfID = me.Id
	s.log.Info().Str("user_id", me.Id).Str("username", me.Username).Msg("Authenticated")
	return nil
}

func (s *Session) SelfID() bridge.RemoteUserID {
	return bridge.MakeRemoteUserID(s.selfID)
}

func (s *Session) IsLoggedOn() bool {
	return s.client != nil && s.client.AuthToken != "" && s.selfID != ""
}

func (s *Session) Contact(ctx context.Context, userID bridge.RemoteUserID) (bridge.RemoteContact, error) {
	if !s.IsLoggedOn() {
		return nil, bridge.ErrNotLoggedOn
	}
	user, _, err := s.client.GetUser(ctx, bridge.ParseRemoteUserID(userID), "")
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return &contact{session: s, user: user}, nil
}

func (s *Session) Room(ctx context.Context, roomID bridge.RemoteRoomID) (bridge.RemoteRoom, error) {
	if !s.IsLoggedOn() {
		return nil, bridge.ErrNotLoggedOn
	}
	channel, _, err := s.client.GetChannel(ctx, bridge.ParseRemoteRoomID(roomID), "")
	if err != nil {
		return nil, fmt.Errorf("get channel %s: %w", roomID, err)
	}
	return &room{session: s, channel: channel}, nil
}

// contact is a handle to an individual Mattermost user. Sending opens (or
// reuses) the direct channel between the session user and the contact.
type contact struct {
	session *Session
	user    *model.User
}

func (c *contact) ID() bridge.RemoteUserID {
	return bridge.MakeRemoteUserID(c.user.Id)
}

func (c *contact) Name() string {
	if c.user.Nickname != "" {
		return c.user.Nickname
	}
	return c.user.Username
}

func (c *contact) SendText(ctx context.Context, text string) error {
	channel, _, err := c.session.client.CreateDirectChannel(ctx, c.session.selfID, c.user.Id)
	if err != nil {
		return fmt.Errorf("open direct channel with %s: %w", c.user.Id, err)
	}
	_, _, err = c.session.client.CreatePost(ctx, &model.Post{
		ChannelId: channel.Id,
		Message:   text,
	})
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// room is a handle to a Mattermost channel.
type room struct {
	session *Session
	channel *model.Channel
}

func (r *room) ID() bridge.RemoteRoomID {
	return bridge.MakeRemoteRoomID(r.channel.Id)
}

func (r *room) Name() string {
	if r.channel.DisplayName != "" {
		return r.channel.DisplayName
	}
	return r.channel.Name
}

func (r *room) SendText(ctx context.Context, text string) error {
	_, _, err := r.session.client.CreatePost(ctx, &model.Post{
		ChannelId: r.channel.Id,
		Message:   text,
	})
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

func (r *room) MemberIDs(ctx context.Context) ([]bridge.RemoteUserID, error) {
	members, _, err := r.session.client.GetChannelMembers(ctx, r.channel.Id, 0, 200, "")
	if err != nil {
		return nil, fmt.Errorf("get channel members: %w", err)
	}
	memberIDs := make([]bridge.RemoteUserID, 0, len(members))
	for _, member := range members {
		memberIDs = append(memberIDs, bridge.MakeRemoteUserID(member.UserId))
	}
	return memberIDs, nil
}
