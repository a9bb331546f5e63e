// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package mmremote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/aiku/matrix-courier/pkg/bridge"
)

// MessageHandler receives inbound remote messages from a session's event
// stream.
type MessageHandler func(ctx context.Context, msg bridge.RemoteMessage)

// Listen connects the Mattermost WebSocket and feeds new posts to handler
// until ctx is cancelled. It reconnects when the server drops the
// connection.
func (s *Session) Listen(ctx context.Context, handler MessageHandler) error {
	if !s.IsLoggedOn() {
		return bridge.ErrNotLoggedOn
	}
	for {
		ws, err := model.NewWebSocketClient4(httpToWS(s.serverURL), s.client.AuthToken)
		if err != nil {
			return fmt.Errorf("create websocket client: %w", err)
		}
		ws.Listen()
		s.log.Info().Msg("WebSocket connected")

		closed := s.consume(ctx, ws, handler)
		ws.Close()
		if !closed {
			return ctx.Err()
		}
		s.log.Warn().Msg("WebSocket event channel closed, reconnecting")
	}
}

// consume drains the WebSocket event channel. It returns true when the
// channel was closed by the server and false when ctx ended.
func (s *Session) consume(ctx context.Context, ws *model.WebSocketClient, handler MessageHandler) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case evt, ok := <-ws.EventChannel:
			if !ok {
				return true
			}
			if evt == nil {
				continue
			}
			s.handleWebSocketEvent(ctx, evt, handler)
		}
	}
}

func (s *Session) handleWebSocketEvent(ctx context.Context, evt *model.WebSocketEvent, handler MessageHandler) {
	if evt.EventType() != model.WebsocketEventPosted {
		s.log.Trace().Str("event_type", string(evt.EventType())).Msg("Unhandled event type")
		return
	}
	post, err := s.parsePostedEvent(evt)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to parse posted event")
		return
	}
	if post == nil {
		return
	}
	msg, err := s.messageFromPost(ctx, post)
	if err != nil {
		s.log.Error().Err(err).Str("post_id", post.Id).Msg("Failed to resolve posted event")
		return
	}
	handler(ctx, msg)
}

// parsePostedEvent extracts the post from a posted event. It returns
// (nil, nil) for posts that must not be forwarded: the session user's own
// posts and system messages.
func (s *Session) parsePostedEvent(evt *model.WebSocketEvent) (*model.Post, error) {
	postJSON, ok := evt.GetData()["post"].(string)
	if !ok {
		return nil, fmt.Errorf("posted event missing post data")
	}

	var post model.Post
	if err := json.Unmarshal([]byte(postJSON), &post); err != nil {
		return nil, fmt.Errorf("unmarshal post: %w", err)
	}

	if post.UserId == s.selfID {
		return nil, nil
	}
	if post.Type != "" && post.Type != model.PostTypeDefault {
		return nil, nil
	}
	return &post, nil
}

// messageFromPost resolves the sender and channel of a post. Direct
// channels produce a message with no Room so the post is routed as a DM.
func (s *Session) messageFromPost(ctx context.Context, post *model.Post) (bridge.RemoteMessage, error) {
	from, err := s.Contact(ctx, bridge.MakeRemoteUserID(post.UserId))
	if err != nil {
		return bridge.RemoteMessage{}, fmt.Errorf("resolve post sender: %w", err)
	}
	channel, _, err := s.client.GetChannel(ctx, post.ChannelId, "")
	if err != nil {
		return bridge.RemoteMessage{}, fmt.Errorf("get channel %s: %w", post.ChannelId, err)
	}

	msg := bridge.RemoteMessage{From: from, Text: post.Message}
	if channel.Type != model.ChannelTypeDirect {
		msg.Room = &room{session: s, channel: channel}
	}
	return msg, nil
}

func httpToWS(url string) string {
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	if strings.HasPrefix(url, "http://") {
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}
