// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package matrixlocal implements bridge.LocalClient on top of a mautrix
// client authenticated with the appservice token. Ghost users are
// impersonated through the appservice user_id query parameter.
package matrixlocal

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/matrix-courier/pkg/bridge"
)

// Client talks to the homeserver as the bridge bot and its ghosts.
type Client struct {
	homeserverURL string
	domain        string
	asToken       string
	ghostPrefix   string
	botMXID       id.UserID

	bot *mautrix.Client

	ghostMu sync.Mutex
	ghosts  map[id.UserID]*mautrix.Client

	log zerolog.Logger
}

var _ bridge.LocalClient = (*Client)(nil)

func New(homeserverURL, domain string, botMXID id.UserID, asToken, ghostPrefix string, log zerolog.Logger) (*Client, error) {
	bot, err := mautrix.NewClient(homeserverURL, botMXID, asToken)
	if err != nil {
		return nil, fmt.Errorf("create bot client: %w", err)
	}
	bot.SetAppServiceUserID = true
	return &Client{
		homeserverURL: homeserverURL,
		domain:        domain,
		asToken:       asToken,
		ghostPrefix:   ghostPrefix,
		botMXID:       botMXID,
		bot:           bot,
		ghosts:        make(map[id.UserID]*mautrix.Client),
		log:           log.With().Str("component", "matrix_client").Logger(),
	}, nil
}

// clientFor returns a client impersonating the given user via the
// appservice token. Clients are cached per ghost.
func (c *Client) clientFor(userID id.UserID) (*mautrix.Client, error) {
	if userID == c.botMXID {
		return c.bot, nil
	}
	c.ghostMu.Lock()
	defer c.ghostMu.Unlock()
	if client, ok := c.ghosts[userID]; ok {
		return client, nil
	}
	client, err := mautrix.NewClient(c.homeserverURL, userID, c.asToken)
	if err != nil {
		return nil, fmt.Errorf("create ghost client for %s: %w", userID, err)
	}
	client.SetAppServiceUserID = true
	c.ghosts[userID] = client
	return client, nil
}

func (c *Client) CreateRoom(ctx context.Context, invitees []id.UserID, name string, direct bool) (id.RoomID, error) {
	resp, err := c.bot.CreateRoom(ctx, &mautrix.ReqCreateRoom{
		Invite:     invitees,
		Name:       name,
		IsDirect:   direct,
		Preset:     "trusted_private_chat",
		Visibility: "private",
	})
	if err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	return resp.RoomID, nil
}

func (c *Client) SendText(ctx context.Context, roomID id.RoomID, text string) error {
	_, err := c.bot.SendText(ctx, roomID, text)
	if err != nil {
		return fmt.Errorf("send text to %s: %w", roomID, err)
	}
	return nil
}

func (c *Client) SendTextAs(ctx context.Context, sender id.UserID, roomID id.RoomID, text string) error {
	client, err := c.clientFor(sender)
	if err != nil {
		return err
	}
	_, err = client.SendText(ctx, roomID, text)
	if err != nil {
		return fmt.Errorf("send text to %s as %s: %w", roomID, sender, err)
	}
	return nil
}

func (c *Client) JoinedMembers(ctx context.Context, roomID id.RoomID) ([]id.UserID, error) {
	resp, err := c.bot.JoinedMembers(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("get joined members of %s: %w", roomID, err)
	}
	members := make([]id.UserID, 0, len(resp.Joined))
	for userID := range resp.Joined {
		members = append(members, userID)
	}
	return members, nil
}

func (c *Client) AcceptInvite(ctx context.Context, roomID id.RoomID) error {
	_, err := c.bot.JoinRoomByID(ctx, roomID)
	if err != nil {
		return fmt.Errorf("join room %s: %w", roomID, err)
	}
	return nil
}

func (c *Client) SetGhostProfile(ctx context.Context, ghost id.UserID, displayname string) error {
	client, err := c.clientFor(ghost)
	if err != nil {
		return err
	}
	if err := client.SetDisplayName(ctx, displayname); err != nil {
		return fmt.Errorf("set displayname for %s: %w", ghost, err)
	}
	return nil
}

func (c *Client) BotUserID() id.UserID {
	return c.botMXID
}

func (c *Client) IsBot(userID id.UserID) bool {
	return userID == c.botMXID
}

func (c *Client) IsGhost(userID id.UserID) bool {
	localpart, homeserver, err := userID.Parse()
	if err != nil {
		return false
	}
	return homeserver == c.domain && strings.HasPrefix(localpart, c.ghostPrefix)
}

// Listen runs a sync loop as the bridge bot, feeding every received event
// to handler, until ctx is cancelled.
func (c *Client) Listen(ctx context.Context, handler func(ctx context.Context, evt *event.Event)) error {
	syncer, ok := c.bot.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type %T", c.bot.Syncer)
	}
	syncer.OnEvent(handler)
	c.log.Info().Str("homeserver", c.homeserverURL).Msg("Starting sync loop")
	if err := c.bot.SyncWithContext(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("sync loop: %w", err)
	}
	return nil
}
