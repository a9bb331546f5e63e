// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Dialog prompt texts. The full interactive wizards live outside the core;
// this implementation sends the opening prompt of each flow so the consumer
// always gets a response.
const (
	enablePrompt = "Your account is not connected to the remote network yet. " +
		"Reply with `enable` to link it."
	setupPrompt = "Hi! I manage your remote-network connection. " +
		"Reply with `help` to see what I can do."
	loginPrompt = "Your remote session is currently logged out. " +
		"Reply with `login` to reconnect."
)

// TextDialogManager is a DialogManager that answers each flow with a
// guidance prompt in the triggering room.
type TextDialogManager struct {
	local LocalClient
	log   zerolog.Logger
}

var _ DialogManager = (*TextDialogManager)(nil)

func NewTextDialogManager(local LocalClient, log zerolog.Logger) *TextDialogManager {
	return &TextDialogManager{
		local: local,
		log:   log.With().Str("component", "dialog_manager").Logger(),
	}
}

func (d *TextDialogManager) StartEnableFlow(ctx context.Context, dctx DialogContext) error {
	return d.prompt(ctx, "enable", dctx, enablePrompt)
}

func (d *TextDialogManager) StartSetupFlow(ctx context.Context, dctx DialogContext) error {
	return d.prompt(ctx, "setup", dctx, setupPrompt)
}

func (d *TextDialogManager) StartLoginFlow(ctx context.Context, dctx DialogContext) error {
	return d.prompt(ctx, "login", dctx, loginPrompt)
}

func (d *TextDialogManager) prompt(ctx context.Context, flow string, dctx DialogContext, text string) error {
	d.log.Debug().
		Str("flow", flow).
		Str("consumer", string(dctx.ConsumerID)).
		Str("room_id", string(dctx.RoomID)).
		Msg("Starting dialog flow")
	if err := d.local.SendText(ctx, dctx.RoomID, text); err != nil {
		return fmt.Errorf("send %s prompt: %w", flow, err)
	}
	return nil
}
