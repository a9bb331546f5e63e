// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command matrix-courier bridges a Matrix homeserver to a remote messaging
// network. It maintains persistent correlations between Matrix users/rooms
// and their remote counterparts, routes events in both directions, and
// mints ghost users on demand for remote contacts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.mau.fi/util/exerrors"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/matrix-courier/pkg/bridge"
	"github.com/aiku/matrix-courier/pkg/bridge/matrixlocal"
	"github.com/aiku/matrix-courier/pkg/bridge/mmremote"
	"github.com/aiku/matrix-courier/pkg/bridge/sqlstore"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "matrix-courier",
		Short: "A Matrix bridge with on-demand identity correlation",
	}
	cmd.AddCommand(
		newRunCommand(),
		newVersionCommand(),
		newExampleConfigCommand(),
	)
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "matrix-courier %s (%s, built %s)\n", Tag, Commit, BuildTime)
		},
	}
}

func newExampleConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "example-config",
		Short: "Print the example configuration file",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprint(cmd.OutOrStdout(), bridge.ExampleConfig)
		},
	}
}

func newRunCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bridge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := bridge.LoadConfig(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), config)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the config file")
	return cmd
}

func run(ctx context.Context, config *bridge.Config) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	var store bridge.CorrelationStore
	if config.Database.Path != "" {
		sqlStore, err := sqlstore.New(config.Database.Path)
		if err != nil {
			return fmt.Errorf("open correlation store: %w", err)
		}
		defer sqlStore.Close()
		store = sqlStore
	} else {
		log.Warn().Msg("No database path configured, correlations are not persisted")
		store = bridge.NewMemoryStore()
	}

	local, err := matrixlocal.New(
		config.HomeserverAddress,
		config.HomeserverDomain,
		config.BotUserID(),
		config.ASToken,
		config.UsernamePrefix,
		log,
	)
	if err != nil {
		return fmt.Errorf("create local client: %w", err)
	}

	sessions := bridge.NewSessionRegistry(log)
	manager := bridge.NewCorrelationManager(store, local, sessions, config, log)
	classifier := bridge.NewEventClassifier(local, manager)
	observer := bridge.NewDiagnosticObserver(sessions, local, config, log)
	dialogs := bridge.NewTextDialogManager(local, log)
	router := bridge.NewRouter(classifier, manager, sessions, local, dialogs, observer, config, log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, sessionConfig := range config.Sessions {
		session := mmremote.NewSession(sessionConfig.ServerURL, sessionConfig.Token, log)
		if err := session.Connect(ctx); err != nil {
			log.Error().Err(err).
				Str("consumer", sessionConfig.ConsumerMXID).
				Str("server_url", sessionConfig.ServerURL).
				Msg("Failed to connect remote session")
			continue
		}
		consumer := id.UserID(sessionConfig.ConsumerMXID)
		sessions.Register(consumer, session)
		go func() {
			err := session.Listen(ctx, func(ctx context.Context, msg bridge.RemoteMessage) {
				router.HandleRemoteMessage(ctx, consumer, msg)
			})
			if err != nil && ctx.Err() == nil {
				log.Error().Err(err).
					Str("consumer", string(consumer)).
					Msg("Remote session listener stopped")
			}
		}()
	}

	admin := bridge.NewAdminAPI(sessions, store, log)
	go func() {
		if err := admin.Serve(ctx, config.AdminAPIAddr); err != nil {
			log.Error().Err(err).Msg("Admin API error")
		}
	}()

	log.Info().
		Str("homeserver", config.HomeserverAddress).
		Int("sessions", sessions.Count()).
		Msg("Bridge running")

	return local.Listen(ctx, func(ctx context.Context, evt *event.Event) {
		router.HandleEvent(ctx, evt)
	})
}

func main() {
	exerrors.PanicIfNotNil(newRootCommand().Execute())
}
