// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"
)

// AdminAPI serves read-only inspection endpoints over HTTP:
//
//	GET /api/status   - session count and store reachability
//	GET /api/sessions - registered consumers and their login state
type AdminAPI struct {
	sessions *SessionRegistry
	store    CorrelationStore
	log      zerolog.Logger
}

func NewAdminAPI(sessions *SessionRegistry, store CorrelationStore, log zerolog.Logger) *AdminAPI {
	return &AdminAPI{
		sessions: sessions,
		store:    store,
		log:      log.With().Str("component", "admin_api").Logger(),
	}
}

// AttachHandlers registers the API routes on the given mux.
func (a *AdminAPI) AttachHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/sessions", a.handleSessions)
}

// Serve runs the admin API until ctx is cancelled.
func (a *AdminAPI) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	a.AttachHandlers(mux)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	a.log.Info().Str("addr", addr).Msg("Starting bridge admin API")
	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type statusResponse struct {
	Sessions     int  `json:"sessions"`
	Users        int  `json:"user_correlations"`
	Rooms        int  `json:"room_correlations"`
	StoreHealthy bool `json:"store_healthy"`
}

func (a *AdminAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := statusResponse{
		Sessions:     a.sessions.Count(),
		StoreHealthy: true,
	}
	users, err := a.store.QueryUsers(r.Context(), func(id.UserID, *UserCorrelation) bool { return true })
	if err != nil {
		resp.StoreHealthy = false
	} else {
		resp.Users = len(users)
	}
	rooms, err := a.store.QueryRooms(r.Context(), func(id.RoomID, *RoomCorrelation) bool { return true })
	if err != nil {
		resp.StoreHealthy = false
	} else {
		resp.Rooms = len(rooms)
	}

	a.writeJSON(w, resp)
}

type sessionInfo struct {
	ConsumerMXID string `json:"consumer_mxid"`
	RemoteSelf   string `json:"remote_self"`
	LoggedOn     bool   `json:"logged_on"`
}

func (a *AdminAPI) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos := make([]sessionInfo, 0, a.sessions.Count())
	for _, consumer := range a.sessions.ConsumerIDs() {
		session, ok := a.sessions.Get(consumer)
		if !ok {
			continue
		}
		infos = append(infos, sessionInfo{
			ConsumerMXID: string(consumer),
			RemoteSelf:   string(session.SelfID()),
			LoggedOn:     session.IsLoggedOn(),
		})
	}

	a.writeJSON(w, infos)
}

func (a *AdminAPI) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Warn().Err(err).Msg("Failed to write admin response")
	}
}
