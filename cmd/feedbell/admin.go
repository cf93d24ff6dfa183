// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"fmt"
	"net/http"

	"go.astrophena.name/feedbell/cmd/feedbell/internal/setup"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/state"
	"go.astrophena.name/feedbell/internal/web"
)

type guildInfo struct {
	state.GuildConfig
	Seen *state.SeenItem `json:"seen,omitempty"`
}

func (a *app) adminMux(svc *service, discordReady func() bool) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		web.RespondJSONError(a.logf, w, fmt.Errorf("%s: %w", r.URL.Path, web.ErrNotFound))
	})

	mux.HandleFunc("GET /api/guilds", func(w http.ResponseWriter, r *http.Request) {
		seen := svc.seen.All()
		guilds := []guildInfo{}
		for _, cfg := range svc.configs.All() {
			gi := guildInfo{GuildConfig: cfg}
			if item, ok := seen[cfg.GuildID]; ok {
				gi.Seen = &item
			}
			guilds = append(guilds, gi)
		}
		web.RespondJSON(w, guilds)
	})

	mux.HandleFunc("GET /api/stats", func(w http.ResponseWriter, r *http.Request) {
		web.RespondJSON(w, svc.sched.Stats())
	})

	mux.HandleFunc("POST /api/guilds/{id}/check", func(w http.ResponseWriter, r *http.Request) {
		id, err := setup.ParseID(r.PathValue("id"))
		if err != nil {
			web.RespondJSONError(a.logf, w, fmt.Errorf("%w: %v", web.ErrBadRequest, err))
			return
		}
		if !discordReady() {
			web.RespondJSONError(a.logf, w, fmt.Errorf("%w: not connected to Discord", web.ErrServiceUnavailable))
			return
		}
		// The check outlives a client that hangs up.
		web.RespondJSON(w, svc.checker.Check(context.WithoutCancel(r.Context()), id, nil))
	})

	// Without a method, these patterns only catch requests the routes above
	// don't accept.
	for path, allow := range map[string]string{
		"/api/guilds":            "GET, HEAD",
		"/api/stats":             "GET, HEAD",
		"/api/guilds/{id}/check": http.MethodPost,
	} {
		mux.HandleFunc(path, a.methodNotAllowed(allow))
	}

	health := web.Health(mux)
	health.RegisterFunc("discord", func() (string, bool) {
		if discordReady() {
			return "connected", true
		}
		return "not connected", false
	})
	health.Register(web.Check{
		Name: "scheduler",
		Func: func() (string, bool) {
			if svc.sched.Running() {
				return "running", true
			}
			return "waiting for setup", false
		},
	})

	return mux
}

func (a *app) methodNotAllowed(allow string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allow)
		web.RespondJSONError(a.logf, w, fmt.Errorf("%s %s: %w", r.Method, r.URL.Path, web.ErrMethodNotAllowed))
	}
}
