// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"net/http"
	"net/url"

	"go.astrophena.name/feedbell/internal/syncx"
)

// Health returns the [HealthHandler] registered on mux at /health, creating it
// if necessary.
func Health(mux *http.ServeMux) *HealthHandler {
	h, pat := mux.Handler(&http.Request{Method: http.MethodGet, URL: &url.URL{Path: "/health"}})
	if hh, ok := h.(*HealthHandler); ok && pat == "/health" {
		return hh
	}
	ret := &HealthHandler{checks: syncx.Protect(make(map[string]Check))}
	mux.Handle("/health", ret)
	return ret
}

// HealthHandler serves the state of every registered [Check]. It answers 503
// while any critical check fails.
type HealthHandler struct {
	checks *syncx.Protected[map[string]Check]
}

// HealthFunc reports the state of a subsystem. It must be safe for concurrent
// use.
type HealthFunc func() (status string, ok bool)

// Check is a named health check. Critical checks decide the overall health;
// a failing informational check is reported without making the service
// unhealthy.
type Check struct {
	Name     string
	Critical bool
	Func     HealthFunc
}

// Register adds c. It panics if a check named c.Name already exists.
func (h *HealthHandler) Register(c Check) {
	h.checks.WriteAccess(func(checks map[string]Check) {
		if _, dup := checks[c.Name]; dup {
			panic("health: check " + c.Name + " is already registered")
		}
		checks[c.Name] = c
	})
}

// RegisterFunc registers a critical check.
func (h *HealthHandler) RegisterFunc(name string, f HealthFunc) {
	h.Register(Check{Name: name, Critical: true, Func: f})
}

// HealthResponse represents a response of the /health endpoint.
type HealthResponse struct {
	OK     bool                     `json:"ok"`
	Checks map[string]CheckResponse `json:"checks"`
}

// CheckResponse represents a status of an individual check.
type CheckResponse struct {
	Status   string `json:"status"`
	OK       bool   `json:"ok"`
	Critical bool   `json:"critical,omitempty"`
}

// ServeHTTP implements the [http.Handler] interface.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	hr := &HealthResponse{
		OK:     true,
		Checks: make(map[string]CheckResponse),
	}

	h.checks.ReadAccess(func(checks map[string]Check) {
		for _, c := range checks {
			status, ok := c.Func()
			if !ok && c.Critical {
				hr.OK = false
			}
			hr.Checks[c.Name] = CheckResponse{Status: status, OK: ok, Critical: c.Critical}
		}
	})

	w.Header().Set("Content-Type", "application/json")
	if hr.OK {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	respondJSON(w, hr, true)
}
