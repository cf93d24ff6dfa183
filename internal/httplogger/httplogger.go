// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package httplogger provides a http.RoundTripper middleware that logs HTTP
// requests and responses.
package httplogger

import (
	"log/slog"
	"net/http"
	"time"
)

// New returns a http.RoundTripper that logs each request made through t at
// debug level. If t is nil, http.DefaultTransport is used.
func New(t http.RoundTripper, logger *slog.Logger) http.RoundTripper {
	if t == nil {
		t = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingTransport{transport: t, slog: logger}
}

type loggingTransport struct {
	transport http.RoundTripper
	slog      *slog.Logger
}

func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.transport.RoundTrip(r)

	attrs := []any{
		"method", r.Method,
		"url", r.URL.Redacted(),
		"duration", time.Since(start),
	}
	if resp != nil {
		attrs = append(attrs, "status", resp.StatusCode)
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	t.slog.DebugContext(r.Context(), "http request", attrs...)
	return resp, err
}
