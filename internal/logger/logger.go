// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package logger sets up structured logging and keeps recent log lines in
// memory so they can be streamed over HTTP.
package logger

import (
	"context"
	"io"
	"log/slog"
)

// Logf is the basic logger type: a printf-like func. Like [log.Printf], the
// format need not end in a newline. Logf functions must be safe for concurrent
// use.
type Logf func(format string, args ...any)

// Write implements the [io.Writer] interface.
func (f Logf) Write(p []byte) (n int, err error) {
	f("%s", p)
	return len(p), nil
}

// streamSize is how many recent lines a [Logger] keeps.
const streamSize = 300

// Logger bundles a [slog.Logger] with its level and recent output.
type Logger struct {
	*slog.Logger
	Level    *slog.LevelVar
	Streamer Streamer
}

// New returns a Logger writing text records to w and to an in-memory
// [Streamer].
func New(w io.Writer) *Logger {
	l := &Logger{
		Level:    new(slog.LevelVar),
		Streamer: NewStreamer(streamSize),
	}
	l.Logger = slog.New(slog.NewTextHandler(io.MultiWriter(w, l.Streamer), &slog.HandlerOptions{
		Level: l.Level,
	}))
	return l
}

type ctxKey struct{}

// Put returns a copy of ctx carrying l.
func Put(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// Get returns the Logger carried by ctx, or a Logger that discards
// everything if there is none.
func Get(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return New(io.Discard)
}
