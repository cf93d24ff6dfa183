// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package systemd tells systemd about service readiness and keeps its
// watchdog fed.
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"
)

// State is an sd_notify message.
// See https://www.freedesktop.org/software/systemd/man/sd_notify.html.
type State string

const (
	// Ready tells the service manager that startup is finished.
	Ready State = "READY=1"
	// Stopping tells the service manager that the service is shutting down.
	Stopping State = "STOPPING=1"
	// Watchdog updates the watchdog timestamp.
	Watchdog State = "WATCHDOG=1"
)

// Notifier sends sd_notify messages. A Notifier for a process not started by
// systemd does nothing.
type Notifier struct {
	socket   string
	watchdog time.Duration
	slog     *slog.Logger
}

// New returns a Notifier configured from the NOTIFY_SOCKET and WATCHDOG_USEC
// environment variables.
func New(getenv func(string) string, logger *slog.Logger) (*Notifier, error) {
	n := &Notifier{socket: getenv("NOTIFY_SOCKET"), slog: logger}
	if n.slog == nil {
		n.slog = slog.Default()
	}
	if s := getenv("WATCHDOG_USEC"); s != "" {
		usec, err := strconv.Atoi(s)
		if err != nil || usec <= 0 {
			return nil, fmt.Errorf("systemd: WATCHDOG_USEC must be a positive number, got %q", s)
		}
		n.watchdog = time.Duration(usec) * time.Microsecond
	}
	return n, nil
}

// Enabled reports whether the process runs under systemd.
func (n *Notifier) Enabled() bool { return n.socket != "" }

// Notify sends state. Failures are logged.
func (n *Notifier) Notify(state State) {
	if !n.Enabled() {
		return
	}
	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Net: "unixgram", Name: n.socket})
	if err != nil {
		n.slog.Warn("systemd: notify failed", "state", state, "error", err)
		return
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(state)); err != nil {
		n.slog.Warn("systemd: notify failed", "state", state, "error", err)
	}
}

// Watchdog feeds the watchdog at half its interval until ctx is done. It
// returns at once if the watchdog is off.
func (n *Notifier) Watchdog(ctx context.Context) error {
	if !n.Enabled() || n.watchdog == 0 {
		return nil
	}
	ticker := time.NewTicker(n.watchdog / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.Notify(Watchdog)
		case <-ctx.Done():
			n.Notify(Stopping)
			return nil
		}
	}
}
