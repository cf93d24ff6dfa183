// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package setup implements the conversation in which a guild administrator
// tells the bot where to post updates and whom to ping.
package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.astrophena.name/feedbell/cmd/feedbell/internal/format"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/sender"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/state"
)

// DefaultTimeout is how long each prompt waits for an answer.
const DefaultTimeout = 300 * time.Second

var (
	// ErrTimeout is returned when the requester doesn't answer in time.
	ErrTimeout = errors.New("setup timed out")
	// ErrInvalidInput is returned when an answer is not a valid ID.
	ErrInvalidInput = errors.New("invalid ID")
	// ErrPermissionDenied is returned when the bot can't post prompts.
	ErrPermissionDenied = errors.New("can't prompt in this channel")
	// ErrNotAdmin is returned when the requester is not an administrator.
	ErrNotAdmin = errors.New("requester is not an administrator")
)

// Dialog is a conversation with one person in one channel.
type Dialog interface {
	// Send posts text to the channel.
	Send(ctx context.Context, text string) error
	// Await returns the next message of the person in the channel. It
	// returns ctx.Err() once ctx is done.
	Await(ctx context.Context) (string, error)
}

// Starter is started after a successful setup.
type Starter interface {
	Start(ctx context.Context)
}

// Request is a request to configure a guild.
type Request struct {
	GuildID string
	UserID  string
	IsAdmin bool
	Dialog  Dialog
}

// Config configures a [Conversation].
type Config struct {
	Configs  *state.Configs
	Starter  Starter
	Messages format.Messages
	Timeout  time.Duration // DefaultTimeout if zero
	Logger   *slog.Logger
}

// Conversation runs setup conversations. Any number of them may run at once.
type Conversation struct {
	configs *state.Configs
	starter Starter
	msgs    format.Messages
	timeout time.Duration
	slog    *slog.Logger
}

// New returns a Conversation.
func New(cfg Config) *Conversation {
	c := &Conversation{
		configs: cfg.Configs,
		starter: cfg.Starter,
		msgs:    cfg.Messages,
		timeout: cfg.Timeout,
		slog:    cfg.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.slog == nil {
		c.slog = slog.Default()
	}
	return c
}

// Run asks for a channel ID and a role ID and stores them for the guild.
// On failure the stored configuration is left as it was.
func (c *Conversation) Run(ctx context.Context, req Request) (state.GuildConfig, error) {
	if !req.IsAdmin {
		return state.GuildConfig{}, ErrNotAdmin
	}

	channelID, err := c.ask(ctx, req.Dialog, c.msgs.AskChannel())
	if err != nil {
		return state.GuildConfig{}, fmt.Errorf("asking for channel: %w", err)
	}
	roleID, err := c.ask(ctx, req.Dialog, c.msgs.AskRole())
	if err != nil {
		return state.GuildConfig{}, fmt.Errorf("asking for role: %w", err)
	}

	cfg := state.GuildConfig{GuildID: req.GuildID, ChannelID: channelID, RoleID: roleID}
	c.configs.Put(cfg)
	c.slog.Info("guild configured", "guild", cfg.GuildID, "channel", cfg.ChannelID, "role", cfg.RoleID, "by", req.UserID)

	if err := req.Dialog.Send(ctx, c.msgs.SetupDone()); err != nil {
		c.slog.Warn("failed to confirm setup", "guild", cfg.GuildID, "error", err)
	}
	if c.starter != nil {
		c.starter.Start(ctx)
	}
	return cfg, nil
}

func (c *Conversation) ask(ctx context.Context, d Dialog, prompt string) (string, error) {
	if err := d.Send(ctx, prompt); err != nil {
		if errors.Is(err, sender.ErrPermissionDenied) {
			return "", fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return "", err
	}

	wctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	answer, err := d.Await(wctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", ErrTimeout
		}
		return "", err
	}
	return ParseID(answer)
}

// ParseID validates a Discord ID and returns it in canonical form.
func ParseID(s string) (string, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidInput, s)
	}
	return strconv.FormatUint(id, 10), nil
}

// Reply returns what to tell the requester after Run returned err.
func (c *Conversation) Reply(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotAdmin):
		return c.msgs.SetupNotAdmin()
	case errors.Is(err, ErrTimeout):
		return c.msgs.SetupTimeout()
	case errors.Is(err, ErrInvalidInput):
		return c.msgs.SetupInvalidInput()
	case errors.Is(err, ErrPermissionDenied):
		return c.msgs.SetupForbidden()
	}
	return ""
}
