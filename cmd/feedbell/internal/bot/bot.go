// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package bot routes chat commands to the setup conversation and the update
// checker.
package bot

import (
	"context"
	"log/slog"
	"strings"

	"go.astrophena.name/feedbell/cmd/feedbell/internal/checker"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/format"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/sender"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/setup"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/state"
)

// Command names.
const (
	CmdSetup  = "setup"
	CmdLatest = "latest"
	CmdCheck  = "check"
)

// Command is a command issued in a guild channel.
type Command struct {
	Name      string
	GuildID   string
	ChannelID string
	AuthorID  string
	IsAdmin   bool
}

// ParseCommand returns the command name in content if it starts with
// prefix.
func ParseCommand(prefix, content string) (name string, ok bool) {
	if prefix == "" {
		return "", false
	}
	rest, ok := strings.CutPrefix(strings.TrimSpace(content), prefix)
	if !ok {
		return "", false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 || rest[0] == ' ' {
		return "", false
	}
	return fields[0], true
}

// Config configures a [Bot].
type Config struct {
	Checker  *checker.Checker
	Setup    *setup.Conversation
	Configs  *state.Configs
	Seen     *state.Seen
	Inbox    *Inbox
	Messages format.Messages
	Logger   *slog.Logger
}

// Bot handles commands.
type Bot struct {
	checker *checker.Checker
	setup   *setup.Conversation
	configs *state.Configs
	seen    *state.Seen
	inbox   *Inbox
	msgs    format.Messages
	slog    *slog.Logger
}

// New returns a Bot.
func New(cfg Config) *Bot {
	b := &Bot{
		checker: cfg.Checker,
		setup:   cfg.Setup,
		configs: cfg.Configs,
		seen:    cfg.Seen,
		inbox:   cfg.Inbox,
		msgs:    cfg.Messages,
		slog:    cfg.Logger,
	}
	if b.inbox == nil {
		b.inbox = NewInbox()
	}
	if b.slog == nil {
		b.slog = slog.Default()
	}
	return b
}

// Inbox returns the inbox the setup conversation waits on.
func (b *Bot) Inbox() *Inbox { return b.inbox }

// Handle runs cmd, replying through r. Unknown commands are ignored. It
// reports whether cmd was known.
func (b *Bot) Handle(ctx context.Context, cmd Command, r sender.Replier) bool {
	if cmd.GuildID == "" {
		return false
	}
	switch cmd.Name {
	case CmdSetup:
		b.handleSetup(ctx, cmd, r)
	case CmdLatest:
		b.reply(ctx, r, b.latest(cmd.GuildID))
	case CmdCheck:
		b.reply(ctx, r, b.msgs.Checking())
		b.checker.Check(ctx, cmd.GuildID, r)
	default:
		return false
	}
	b.slog.Debug("handled command", "command", cmd.Name, "guild", cmd.GuildID, "user", cmd.AuthorID)
	return true
}

// GuildJoined greets a guild the bot was added to.
func (b *Bot) GuildJoined(ctx context.Context, guildID string, r sender.Replier) {
	if err := r.Reply(ctx, b.msgs.Greeting()); err != nil {
		b.slog.Warn("failed to greet guild", "guild", guildID, "error", err)
	}
}

func (b *Bot) handleSetup(ctx context.Context, cmd Command, r sender.Replier) {
	_, err := b.setup.Run(ctx, setup.Request{
		GuildID: cmd.GuildID,
		UserID:  cmd.AuthorID,
		IsAdmin: cmd.IsAdmin,
		Dialog: &dialog{
			r:         r,
			inbox:     b.inbox,
			channelID: cmd.ChannelID,
			userID:    cmd.AuthorID,
		},
	})
	if err == nil {
		return
	}
	b.slog.Info("setup failed", "guild", cmd.GuildID, "user", cmd.AuthorID, "error", err)
	if text := b.setup.Reply(err); text != "" {
		b.reply(ctx, r, text)
	}
}

func (b *Bot) latest(guildID string) string {
	if _, ok := b.configs.Get(guildID); !ok {
		return b.msgs.NotConfigured()
	}
	item, ok := b.seen.Get(guildID)
	if !ok {
		return b.msgs.NoLatest()
	}
	return b.msgs.Latest(item)
}

func (b *Bot) reply(ctx context.Context, r sender.Replier, text string) {
	if err := r.Reply(ctx, text); err != nil {
		b.slog.Warn("failed to reply", "error", err)
	}
}

// dialog binds a setup conversation to one person in one channel.
type dialog struct {
	r         sender.Replier
	inbox     *Inbox
	channelID string
	userID    string
}

func (d *dialog) Send(ctx context.Context, text string) error { return d.r.Reply(ctx, text) }

func (d *dialog) Await(ctx context.Context) (string, error) {
	return d.inbox.Await(ctx, d.channelID, d.userID)
}
