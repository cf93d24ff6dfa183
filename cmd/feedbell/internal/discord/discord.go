// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package discord connects the bot to Discord.
package discord

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"

	"go.astrophena.name/feedbell/cmd/feedbell/internal/bot"
	"go.astrophena.name/feedbell/internal/syncx"
)

// Intents the bot needs: guild lifecycle, guild messages and their content
// for commands and setup answers.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

// A guild is greeted if the bot joined it less than joinWindow ago. Discord
// also sends GuildCreate for every known guild on connect, so a reconnect
// inside the window repeats it; each guild is greeted once per process.
const joinWindow = 5 * time.Minute

// ErrNoToken is returned by [New] when no bot token is given.
var ErrNoToken = errors.New("no Discord bot token")

// Config configures a [Conn].
type Config struct {
	Token   string
	Prefix  string
	OnReady func() // called on every Ready event
	Logger  *slog.Logger
}

// Conn is a gateway connection plus a REST client.
type Conn struct {
	s       *discordgo.Session
	client  *Client
	prefix  string
	onReady func()
	slog    *slog.Logger

	ctx     context.Context // set by Run
	bot     *bot.Bot        // set by Run
	ready   atomic.Bool
	greeted *syncx.Protected[map[string]bool]
}

// New creates a connection. It doesn't connect until Run is called.
func New(cfg Config) (*Conn, error) {
	if cfg.Token == "" {
		return nil, ErrNoToken
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	s.Identify.Intents = Intents

	c := newConn(&Client{rest: s, state: s.State}, cfg)
	c.s = s
	return c, nil
}

func newConn(client *Client, cfg Config) *Conn {
	c := &Conn{
		client:  client,
		prefix:  cmp.Or(cfg.Prefix, "!"),
		onReady: cfg.OnReady,
		slog:    cfg.Logger,
		ctx:     context.Background(),
		greeted: syncx.Protect(make(map[string]bool)),
	}
	if c.slog == nil {
		c.slog = slog.Default()
	}
	if c.onReady == nil {
		c.onReady = func() {}
	}
	return c
}

// Client returns the REST client of the connection.
func (c *Conn) Client() *Client { return c.client }

// Ready reports whether the gateway session is up.
func (c *Conn) Ready() bool { return c.ready.Load() }

// Run connects to the gateway and dispatches events to b until ctx is done.
func (c *Conn) Run(ctx context.Context, b *bot.Bot) error {
	c.ctx, c.bot = ctx, b

	discordgo.Logger = func(level, _ int, format string, a ...any) {
		c.slog.Debug(fmt.Sprintf(format, a...), "source", "discordgo", "level", level)
	}
	c.s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		c.ready.Store(true)
		c.slog.Info("connected to Discord", "user", r.User.String(), "guilds", len(r.Guilds))
		c.onReady()
	})
	c.s.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) { c.ready.Store(true) })
	c.s.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		c.ready.Store(false)
		c.slog.Warn("disconnected from Discord")
	})
	c.s.AddHandler(c.onMessageCreate)
	c.s.AddHandler(c.onGuildCreate)

	if err := c.s.Open(); err != nil {
		return fmt.Errorf("connecting to Discord: %w", err)
	}
	<-ctx.Done()
	c.ready.Store(false)
	return c.s.Close()
}

func (c *Conn) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	c.route(bot.Message{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		AuthorID:  m.Author.ID,
		Content:   m.Content,
	}, func() bool { return isAdmin(s, m.Message) })
}

// route gives msg to a waiting setup conversation, or else treats it as a
// command.
func (c *Conn) route(msg bot.Message, admin func() bool) {
	if c.bot.Inbox().Deliver(msg) {
		return
	}
	name, ok := bot.ParseCommand(c.prefix, msg.Content)
	if !ok {
		return
	}
	c.bot.Handle(c.ctx, bot.Command{
		Name:      name,
		GuildID:   msg.GuildID,
		ChannelID: msg.ChannelID,
		AuthorID:  msg.AuthorID,
		IsAdmin:   name == bot.CmdSetup && admin(),
	}, c.client.Replier(msg.ChannelID))
}

func (c *Conn) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Unavailable {
		return
	}
	var self string
	if s.State.User != nil {
		self = s.State.User.ID
	}
	c.greet(g.Guild, time.Now(), func(channelID string) bool {
		perms, err := s.State.UserChannelPermissions(self, channelID)
		return err == nil && perms&discordgo.PermissionSendMessages != 0
	})
}

// greet welcomes a guild the bot has just joined, unless it was already
// greeted.
func (c *Conn) greet(g *discordgo.Guild, now time.Time, canSend func(channelID string) bool) {
	if now.Sub(g.JoinedAt) > joinWindow {
		return
	}
	var first bool
	c.greeted.WriteAccess(func(m map[string]bool) {
		first = !m[g.ID]
		m[g.ID] = true
	})
	if !first {
		return
	}
	channelID := greetingChannel(g, canSend)
	if channelID == "" {
		c.slog.Warn("no channel to greet guild in", "guild", g.ID)
		return
	}
	c.bot.GuildJoined(c.ctx, g.ID, c.client.Replier(channelID))
}

// greetingChannel picks the system channel of g, or else the topmost text
// channel the bot can post in.
func greetingChannel(g *discordgo.Guild, canSend func(channelID string) bool) string {
	if g.SystemChannelID != "" && canSend(g.SystemChannelID) {
		return g.SystemChannelID
	}
	text := lo.Filter(g.Channels, func(ch *discordgo.Channel, _ int) bool {
		return ch.Type == discordgo.ChannelTypeGuildText
	})
	slices.SortStableFunc(text, func(a, b *discordgo.Channel) int { return cmp.Compare(a.Position, b.Position) })
	ch, ok := lo.Find(text, func(ch *discordgo.Channel) bool { return canSend(ch.ID) })
	if !ok {
		return ""
	}
	return ch.ID
}

func isAdmin(s *discordgo.Session, m *discordgo.Message) bool {
	perms, err := s.State.MessagePermissions(m)
	if err != nil {
		perms, err = s.UserChannelPermissions(m.Author.ID, m.ChannelID)
		if err != nil {
			return false
		}
	}
	return perms&discordgo.PermissionAdministrator != 0
}
