// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"

	"go.astrophena.name/feedbell/cmd/feedbell/internal/sender"
)

// rest is the part of the Discord REST API the bot calls.
type rest interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Client resolves channels and roles and posts messages. Lookups try the
// gateway state cache before the REST API.
type Client struct {
	rest  rest
	state *discordgo.State // may be nil
}

// Channel implements [sender.Directory].
func (c *Client) Channel(ctx context.Context, id string) (sender.Channel, error) {
	if c.state != nil {
		if ch, err := c.state.Channel(id); err == nil {
			return toChannel(ch), nil
		}
	}
	ch, err := c.rest.Channel(id, discordgo.WithContext(ctx))
	if err != nil {
		return sender.Channel{}, fmt.Errorf("fetching channel %s: %w", id, mapError(err))
	}
	return toChannel(ch), nil
}

// Role implements [sender.Directory].
func (c *Client) Role(ctx context.Context, guildID, id string) (sender.Role, error) {
	if c.state != nil {
		if r, err := c.state.Role(guildID, id); err == nil {
			return toRole(guildID, r), nil
		}
	}
	roles, err := c.rest.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return sender.Role{}, fmt.Errorf("fetching roles of guild %s: %w", guildID, mapError(err))
	}
	r, ok := lo.Find(roles, func(r *discordgo.Role) bool { return r.ID == id })
	if !ok {
		return sender.Role{}, fmt.Errorf("role %s in guild %s: %w", id, guildID, sender.ErrNotFound)
	}
	return toRole(guildID, r), nil
}

// Send implements [sender.Sink]. Only the roles listed in msg get pinged.
func (c *Client) Send(ctx context.Context, ch sender.Channel, msg sender.Message) error {
	return c.post(ctx, ch.ID, msg)
}

// Replier returns a [sender.Replier] posting to channelID without pinging
// anybody.
func (c *Client) Replier(channelID string) sender.Replier {
	return replier{c: c, channelID: channelID}
}

func (c *Client) post(ctx context.Context, channelID string, msg sender.Message) error {
	_, err := c.rest.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: msg.Text,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{},
			Roles: msg.MentionRoles,
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("posting to channel %s: %w", channelID, mapError(err))
	}
	return nil
}

type replier struct {
	c         *Client
	channelID string
}

func (r replier) Reply(ctx context.Context, text string) error {
	return r.c.post(ctx, r.channelID, sender.Message{Text: text})
}

func toChannel(ch *discordgo.Channel) sender.Channel {
	return sender.Channel{ID: ch.ID, GuildID: ch.GuildID, Name: ch.Name}
}

func toRole(guildID string, r *discordgo.Role) sender.Role {
	return sender.Role{ID: r.ID, GuildID: guildID, Name: r.Name}
}

// mapError translates Discord API errors to the sender package errors.
func mapError(err error) error {
	var rerr *discordgo.RESTError
	if !errors.As(err, &rerr) {
		return err
	}
	var code, status int
	if rerr.Message != nil {
		code = rerr.Message.Code
	}
	if rerr.Response != nil {
		status = rerr.Response.StatusCode
	}

	switch {
	case code == discordgo.ErrCodeMissingAccess, code == discordgo.ErrCodeMissingPermissions, status == http.StatusForbidden:
		return fmt.Errorf("%w: %v", sender.ErrPermissionDenied, err)
	case code == discordgo.ErrCodeUnknownChannel, code == discordgo.ErrCodeUnknownRole, status == http.StatusNotFound:
		return fmt.Errorf("%w: %v", sender.ErrNotFound, err)
	}
	return err
}

var (
	_ sender.Directory = (*Client)(nil)
	_ sender.Sink      = (*Client)(nil)
	_ rest             = (*discordgo.Session)(nil)
)
