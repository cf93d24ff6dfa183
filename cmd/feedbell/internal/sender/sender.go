// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package sender defines the boundary between the bot and the chat platform:
// looking up channels and roles and delivering messages.
package sender

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a channel or role doesn't exist or isn't
	// visible to the bot.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied is returned when the platform refuses an action
	// because the bot lacks permissions.
	ErrPermissionDenied = errors.New("permission denied")
)

// Channel is a resolved text channel.
type Channel struct {
	ID      string
	GuildID string
	Name    string
}

// Role is a resolved guild role.
type Role struct {
	ID      string
	GuildID string
	Name    string
}

// Mention returns the markup that pings the role.
func (r Role) Mention() string { return "<@&" + r.ID + ">" }

// Message is an outgoing message.
type Message struct {
	Text string
	// MentionRoles lists the only roles the message is allowed to ping.
	MentionRoles []string
}

// Directory resolves IDs into channels and roles. Both methods return an
// error wrapping [ErrNotFound] when the target doesn't exist.
type Directory interface {
	Channel(ctx context.Context, id string) (Channel, error)
	Role(ctx context.Context, guildID, id string) (Role, error)
}

// Sink delivers messages. Send returns an error wrapping
// [ErrPermissionDenied] when the bot may not post in the channel.
type Sink interface {
	Send(ctx context.Context, ch Channel, msg Message) error
}

// Replier answers whoever issued a command, in the channel they used.
type Replier interface {
	Reply(ctx context.Context, text string) error
}
