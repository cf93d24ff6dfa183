// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package format renders the texts the bot sends.
package format

import (
	"fmt"
	"strings"

	"go.astrophena.name/feedbell/cmd/feedbell/internal/feed"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/sender"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/state"
)

// Messages renders user-facing texts. Prefix is the command prefix, used
// when a text tells people which command to run.
type Messages struct {
	Prefix string
}

func (m Messages) cmd(name string) string { return "`" + m.Prefix + name + "`" }

// Notification is the message announcing a new item to role.
func (m Messages) Notification(role sender.Role, item feed.Item) sender.Message {
	return sender.Message{
		Text:         fmt.Sprintf("%s \nNew update!\nTitle: %s\nLink: %s", role.Mention(), item.Title, link(item.Title, item.Link)),
		MentionRoles: []string{role.ID},
	}
}

// Latest describes the last item a guild was notified about.
func (m Messages) Latest(item state.SeenItem) string {
	return fmt.Sprintf("Latest update:\nTitle: %s\nLink: %s", item.Title, link(item.Title, item.Link))
}

// NoLatest says that no item was seen yet.
func (m Messages) NoLatest() string { return "No latest update found." }

// NotConfigured asks for setup.
func (m Messages) NotConfigured() string {
	return "Bot is not configured. Please ask an admin to use the " + m.cmd("setup") + " command."
}

// Greeting is sent when the bot joins a guild.
func (m Messages) Greeting() string {
	return "Hello! Please use the " + m.cmd("setup") + " command to configure the bot."
}

// Checking acknowledges an on-demand check.
func (m Messages) Checking() string { return "Checking for new updates..." }

// Outcomes of an on-demand check.

func (m Messages) Notified() string { return "New update found and notified." }

func (m Messages) DeliveryFailed() string { return "New update found but failed to notify." }

func (m Messages) PermissionDenied() string {
	return "New update found but failed to notify. Please check my permissions."
}

func (m Messages) NoNewItem() string { return "No new update found." }

func (m Messages) FeedUnavailable() string {
	return "Couldn't read the feed right now. Please try again later."
}

// Setup prompts and replies.

func (m Messages) AskChannel() string {
	return "Please provide the channel ID where I should post updates:"
}

func (m Messages) AskRole() string { return "Now, please provide the role ID to ping for updates:" }

func (m Messages) SetupDone() string { return "Configuration saved! Starting to look for updates..." }

func (m Messages) SetupTimeout() string {
	return "Setup timed out. Please use the " + m.cmd("setup") + " command to try again."
}

func (m Messages) SetupInvalidInput() string {
	return "That doesn't look like a valid ID. Please use the " + m.cmd("setup") + " command to try again."
}

func (m Messages) SetupForbidden() string {
	return "I don't have permission to send messages in this channel. Please check my permissions and try again."
}

func (m Messages) SetupNotAdmin() string {
	return "You need the Administrator permission to run " + m.cmd("setup") + "."
}

var escaper = strings.NewReplacer("[", `\[`, "]", `\]`)

// link renders a Markdown link, escaping brackets in the title.
func link(title, url string) string {
	return "[" + escaper.Replace(title) + "](" + url + ")"
}
