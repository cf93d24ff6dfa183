// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package checker decides whether a guild has a new feed item to be told
// about and delivers the notification.
package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.astrophena.name/feedbell/cmd/feedbell/internal/feed"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/format"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/sender"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/state"
)

// Outcome is what a check ended with.
type Outcome string

const (
	NotConfigured             Outcome = "not_configured"
	NoNewItem                 Outcome = "no_new_item"
	Notified                  Outcome = "notified"
	NotifiedButDeliveryFailed Outcome = "notified_but_delivery_failed"
	FeedUnavailable           Outcome = "feed_unavailable"
)

// Reason tells apart failures that share an [Outcome].
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonFetchFailed      Reason = "fetch_failed"
	ReasonEmptyFeed        Reason = "empty_feed"
	ReasonTargetNotFound   Reason = "target_not_found"
	ReasonPermissionDenied Reason = "permission_denied"
	ReasonDeliveryFailed   Reason = "delivery_failed"
)

// Result describes a finished check.
type Result struct {
	GuildID string     `json:"guild_id"`
	Outcome Outcome    `json:"outcome"`
	Reason  Reason     `json:"reason,omitempty"`
	Item    *feed.Item `json:"item,omitempty"`
	Err     error      `json:"-"`
}

// Snapshot is the result of one feed fetch, shared by every guild checked
// in a tick.
type Snapshot struct {
	Items []feed.Item
	Err   error
}

// Config configures a [Checker].
type Config struct {
	Source    feed.Source
	Configs   *state.Configs
	Seen      *state.Seen
	Directory sender.Directory
	Sink      sender.Sink
	Messages  format.Messages
	Logger    *slog.Logger
}

// Checker runs update checks. It keeps no state of its own: everything lives
// in the stores it was given, so any number of checks may run at once.
type Checker struct {
	src     feed.Source
	configs *state.Configs
	seen    *state.Seen
	dir     sender.Directory
	sink    sender.Sink
	msgs    format.Messages
	slog    *slog.Logger
}

// New returns a Checker.
func New(cfg Config) *Checker {
	c := &Checker{
		src:     cfg.Source,
		configs: cfg.Configs,
		seen:    cfg.Seen,
		dir:     cfg.Directory,
		sink:    cfg.Sink,
		msgs:    cfg.Messages,
		slog:    cfg.Logger,
	}
	if c.slog == nil {
		c.slog = slog.Default()
	}
	return c
}

// Fetch fetches the feed once.
func (c *Checker) Fetch(ctx context.Context) Snapshot {
	items, err := c.src.Fetch(ctx)
	return Snapshot{Items: items, Err: err}
}

// Check checks a single guild against a fresh copy of the feed. If r is not
// nil, a summary of the result is sent to it.
func (c *Checker) Check(ctx context.Context, guildID string, r sender.Replier) Result {
	if _, ok := c.configs.Get(guildID); !ok {
		return c.finish(ctx, Result{GuildID: guildID, Outcome: NotConfigured}, r)
	}
	return c.CheckSnapshot(ctx, guildID, c.Fetch(ctx), r)
}

// CheckSnapshot checks a single guild against snap.
//
// Once the first item of the feed is found to differ from what the guild saw
// last, it becomes the guild's seen item whether or not the notification
// gets delivered. A guild whose channel or role stays broken therefore
// silently skips items instead of retrying them. Delivery of a recorded item
// is not canceled with ctx.
func (c *Checker) CheckSnapshot(ctx context.Context, guildID string, snap Snapshot, r sender.Replier) Result {
	res := Result{GuildID: guildID}

	cfg, ok := c.configs.Get(guildID)
	if !ok {
		res.Outcome = NotConfigured
		return c.finish(ctx, res, r)
	}

	if snap.Err != nil {
		res.Outcome, res.Reason, res.Err = FeedUnavailable, ReasonFetchFailed, snap.Err
		return c.finish(ctx, res, r)
	}
	item, err := feed.Latest(snap.Items)
	if err != nil {
		res.Outcome, res.Reason, res.Err = FeedUnavailable, ReasonEmptyFeed, err
		return c.finish(ctx, res, r)
	}
	res.Item = &item

	if !c.seen.Advance(guildID, item) {
		res.Outcome = NoNewItem
		return c.finish(ctx, res, r)
	}

	res.Outcome = Notified
	if reason, err := c.deliver(context.WithoutCancel(ctx), cfg, item); err != nil {
		res.Outcome, res.Reason, res.Err = NotifiedButDeliveryFailed, reason, err
	}
	return c.finish(ctx, res, r)
}

func (c *Checker) deliver(ctx context.Context, cfg state.GuildConfig, item feed.Item) (Reason, error) {
	ch, err := c.dir.Channel(ctx, cfg.ChannelID)
	if err != nil {
		return lookupReason(err), fmt.Errorf("resolving channel %s: %w", cfg.ChannelID, err)
	}
	if ch.GuildID != "" && ch.GuildID != cfg.GuildID {
		return ReasonTargetNotFound, fmt.Errorf("channel %s belongs to guild %s: %w", ch.ID, ch.GuildID, sender.ErrNotFound)
	}
	role, err := c.dir.Role(ctx, cfg.GuildID, cfg.RoleID)
	if err != nil {
		return lookupReason(err), fmt.Errorf("resolving role %s: %w", cfg.RoleID, err)
	}

	if err := c.sink.Send(ctx, ch, c.msgs.Notification(role, item)); err != nil {
		if errors.Is(err, sender.ErrPermissionDenied) {
			return ReasonPermissionDenied, err
		}
		return ReasonDeliveryFailed, err
	}
	return ReasonNone, nil
}

func lookupReason(err error) Reason {
	switch {
	case errors.Is(err, sender.ErrNotFound):
		return ReasonTargetNotFound
	case errors.Is(err, sender.ErrPermissionDenied):
		return ReasonPermissionDenied
	}
	return ReasonDeliveryFailed
}

func (c *Checker) finish(ctx context.Context, res Result, r sender.Replier) Result {
	c.log(res)
	if r == nil {
		return res
	}
	if err := r.Reply(ctx, c.Summary(res)); err != nil {
		c.slog.Warn("failed to report check result", "guild", res.GuildID, "outcome", res.Outcome, "error", err)
	}
	return res
}

func (c *Checker) log(res Result) {
	attrs := []any{"guild", res.GuildID, "outcome", res.Outcome}
	if res.Item != nil {
		attrs = append(attrs, "item", res.Item.Link)
	}
	if res.Reason != ReasonNone {
		attrs = append(attrs, "reason", res.Reason)
	}
	if res.Err != nil {
		attrs = append(attrs, "error", res.Err)
	}

	switch res.Outcome {
	case Notified:
		c.slog.Info("notified guild", attrs...)
	case NotifiedButDeliveryFailed, FeedUnavailable:
		c.slog.Warn("check failed", attrs...)
	default:
		c.slog.Debug("checked guild", attrs...)
	}
}

// Summary renders res for the person who asked for the check.
func (c *Checker) Summary(res Result) string {
	switch res.Outcome {
	case NotConfigured:
		return c.msgs.NotConfigured()
	case NoNewItem:
		return c.msgs.NoNewItem()
	case Notified:
		return c.msgs.Notified()
	case NotifiedButDeliveryFailed:
		if res.Reason == ReasonPermissionDenied {
			return c.msgs.PermissionDenied()
		}
		return c.msgs.DeliveryFailed()
	case FeedUnavailable:
		return c.msgs.FeedUnavailable()
	}
	return string(res.Outcome)
}
