// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package chattest provides in-memory stand-ins for the feed and the chat
// platform, for use in tests.
package chattest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.astrophena.name/feedbell/cmd/feedbell/internal/feed"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/sender"
)

// Feed is a [feed.Source] returning whatever was last set.
type Feed struct {
	mu      sync.Mutex
	items   []feed.Item
	err     error
	fetches int
}

// Set replaces the items returned by Fetch and clears any error.
func (f *Feed) Set(items ...feed.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items, f.err = items, nil
}

// Fail makes Fetch return err.
func (f *Feed) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Fetches returns how many times Fetch was called.
func (f *Feed) Fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// Fetch implements [feed.Source].
func (f *Feed) Fetch(context.Context) ([]feed.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	return slices.Clone(f.items), nil
}

// Sent is a message delivered through a [Platform].
type Sent struct {
	ChannelID string
	Message   sender.Message
}

// Platform is an in-memory chat platform implementing [sender.Directory] and
// [sender.Sink].
type Platform struct {
	mu       sync.Mutex
	channels map[string]sender.Channel
	roles    map[string]sender.Role
	denied   map[string]bool
	sendErr  error
	sent     []Sent
}

// NewPlatform returns an empty Platform.
func NewPlatform() *Platform {
	return &Platform{
		channels: make(map[string]sender.Channel),
		roles:    make(map[string]sender.Role),
		denied:   make(map[string]bool),
	}
}

// AddChannel makes a channel resolvable.
func (p *Platform) AddChannel(guildID, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[id] = sender.Channel{ID: id, GuildID: guildID, Name: "channel-" + id}
}

// AddRole makes a role resolvable.
func (p *Platform) AddRole(guildID, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roles[guildID+"/"+id] = sender.Role{ID: id, GuildID: guildID, Name: "role-" + id}
}

// Deny makes sends to a channel fail with [sender.ErrPermissionDenied].
func (p *Platform) Deny(channelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.denied[channelID] = true
}

// FailSends makes every send fail with err.
func (p *Platform) FailSends(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendErr = err
}

// Sent returns every delivered message in order.
func (p *Platform) Sent() []Sent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.sent)
}

// Channel implements [sender.Directory].
func (p *Platform) Channel(_ context.Context, id string) (sender.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[id]
	if !ok {
		return sender.Channel{}, fmt.Errorf("channel %s: %w", id, sender.ErrNotFound)
	}
	return ch, nil
}

// Role implements [sender.Directory].
func (p *Platform) Role(_ context.Context, guildID, id string) (sender.Role, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.roles[guildID+"/"+id]
	if !ok {
		return sender.Role{}, fmt.Errorf("role %s: %w", id, sender.ErrNotFound)
	}
	return r, nil
}

// Send implements [sender.Sink]. Like a real transport, it fails once ctx is
// done.
func (p *Platform) Send(ctx context.Context, ch sender.Channel, msg sender.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.denied[ch.ID] {
		return fmt.Errorf("sending to %s: %w", ch.ID, sender.ErrPermissionDenied)
	}
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent = append(p.sent, Sent{ChannelID: ch.ID, Message: msg})
	return nil
}

// Replies is a [sender.Replier] that records replies.
type Replies struct {
	mu      sync.Mutex
	texts   []string
	failErr error
}

// Fail makes Reply return err without recording anything.
func (r *Replies) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

// Reply implements [sender.Replier].
func (r *Replies) Reply(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	r.texts = append(r.texts, text)
	return nil
}

// Texts returns every recorded reply in order.
func (r *Replies) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.texts)
}

var (
	_ feed.Source      = (*Feed)(nil)
	_ sender.Directory = (*Platform)(nil)
	_ sender.Sink      = (*Platform)(nil)
	_ sender.Replier   = (*Replies)(nil)
)
