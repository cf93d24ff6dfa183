// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package state holds per-guild configuration and the last item each guild
// was notified about. Both live in memory for the lifetime of the process.
package state

import (
	"cmp"
	"slices"

	"go.astrophena.name/feedbell/cmd/feedbell/internal/feed"
	"go.astrophena.name/feedbell/internal/syncx"

	"github.com/samber/lo"
)

// GuildConfig binds a guild to the channel that receives notifications and
// the role they mention.
type GuildConfig struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	RoleID    string `json:"role_id"`
}

// Configs maps guild IDs to their [GuildConfig]. It is safe for concurrent
// use.
type Configs struct {
	m *syncx.Protected[map[string]GuildConfig]
}

// NewConfigs returns an empty Configs.
func NewConfigs() *Configs {
	return &Configs{m: syncx.Protect(make(map[string]GuildConfig))}
}

// Get returns the configuration of a guild.
func (c *Configs) Get(guildID string) (cfg GuildConfig, ok bool) {
	c.m.ReadAccess(func(m map[string]GuildConfig) {
		cfg, ok = m[guildID]
	})
	return cfg, ok
}

// Put stores cfg, replacing whatever the guild had before.
func (c *Configs) Put(cfg GuildConfig) {
	c.m.WriteAccess(func(m map[string]GuildConfig) {
		m[cfg.GuildID] = cfg
	})
}

// IDs returns the IDs of all configured guilds, sorted.
func (c *Configs) IDs() []string {
	var ids []string
	c.m.ReadAccess(func(m map[string]GuildConfig) {
		ids = lo.Keys(m)
	})
	slices.Sort(ids)
	return ids
}

// All returns every configuration, sorted by guild ID.
func (c *Configs) All() []GuildConfig {
	var all []GuildConfig
	c.m.ReadAccess(func(m map[string]GuildConfig) {
		all = lo.Values(m)
	})
	slices.SortFunc(all, func(a, b GuildConfig) int {
		return cmp.Compare(a.GuildID, b.GuildID)
	})
	return all
}

// SeenItem is the last item a guild was notified about, whether or not the
// notification was delivered.
type SeenItem struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// Seen maps guild IDs to their [SeenItem]. It is safe for concurrent use.
type Seen struct {
	m *syncx.Protected[map[string]SeenItem]
}

// NewSeen returns an empty Seen.
func NewSeen() *Seen {
	return &Seen{m: syncx.Protect(make(map[string]SeenItem))}
}

// Get returns the last seen item of a guild.
func (s *Seen) Get(guildID string) (item SeenItem, ok bool) {
	s.m.ReadAccess(func(m map[string]SeenItem) {
		item, ok = m[guildID]
	})
	return item, ok
}

// Advance records candidate as the guild's seen item if its link differs
// from the stored one, or if nothing is stored yet, and reports whether it
// did. The comparison and the write happen under one lock, so of several
// concurrent calls with the same candidate exactly one returns true.
//
// Titles are not compared.
func (s *Seen) Advance(guildID string, candidate feed.Item) (novel bool) {
	s.m.WriteAccess(func(m map[string]SeenItem) {
		if prev, ok := m[guildID]; ok && prev.Link == candidate.Link {
			return
		}
		m[guildID] = SeenItem{Title: candidate.Title, Link: candidate.Link}
		novel = true
	})
	return novel
}

// All returns a copy of every seen item keyed by guild ID.
func (s *Seen) All() map[string]SeenItem {
	var all map[string]SeenItem
	s.m.ReadAccess(func(m map[string]SeenItem) {
		all = lo.Assign(m)
	})
	return all
}
