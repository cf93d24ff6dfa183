// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package checker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"go.astrophena.name/feedbell/cmd/feedbell/internal/chattest"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/feed"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/format"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/sender"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/state"
	"go.astrophena.name/feedbell/internal/testutil"
)

const (
	guildID   = "100"
	channelID = "200"
	roleID    = "300"
)

var (
	ch10 = feed.Item{Title: "Ch. 10", Link: "https://x/10"}
	ch11 = feed.Item{Title: "Ch. 11", Link: "https://x/11"}
)

type env struct {
	c        *Checker
	feed     *chattest.Feed
	platform *chattest.Platform
	configs  *state.Configs
	seen     *state.Seen
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		feed:     new(chattest.Feed),
		platform: chattest.NewPlatform(),
		configs:  state.NewConfigs(),
		seen:     state.NewSeen(),
	}
	e.platform.AddChannel(guildID, channelID)
	e.platform.AddRole(guildID, roleID)
	e.c = New(Config{
		Source:    e.feed,
		Configs:   e.configs,
		Seen:      e.seen,
		Directory: e.platform,
		Sink:      e.platform,
		Messages:  format.Messages{Prefix: "!"},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return e
}

func (e *env) configure() {
	e.configs.Put(state.GuildConfig{GuildID: guildID, ChannelID: channelID, RoleID: roleID})
}

func TestScenario(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	e.feed.Set(ch10)

	testutil.AssertEqual(t, e.c.Check(ctx, guildID, nil).Outcome, NotConfigured)
	if _, ok := e.seen.Get(guildID); ok {
		t.Fatal("unconfigured check must not touch seen state")
	}

	e.configure()

	testutil.AssertEqual(t, e.c.Check(ctx, guildID, nil).Outcome, Notified)
	seen, _ := e.seen.Get(guildID)
	testutil.AssertEqual(t, seen, state.SeenItem{Title: "Ch. 10", Link: "https://x/10"})
	testutil.AssertEqual(t, e.platform.Sent(), []chattest.Sent{{
		ChannelID: channelID,
		Message: sender.Message{
			Text:         "<@&300> \nNew update!\nTitle: Ch. 10\nLink: [Ch. 10](https://x/10)",
			MentionRoles: []string{roleID},
		},
	}})

	testutil.AssertEqual(t, e.c.Check(ctx, guildID, nil).Outcome, NoNewItem)

	e.feed.Set(ch11, ch10)
	testutil.AssertEqual(t, e.c.Check(ctx, guildID, nil).Outcome, Notified)
	seen, _ = e.seen.Get(guildID)
	testutil.AssertEqual(t, seen, state.SeenItem{Title: "Ch. 11", Link: "https://x/11"})
	testutil.AssertEqual(t, len(e.platform.Sent()), 2)
}

func TestCheck(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		setup      func(e *env)
		want       Result
		wantSeen   *state.SeenItem
		wantSent   int
		wantReply  string
		skipConfig bool
	}{
		"not configured": {
			skipConfig: true,
			setup:      func(e *env) { e.feed.Set(ch10) },
			want:       Result{GuildID: guildID, Outcome: NotConfigured},
			wantReply:  "Bot is not configured. Please ask an admin to use the `!setup` command.",
		},
		"fetch error": {
			setup: func(e *env) { e.feed.Fail(errors.New("connection refused")) },
			want: Result{
				GuildID: guildID,
				Outcome: FeedUnavailable,
				Reason:  ReasonFetchFailed,
			},
			wantReply: "Couldn't read the feed right now. Please try again later.",
		},
		"empty feed": {
			setup: func(e *env) { e.feed.Set() },
			want: Result{
				GuildID: guildID,
				Outcome: FeedUnavailable,
				Reason:  ReasonEmptyFeed,
			},
			wantReply: "Couldn't read the feed right now. Please try again later.",
		},
		"first item is notified": {
			setup:     func(e *env) { e.feed.Set(ch11, ch10) },
			want:      Result{GuildID: guildID, Outcome: Notified, Item: &ch11},
			wantSeen:  &state.SeenItem{Title: "Ch. 11", Link: "https://x/11"},
			wantSent:  1,
			wantReply: "New update found and notified.",
		},
		"same link with new title is not novel": {
			setup: func(e *env) {
				e.seen.Advance(guildID, ch10)
				e.feed.Set(feed.Item{Title: "Ch. 10 (edited)", Link: ch10.Link})
			},
			want:      Result{GuildID: guildID, Outcome: NoNewItem, Item: &feed.Item{Title: "Ch. 10 (edited)", Link: ch10.Link}},
			wantSeen:  &state.SeenItem{Title: "Ch. 10", Link: "https://x/10"},
			wantReply: "No new update found.",
		},
		"missing role": {
			setup: func(e *env) {
				e.configs.Put(state.GuildConfig{GuildID: guildID, ChannelID: channelID, RoleID: "999"})
				e.feed.Set(ch10)
			},
			want: Result{
				GuildID: guildID,
				Outcome: NotifiedButDeliveryFailed,
				Reason:  ReasonTargetNotFound,
				Item:    &ch10,
			},
			wantSeen:  &state.SeenItem{Title: "Ch. 10", Link: "https://x/10"},
			wantReply: "New update found but failed to notify.",
		},
		"missing channel": {
			setup: func(e *env) {
				e.configs.Put(state.GuildConfig{GuildID: guildID, ChannelID: "999", RoleID: roleID})
				e.feed.Set(ch10)
			},
			want: Result{
				GuildID: guildID,
				Outcome: NotifiedButDeliveryFailed,
				Reason:  ReasonTargetNotFound,
				Item:    &ch10,
			},
			wantSeen:  &state.SeenItem{Title: "Ch. 10", Link: "https://x/10"},
			wantReply: "New update found but failed to notify.",
		},
		"channel of another guild": {
			setup: func(e *env) {
				e.platform.AddChannel("other", "201")
				e.configs.Put(state.GuildConfig{GuildID: guildID, ChannelID: "201", RoleID: roleID})
				e.feed.Set(ch10)
			},
			want: Result{
				GuildID: guildID,
				Outcome: NotifiedButDeliveryFailed,
				Reason:  ReasonTargetNotFound,
				Item:    &ch10,
			},
			wantSeen:  &state.SeenItem{Title: "Ch. 10", Link: "https://x/10"},
			wantReply: "New update found but failed to notify.",
		},
		"permission denied": {
			setup: func(e *env) {
				e.platform.Deny(channelID)
				e.feed.Set(ch10)
			},
			want: Result{
				GuildID: guildID,
				Outcome: NotifiedButDeliveryFailed,
				Reason:  ReasonPermissionDenied,
				Item:    &ch10,
			},
			wantSeen:  &state.SeenItem{Title: "Ch. 10", Link: "https://x/10"},
			wantReply: "New update found but failed to notify. Please check my permissions.",
		},
		"other delivery error": {
			setup: func(e *env) {
				e.platform.FailSends(errors.New("gateway hiccup"))
				e.feed.Set(ch10)
			},
			want: Result{
				GuildID: guildID,
				Outcome: NotifiedButDeliveryFailed,
				Reason:  ReasonDeliveryFailed,
				Item:    &ch10,
			},
			wantSeen:  &state.SeenItem{Title: "Ch. 10", Link: "https://x/10"},
			wantReply: "New update found but failed to notify.",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			e := newEnv(t)
			if !tc.skipConfig {
				e.configure()
			}
			tc.setup(e)

			replies := new(chattest.Replies)
			got := e.c.Check(context.Background(), guildID, replies)
			if (got.Err != nil) != (tc.want.Reason != ReasonNone) {
				t.Fatalf("Err = %v, want an error only for failures", got.Err)
			}
			got.Err = nil
			testutil.AssertEqual(t, got, tc.want)

			seen, ok := e.seen.Get(guildID)
			if tc.wantSeen == nil {
				if ok {
					t.Fatalf("seen state must be untouched, got %+v", seen)
				}
			} else {
				testutil.AssertEqual(t, seen, *tc.wantSeen)
			}
			testutil.AssertEqual(t, len(e.platform.Sent()), tc.wantSent)
			testutil.AssertEqual(t, replies.Texts(), []string{tc.wantReply})
		})
	}
}

func TestDeliveryFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.configs.Put(state.GuildConfig{GuildID: guildID, ChannelID: channelID, RoleID: "missing"})
	e.feed.Set(ch10)

	testutil.AssertEqual(t, e.c.Check(context.Background(), guildID, nil).Outcome, NotifiedButDeliveryFailed)
	testutil.AssertEqual(t, e.c.Check(context.Background(), guildID, nil).Outcome, NoNewItem)
}

func TestNotConfiguredDoesNotFetch(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.c.Check(context.Background(), guildID, nil)
	testutil.AssertEqual(t, e.feed.Fetches(), 0)
}

func TestConcurrentChecksNotifyOnce(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.configure()
	e.feed.Set(ch10)
	snap := e.c.Fetch(context.Background())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = map[Outcome]int{}
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := e.c.CheckSnapshot(context.Background(), guildID, snap, nil)
			mu.Lock()
			results[res.Outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	testutil.AssertEqual(t, results, map[Outcome]int{Notified: 1, NoNewItem: 19})
	testutil.AssertEqual(t, len(e.platform.Sent()), 1)
}

func TestReplyFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.configure()
	e.feed.Set(ch10)

	replies := new(chattest.Replies)
	replies.Fail(sender.ErrPermissionDenied)
	testutil.AssertEqual(t, e.c.Check(context.Background(), guildID, replies).Outcome, Notified)
}

func TestCanceledCheckStillDelivers(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.configure()
	e.feed.Set(ch10)
	snap := e.c.Fetch(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	testutil.AssertEqual(t, e.c.CheckSnapshot(ctx, guildID, snap, nil).Outcome, Notified)
	testutil.AssertEqual(t, len(e.platform.Sent()), 1)
}
