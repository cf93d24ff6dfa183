// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package bot

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"go.astrophena.name/feedbell/cmd/feedbell/internal/chattest"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/checker"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/feed"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/format"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/setup"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/state"
	"go.astrophena.name/feedbell/internal/testutil"
)

var msgs = format.Messages{Prefix: "!"}

type starter struct{ calls atomic.Int32 }

func (s *starter) Start(context.Context) { s.calls.Add(1) }

type env struct {
	b        *Bot
	feed     *chattest.Feed
	platform *chattest.Platform
	configs  *state.Configs
	seen     *state.Seen
	starter  *starter
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := &env{
		feed:     new(chattest.Feed),
		platform: chattest.NewPlatform(),
		configs:  state.NewConfigs(),
		seen:     state.NewSeen(),
		starter:  new(starter),
	}
	e.platform.AddChannel("1", "200")
	e.platform.AddRole("1", "300")
	e.b = New(Config{
		Checker: checker.New(checker.Config{
			Source:    e.feed,
			Configs:   e.configs,
			Seen:      e.seen,
			Directory: e.platform,
			Sink:      e.platform,
			Messages:  msgs,
			Logger:    logger,
		}),
		Setup: setup.New(setup.Config{
			Configs:  e.configs,
			Starter:  e.starter,
			Messages: msgs,
			Timeout:  time.Second,
			Logger:   logger,
		}),
		Configs:  e.configs,
		Seen:     e.seen,
		Messages: msgs,
		Logger:   logger,
	})
	return e
}

func cmd(name string, admin bool) Command {
	return Command{Name: name, GuildID: "1", ChannelID: "50", AuthorID: "7", IsAdmin: admin}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		prefix, content string
		want            string
		wantOK          bool
	}{
		"setup":          {prefix: "!", content: "!setup", want: "setup", wantOK: true},
		"trailing words": {prefix: "!", content: "  !check now please ", want: "check", wantOK: true},
		"long prefix":    {prefix: "fb.", content: "fb.latest", want: "latest", wantOK: true},
		"no prefix":      {prefix: "!", content: "setup"},
		"bare prefix":    {prefix: "!", content: "!"},
		"space":          {prefix: "!", content: "! setup"},
		"empty prefix":   {prefix: "", content: "setup"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseCommand(tc.prefix, tc.content)
			testutil.AssertEqual(t, got, tc.want)
			testutil.AssertEqual(t, ok, tc.wantOK)
		})
	}
}

func TestSetupThenCheck(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.feed.Set(feed.Item{Title: "Ch. 10", Link: "https://x/10"})
	r := new(chattest.Replies)
	in := e.b.Inbox()

	done := make(chan bool)
	go func() { done <- e.b.Handle(context.Background(), cmd(CmdSetup, true), r) }()

	testutil.Eventually(t, time.Second, func() bool { return in.Waiting() == 1 })
	// Messages of other people don't answer the prompt.
	testutil.AssertEqual(t, in.Deliver(Message{ChannelID: "50", AuthorID: "8", Content: "999"}), false)
	testutil.AssertEqual(t, in.Deliver(Message{ChannelID: "50", AuthorID: "7", Content: "200"}), true)

	testutil.Eventually(t, time.Second, func() bool { return len(r.Texts()) == 2 && in.Waiting() == 1 })
	testutil.AssertEqual(t, in.Deliver(Message{ChannelID: "50", AuthorID: "7", Content: "300"}), true)
	testutil.AssertEqual(t, <-done, true)

	testutil.AssertEqual(t, r.Texts(), []string{msgs.AskChannel(), msgs.AskRole(), msgs.SetupDone()})
	cfg, _ := e.configs.Get("1")
	testutil.AssertEqual(t, cfg, state.GuildConfig{GuildID: "1", ChannelID: "200", RoleID: "300"})
	testutil.AssertEqual(t, e.starter.calls.Load(), int32(1))

	r = new(chattest.Replies)
	e.b.Handle(context.Background(), cmd(CmdCheck, false), r)
	testutil.AssertEqual(t, r.Texts(), []string{msgs.Checking(), msgs.Notified()})
	testutil.AssertEqual(t, len(e.platform.Sent()), 1)

	r = new(chattest.Replies)
	e.b.Handle(context.Background(), cmd(CmdLatest, false), r)
	testutil.AssertEqual(t, r.Texts(), []string{"Latest update:\nTitle: Ch. 10\nLink: [Ch. 10](https://x/10)"})
}

func TestHandle(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		cmd       Command
		configure bool
		seen      *feed.Item
		wantOK    bool
		want      []string
	}{
		"latest not configured": {
			cmd:    cmd(CmdLatest, false),
			wantOK: true,
			want:   []string{msgs.NotConfigured()},
		},
		"latest nothing seen": {
			cmd:       cmd(CmdLatest, false),
			configure: true,
			wantOK:    true,
			want:      []string{msgs.NoLatest()},
		},
		"latest escapes brackets": {
			cmd:       cmd(CmdLatest, false),
			configure: true,
			seen:      &feed.Item{Title: "[RAW] Ch. 3", Link: "https://x/3"},
			wantOK:    true,
			want:      []string{"Latest update:\nTitle: [RAW] Ch. 3\nLink: [\\[RAW\\] Ch. 3](https://x/3)"},
		},
		"check not configured": {
			cmd:    cmd(CmdCheck, true),
			wantOK: true,
			want:   []string{msgs.Checking(), msgs.NotConfigured()},
		},
		"setup by non-admin": {
			cmd:    cmd(CmdSetup, false),
			wantOK: true,
			want:   []string{msgs.SetupNotAdmin()},
		},
		"unknown command": {
			cmd: cmd("help", true),
		},
		"direct message": {
			cmd: Command{Name: CmdCheck, ChannelID: "50", AuthorID: "7"},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			e := newEnv(t)
			if tc.configure {
				e.configs.Put(state.GuildConfig{GuildID: "1", ChannelID: "200", RoleID: "300"})
			}
			if tc.seen != nil {
				e.seen.Advance("1", *tc.seen)
			}

			r := new(chattest.Replies)
			testutil.AssertEqual(t, e.b.Handle(context.Background(), tc.cmd, r), tc.wantOK)
			testutil.AssertEqual(t, r.Texts(), tc.want)
			testutil.AssertEqual(t, e.starter.calls.Load(), int32(0))
		})
	}
}

func TestGuildJoined(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	r := new(chattest.Replies)
	e.b.GuildJoined(context.Background(), "1", r)
	testutil.AssertEqual(t, r.Texts(), []string{"Hello! Please use the `!setup` command to configure the bot."})

	failing := new(chattest.Replies)
	failing.Fail(context.Canceled)
	e.b.GuildJoined(context.Background(), "1", failing)
}
