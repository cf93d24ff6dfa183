// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package setup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.astrophena.name/feedbell/cmd/feedbell/internal/format"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/sender"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/state"
	"go.astrophena.name/feedbell/internal/testutil"
)

// dialog answers prompts from a script. A missing answer blocks until the
// wait context is done.
type dialog struct {
	mu      sync.Mutex
	answers []string
	sent    []string
	sendErr error
}

func (d *dialog) Send(_ context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sendErr != nil {
		return d.sendErr
	}
	d.sent = append(d.sent, text)
	return nil
}

func (d *dialog) Await(ctx context.Context) (string, error) {
	d.mu.Lock()
	if len(d.answers) > 0 {
		a := d.answers[0]
		d.answers = d.answers[1:]
		d.mu.Unlock()
		return a, nil
	}
	d.mu.Unlock()
	<-ctx.Done()
	return "", ctx.Err()
}

func (d *dialog) Sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

type starter struct {
	mu    sync.Mutex
	calls int
}

func (s *starter) Start(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
}

func (s *starter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var msgs = format.Messages{Prefix: "!"}

func newConversation(configs *state.Configs, st Starter) *Conversation {
	return New(Config{
		Configs:  configs,
		Starter:  st,
		Messages: msgs,
		Timeout:  50 * time.Millisecond,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestRun(t *testing.T) {
	t.Parallel()

	previous := state.GuildConfig{GuildID: "1", ChannelID: "7", RoleID: "8"}

	cases := map[string]struct {
		req         Request
		d           *dialog
		wantErr     error
		wantCfg     state.GuildConfig
		wantSent    []string
		wantStarted int
		wantReply   string
	}{
		"success": {
			req:         Request{GuildID: "1", IsAdmin: true},
			d:           &dialog{answers: []string{" 200 ", "300"}},
			wantCfg:     state.GuildConfig{GuildID: "1", ChannelID: "200", RoleID: "300"},
			wantSent:    []string{msgs.AskChannel(), msgs.AskRole(), msgs.SetupDone()},
			wantStarted: 1,
		},
		"leading zeros are canonicalized": {
			req:         Request{GuildID: "1", IsAdmin: true},
			d:           &dialog{answers: []string{"0200", "300"}},
			wantCfg:     state.GuildConfig{GuildID: "1", ChannelID: "200", RoleID: "300"},
			wantSent:    []string{msgs.AskChannel(), msgs.AskRole(), msgs.SetupDone()},
			wantStarted: 1,
		},
		"not admin": {
			req:       Request{GuildID: "1"},
			d:         &dialog{answers: []string{"200", "300"}},
			wantErr:   ErrNotAdmin,
			wantCfg:   previous,
			wantReply: msgs.SetupNotAdmin(),
		},
		"invalid channel": {
			req:       Request{GuildID: "1", IsAdmin: true},
			d:         &dialog{answers: []string{"general", "300"}},
			wantErr:   ErrInvalidInput,
			wantCfg:   previous,
			wantSent:  []string{msgs.AskChannel()},
			wantReply: msgs.SetupInvalidInput(),
		},
		"negative role": {
			req:       Request{GuildID: "1", IsAdmin: true},
			d:         &dialog{answers: []string{"200", "-3"}},
			wantErr:   ErrInvalidInput,
			wantCfg:   previous,
			wantSent:  []string{msgs.AskChannel(), msgs.AskRole()},
			wantReply: msgs.SetupInvalidInput(),
		},
		"timeout on role": {
			req:       Request{GuildID: "1", IsAdmin: true},
			d:         &dialog{answers: []string{"200"}},
			wantErr:   ErrTimeout,
			wantCfg:   previous,
			wantSent:  []string{msgs.AskChannel(), msgs.AskRole()},
			wantReply: msgs.SetupTimeout(),
		},
		"can't prompt": {
			req:       Request{GuildID: "1", IsAdmin: true},
			d:         &dialog{sendErr: sender.ErrPermissionDenied},
			wantErr:   ErrPermissionDenied,
			wantCfg:   previous,
			wantReply: msgs.SetupForbidden(),
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			configs := state.NewConfigs()
			configs.Put(previous)
			st := new(starter)
			c := newConversation(configs, st)

			tc.req.Dialog = tc.d
			cfg, err := c.Run(context.Background(), tc.req)
			testutil.AssertErrorIs(t, err, tc.wantErr)
			if tc.wantErr == nil {
				testutil.AssertEqual(t, cfg, tc.wantCfg)
			}

			got, _ := configs.Get("1")
			testutil.AssertEqual(t, got, tc.wantCfg)
			testutil.AssertEqual(t, tc.d.Sent(), tc.wantSent)
			testutil.AssertEqual(t, st.Calls(), tc.wantStarted)
			testutil.AssertEqual(t, c.Reply(err), tc.wantReply)
		})
	}
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()

	configs := state.NewConfigs()
	c := newConversation(configs, nil)
	c.timeout = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Run(ctx, Request{GuildID: "1", IsAdmin: true, Dialog: new(dialog)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Fatal("cancellation must not look like a timeout")
	}
	if _, ok := configs.Get("1"); ok {
		t.Fatal("canceled setup must not store anything")
	}
}

func TestParseID(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		in      string
		want    string
		wantErr error
	}{
		"plain":      {in: "123456789012345678", want: "123456789012345678"},
		"whitespace": {in: "\t42\n", want: "42"},
		"max":        {in: "18446744073709551615", want: "18446744073709551615"},
		"overflow":   {in: "18446744073709551616", wantErr: ErrInvalidInput},
		"empty":      {in: "", wantErr: ErrInvalidInput},
		"mention":    {in: "<#123>", wantErr: ErrInvalidInput},
		"sign":       {in: "+5", wantErr: ErrInvalidInput},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseID(tc.in)
			testutil.AssertErrorIs(t, err, tc.wantErr)
			testutil.AssertEqual(t, got, tc.want)
		})
	}
}
