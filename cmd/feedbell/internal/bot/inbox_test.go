// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.astrophena.name/feedbell/internal/testutil"
)

func TestInbox(t *testing.T) {
	t.Parallel()

	in := NewInbox()
	testutil.AssertEqual(t, in.Deliver(Message{ChannelID: "c", AuthorID: "u", Content: "nobody waits"}), false)

	got := make(chan string)
	go func() {
		text, err := in.Await(context.Background(), "c", "u")
		if err != nil {
			t.Error(err)
		}
		got <- text
	}()
	testutil.Eventually(t, time.Second, func() bool { return in.Waiting() == 1 })

	testutil.AssertEqual(t, in.Deliver(Message{ChannelID: "c", AuthorID: "other", Content: "wrong user"}), false)
	testutil.AssertEqual(t, in.Deliver(Message{ChannelID: "other", AuthorID: "u", Content: "wrong channel"}), false)
	testutil.AssertEqual(t, in.Deliver(Message{ChannelID: "c", AuthorID: "u", Content: "42"}), true)
	testutil.AssertEqual(t, <-got, "42")
	testutil.AssertEqual(t, in.Waiting(), 0)
}

func TestInboxTimeout(t *testing.T) {
	t.Parallel()

	in := NewInbox()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := in.Await(ctx, "c", "u")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want context.DeadlineExceeded, got %v", err)
	}
	testutil.AssertEqual(t, in.Waiting(), 0)
	testutil.AssertEqual(t, in.Deliver(Message{ChannelID: "c", AuthorID: "u", Content: "late"}), false)
}

func TestInboxOldestWaiterFirst(t *testing.T) {
	t.Parallel()

	in := NewInbox()
	first, second := make(chan string, 1), make(chan string, 1)
	go func() {
		text, _ := in.Await(context.Background(), "c", "u")
		first <- text
	}()
	testutil.Eventually(t, time.Second, func() bool { return in.Waiting() == 1 })
	go func() {
		text, _ := in.Await(context.Background(), "c", "u")
		second <- text
	}()
	testutil.Eventually(t, time.Second, func() bool { return in.Waiting() == 2 })

	in.Deliver(Message{ChannelID: "c", AuthorID: "u", Content: "a"})
	in.Deliver(Message{ChannelID: "c", AuthorID: "u", Content: "b"})
	testutil.AssertEqual(t, <-first, "a")
	testutil.AssertEqual(t, <-second, "b")
}
