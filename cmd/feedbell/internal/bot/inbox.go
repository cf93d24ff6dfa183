// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package bot

import (
	"context"
	"slices"
	"sync"
)

// Message is an incoming chat message.
type Message struct {
	GuildID   string
	ChannelID string
	AuthorID  string
	Content   string
}

type waitKey struct{ channelID, userID string }

// Inbox hands incoming messages to whoever waits for a reply from that
// person in that channel.
type Inbox struct {
	mu      sync.Mutex
	waiters map[waitKey][]chan string
}

// NewInbox returns an empty Inbox.
func NewInbox() *Inbox {
	return &Inbox{waiters: make(map[waitKey][]chan string)}
}

// Deliver gives msg to the oldest waiter for its author and channel. It
// reports whether somebody took it.
func (in *Inbox) Deliver(msg Message) bool {
	k := waitKey{msg.ChannelID, msg.AuthorID}

	in.mu.Lock()
	defer in.mu.Unlock()
	ws := in.waiters[k]
	if len(ws) == 0 {
		return false
	}
	ws[0] <- msg.Content
	in.drop(k, ws[0])
	return true
}

// Await waits for the next message of userID in channelID until ctx is done.
func (in *Inbox) Await(ctx context.Context, channelID, userID string) (string, error) {
	k := waitKey{channelID, userID}
	ch := make(chan string, 1)

	in.mu.Lock()
	in.waiters[k] = append(in.waiters[k], ch)
	in.mu.Unlock()

	select {
	case text := <-ch:
		return text, nil
	case <-ctx.Done():
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if !slices.Contains(in.waiters[k], ch) {
		// Delivered while giving up.
		return <-ch, nil
	}
	in.drop(k, ch)
	return "", ctx.Err()
}

// Waiting returns the number of pending waits.
func (in *Inbox) Waiting() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	var n int
	for _, ws := range in.waiters {
		n += len(ws)
	}
	return n
}

func (in *Inbox) drop(k waitKey, ch chan string) {
	ws := slices.DeleteFunc(in.waiters[k], func(c chan string) bool { return c == ch })
	if len(ws) == 0 {
		delete(in.waiters, k)
		return
	}
	in.waiters[k] = ws
}
