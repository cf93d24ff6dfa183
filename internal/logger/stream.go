// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package logger

import (
	"container/ring"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Streamer is an io.Writer that keeps the last logged lines and allows to
// stream new ones.
type Streamer interface {
	io.Writer
	http.Handler

	// Lines returns the kept lines, oldest first.
	Lines() []string

	// Stream returns a channel receiving every newly logged line. Call the
	// returned function to deregister it.
	Stream() (<-chan string, func())
}

// NewStreamer returns a new Streamer backed by a ring buffer of the given size.
func NewStreamer(size int) Streamer {
	return &lineRing{
		size:    size,
		r:       ring.New(size),
		streams: make(map[chan string]struct{}),
	}
}

type lineRing struct {
	mu        sync.RWMutex
	size      int
	remainder string
	r         *ring.Ring
	streams   map[chan string]struct{}
}

func (lr *lineRing) Write(b []byte) (int, error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	text := lr.remainder + string(b)
	for {
		line, rest, ok := strings.Cut(text, "\n")
		if !ok {
			break
		}
		line += "\n"
		lr.r.Value = line
		lr.r = lr.r.Next()
		for stream := range lr.streams {
			select {
			case stream <- line:
			default:
				// Slow readers miss lines.
			}
		}
		text = rest
	}
	lr.remainder = text
	return len(b), nil
}

func (lr *lineRing) Lines() []string {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	lines := make([]string, 0, lr.size)
	lr.r.Do(func(x any) {
		if x != nil {
			lines = append(lines, x.(string))
		}
	})
	return lines
}

func (lr *lineRing) Stream() (<-chan string, func()) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	stream := make(chan string, lr.size+1)
	lr.streams[stream] = struct{}{}

	var once sync.Once
	return stream, func() {
		once.Do(func() {
			lr.mu.Lock()
			defer lr.mu.Unlock()
			delete(lr.streams, stream)
			close(stream)
		})
	}
}

// ServeHTTP writes the kept lines and then streams new ones until the client
// goes away. Clients asking for text/event-stream get server-sent events.
func (lr *lineRing) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sse := strings.Contains(strings.ToLower(r.Header.Get("Accept")), "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	if sse {
		w.Header().Set("Content-Type", "text/event-stream")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}

	stream, closeFunc := lr.Stream()
	defer closeFunc()

	write := func(line string) {
		if sse {
			fmt.Fprintf(w, "event: logline\ndata: %s\n", line)
		} else {
			io.WriteString(w, line)
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}

	for _, line := range lr.Lines() {
		write(line)
	}
	for {
		select {
		case line := <-stream:
			write(line)
		case <-r.Context().Done():
			return
		}
	}
}

var _ Streamer = (*lineRing)(nil)
