// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package feed fetches the watched feed and turns it into a list of items.
package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.astrophena.name/feedbell/internal/request"

	"github.com/cenkalti/backoff/v4"
	"github.com/mmcdole/gofeed"
)

// Item is a single feed entry. Link is the canonical URL identifying it.
type Item struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// ErrEmpty is returned by [Latest] when the feed has no items.
var ErrEmpty = errors.New("feed has no items")

// Source fetches the feed. Items are in the feed's natural order, newest
// first. Entries without a link can't be identified and are left out, so the
// first returned item is the first entry that has one.
type Source interface {
	Fetch(ctx context.Context) ([]Item, error)
}

// Latest returns the first item of items. It doesn't sort.
func Latest(items []Item) (Item, error) {
	if len(items) == 0 {
		return Item{}, ErrEmpty
	}
	return items[0], nil
}

const (
	defaultAttempts      = 3
	defaultRetryInterval = 2 * time.Second
)

// Config configures an [HTTPSource].
type Config struct {
	// URL is the feed address.
	URL string
	// HTTPClient is used for requests. Defaults to request.DefaultClient.
	HTTPClient *http.Client
	// Logger receives retry warnings. Defaults to slog.Default().
	Logger *slog.Logger
	// Attempts bounds how many times a fetch is tried. Defaults to 3.
	Attempts int
	// RetryInterval is the initial wait between attempts. Defaults to 2s.
	RetryInterval time.Duration
}

// HTTPSource fetches an RSS, Atom or JSON feed over HTTP.
type HTTPSource struct {
	url           string
	httpc         *http.Client
	slog          *slog.Logger
	attempts      int
	retryInterval time.Duration
	fp            *gofeed.Parser
}

// NewHTTPSource returns an HTTPSource for cfg.URL.
func NewHTTPSource(cfg Config) *HTTPSource {
	s := &HTTPSource{
		url:           cfg.URL,
		httpc:         cfg.HTTPClient,
		slog:          cfg.Logger,
		attempts:      cfg.Attempts,
		retryInterval: cfg.RetryInterval,
		fp:            gofeed.NewParser(),
	}
	if s.httpc == nil {
		s.httpc = request.DefaultClient
	}
	if s.slog == nil {
		s.slog = slog.Default()
	}
	if s.attempts <= 0 {
		s.attempts = defaultAttempts
	}
	if s.retryInterval <= 0 {
		s.retryInterval = defaultRetryInterval
	}
	return s
}

// URL returns the address of the feed.
func (s *HTTPSource) URL() string { return s.url }

// Fetch downloads and parses the feed. Network failures and 5xx or 429
// responses are retried with exponential backoff; other failures are
// returned immediately.
func (s *HTTPSource) Fetch(ctx context.Context) ([]Item, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.retryInterval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.attempts-1)), ctx)

	body, err := backoff.RetryNotifyWithData(func() ([]byte, error) {
		return s.download(ctx)
	}, b, func(err error, wait time.Duration) {
		s.slog.Warn("retrying feed", "feed", s.url, "retry_in", wait, "error", err)
	})
	if err != nil {
		return nil, fmt.Errorf("fetching feed %q: %w", s.url, err)
	}

	parsed, err := s.fp.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing feed %q: %w", s.url, err)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		item, ok := toItem(it)
		if !ok {
			s.slog.Debug("skipping item without link", "feed", s.url, "title", it.Title)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *HTTPSource) download(ctx context.Context) ([]byte, error) {
	res, err := request.Make(ctx, request.Params{
		URL:        s.url,
		HTTPClient: s.httpc,
	})
	if err != nil {
		var se *request.StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	return res.Body, nil
}

func toItem(it *gofeed.Item) (Item, bool) {
	link := strings.TrimSpace(it.Link)
	if link == "" {
		for _, l := range it.Links {
			if l = strings.TrimSpace(l); l != "" {
				link = l
				break
			}
		}
	}
	if link == "" {
		return Item{}, false
	}
	title := strings.TrimSpace(it.Title)
	if title == "" {
		title = link
	}
	return Item{Title: title, Link: link}, true
}

var _ Source = (*HTTPSource)(nil)
