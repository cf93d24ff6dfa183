// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"go.astrophena.name/feedbell/cmd/feedbell/internal/scheduler"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/setup"
	"go.astrophena.name/feedbell/internal/cli"
)

const (
	defaultPrefix    = "!"
	defaultAdminAddr = "localhost:3000"
)

var errNoFeedURL = errors.New("feed URL is not set")

// config is the effective configuration of a run.
type config struct {
	Token        string        `json:"-"`
	FeedURL      string        `json:"feed_url"`
	FeedTitle    string        `json:"feed_title,omitempty"`
	Interval     time.Duration `json:"-"`
	SetupTimeout time.Duration `json:"-"`
	Prefix       string        `json:"prefix"`
	AdminAddr    string        `json:"admin_addr"`
	ConfigFile   string        `json:"config_file,omitempty"`
}

func (c config) MarshalJSON() ([]byte, error) {
	type plain config
	return json.Marshal(struct {
		plain
		Interval     string `json:"interval"`
		SetupTimeout string `json:"setup_timeout"`
		HasToken     bool   `json:"has_token"`
	}{plain(c), c.Interval.String(), c.SetupTimeout.String(), c.Token != ""})
}

// loadConfig resolves the configuration from flags, then environment
// variables, then config.star, then defaults.
func (a *app) loadConfig(env *cli.Env) (config, error) {
	c := config{
		Token:      env.Getenv("DISCORD_TOKEN"),
		ConfigFile: cmp.Or(a.configFile, env.Getenv("CONFIG_FILE")),
	}

	var file fileConfig
	if c.ConfigFile != "" {
		src, err := os.ReadFile(c.ConfigFile)
		if err != nil {
			return c, fmt.Errorf("reading config: %w", err)
		}
		file, err = parseConfig(a.slog, c.ConfigFile, src)
		if err != nil {
			return c, fmt.Errorf("%w: %s: %v", cli.ErrInvalidArgs, c.ConfigFile, err)
		}
	}

	envInterval, err := parseDuration("CHECK_INTERVAL", env.Getenv("CHECK_INTERVAL"))
	if err != nil {
		return c, err
	}
	envSetupTimeout, err := parseDuration("SETUP_TIMEOUT", env.Getenv("SETUP_TIMEOUT"))
	if err != nil {
		return c, err
	}

	c.FeedURL = cmp.Or(a.feedURL, env.Getenv("FEED_URL"), file.Feed.URL)
	c.FeedTitle = file.Feed.Title
	c.Interval = cmp.Or(a.interval, envInterval, file.Interval, scheduler.DefaultInterval)
	c.SetupTimeout = cmp.Or(a.setupTimeout, envSetupTimeout, file.SetupTimeout, setup.DefaultTimeout)
	c.Prefix = cmp.Or(a.prefix, env.Getenv("COMMAND_PREFIX"), file.Prefix, defaultPrefix)
	c.AdminAddr = cmp.Or(a.adminAddr, env.Getenv("ADMIN_ADDR"), defaultAdminAddr)
	if c.AdminAddr == "-" {
		c.AdminAddr = ""
	}

	if c.Interval < 0 || c.SetupTimeout < 0 {
		return c, fmt.Errorf("%w: durations must be positive", cli.ErrInvalidArgs)
	}
	return c, nil
}

func (c config) validateFeed() error {
	if c.FeedURL == "" {
		return fmt.Errorf("%w: %w: use -feed, FEED_URL or config.star", cli.ErrInvalidArgs, errNoFeedURL)
	}
	u, err := url.Parse(c.FeedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: invalid feed URL %q", cli.ErrInvalidArgs, c.FeedURL)
	}
	return nil
}

func parseDuration(name, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", cli.ErrInvalidArgs, name, err)
	}
	return d, nil
}

// config.star.

type fileConfig struct {
	Feed         feedValue
	Interval     time.Duration
	SetupTimeout time.Duration
	Prefix       string
}

type feedValue struct {
	URL   string
	Title string
}

func (f *feedValue) String() string        { return fmt.Sprintf("<feed url=%q>", f.URL) }
func (f *feedValue) Type() string          { return "feed" }
func (f *feedValue) Freeze()               {} // immutable
func (f *feedValue) Truth() starlark.Bool  { return starlark.Bool(f.URL != "") }
func (f *feedValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: %s", f.Type()) }

func feedBuiltin(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("unexpected positional arguments")
	}
	f := new(feedValue)
	if err := starlark.UnpackArgs("feed", args, kwargs,
		"url", &f.URL,
		"title?", &f.Title,
	); err != nil {
		return nil, err
	}
	return f, nil
}

func parseConfig(logger *slog.Logger, filename string, src []byte) (fileConfig, error) {
	var fc fileConfig

	globals, err := starlark.ExecFileOptions(
		&syntax.FileOptions{},
		&starlark.Thread{
			Print: func(_ *starlark.Thread, msg string) { logger.Info(msg, "source", filename) },
		},
		filename,
		src,
		starlark.StringDict{
			"feed": starlark.NewBuiltin("feed", feedBuiltin),
		},
	)
	if err != nil {
		return fc, err
	}

	switch v := globals["watch"].(type) {
	case nil:
	case *feedValue:
		fc.Feed = *v
	case *starlark.List:
		return fc, errors.New("watch must be a single feed(...), watching several feeds is not supported")
	default:
		return fc, fmt.Errorf("watch must be defined with feed(...), got %s", v.Type())
	}

	if fc.Interval, err = durationGlobal(globals, "interval"); err != nil {
		return fc, err
	}
	if fc.SetupTimeout, err = durationGlobal(globals, "setup_timeout"); err != nil {
		return fc, err
	}
	if v, ok := globals["prefix"]; ok {
		s, ok := starlark.AsString(v)
		if !ok || s == "" {
			return fc, fmt.Errorf("prefix must be a non-empty string, got %s", v)
		}
		fc.Prefix = s
	}
	return fc, nil
}

// durationGlobal reads a duration given either as a string like "5m" or as
// a number of seconds.
func durationGlobal(globals starlark.StringDict, name string) (time.Duration, error) {
	v, ok := globals[name]
	if !ok {
		return 0, nil
	}
	if s, ok := starlark.AsString(v); ok {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return d, nil
	}
	if i, ok := v.(starlark.Int); ok {
		secs, ok := i.Int64()
		if !ok {
			return 0, fmt.Errorf("%s: %s is out of range", name, i)
		}
		return time.Duration(secs) * time.Second, nil
	}
	return 0, fmt.Errorf("%s must be a duration string or a number of seconds, got %s", name, v.Type())
}
