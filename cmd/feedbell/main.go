// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"go.astrophena.name/feedbell/cmd/feedbell/internal/bot"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/checker"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/discord"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/feed"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/format"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/scheduler"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/sender"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/setup"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/state"
	"go.astrophena.name/feedbell/internal/cli"
	"go.astrophena.name/feedbell/internal/httplogger"
	"go.astrophena.name/feedbell/internal/logger"
	"go.astrophena.name/feedbell/internal/request"
	"go.astrophena.name/feedbell/internal/systemd"
	"go.astrophena.name/feedbell/internal/web"
)

func main() { cli.Main(new(app)) }

type app struct {
	// configuration, read-only after Run
	feedURL      string
	interval     time.Duration
	setupTimeout time.Duration
	prefix       string
	adminAddr    string
	configFile   string
	debug        bool

	// initialized in Run
	slog  *slog.Logger
	logf  logger.Logf
	logs  logger.Streamer
	httpc *http.Client
}

func (a *app) Flags(fs *flag.FlagSet) {
	fs.StringVar(&a.feedURL, "feed", "", "Feed `URL` to watch.")
	fs.DurationVar(&a.interval, "interval", 0, "Time between two checks of all guilds (default 5m).")
	fs.DurationVar(&a.setupTimeout, "setup-timeout", 0, "How long setup waits for each answer (default 5m).")
	fs.StringVar(&a.prefix, "prefix", "", "Command prefix (default \"!\").")
	fs.StringVar(&a.adminAddr, "addr", "", "Listen on `host:port` for the admin API (default localhost:3000, \"-\" disables).")
	fs.StringVar(&a.configFile, "config", "", "Path to config.star.")
	fs.BoolVar(&a.debug, "debug", false, "Enable debug logging.")
}

func (a *app) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)

	l := logger.Get(ctx)
	a.slog, a.logs = l.Logger, l.Streamer
	a.logf = env.Logf
	if a.debug {
		l.Level.Set(slog.LevelDebug)
	}
	if a.httpc == nil {
		a.httpc = &http.Client{
			Timeout:   request.DefaultClient.Timeout,
			Transport: httplogger.New(nil, a.slog),
		}
	}

	cfg, err := a.loadConfig(env)
	if err != nil {
		return err
	}

	command := "run"
	if len(env.Args) > 0 {
		command = env.Args[0]
	}
	if len(env.Args) > 1 {
		return fmt.Errorf("%w: unexpected arguments after %q", cli.ErrInvalidArgs, command)
	}

	switch command {
	case "run":
		return a.run(ctx, cfg, env.Getenv)
	case "feed":
		return a.printFeed(ctx, cfg, env.Stdout)
	case "config":
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	default:
		return fmt.Errorf("%w: no such command %q", cli.ErrInvalidArgs, command)
	}
}

func (a *app) source(cfg config) *feed.HTTPSource {
	return feed.NewHTTPSource(feed.Config{
		URL:        cfg.FeedURL,
		HTTPClient: a.httpc,
		Logger:     a.slog,
	})
}

func (a *app) printFeed(ctx context.Context, cfg config, w io.Writer) error {
	if err := cfg.validateFeed(); err != nil {
		return err
	}
	items, err := a.source(cfg).Fetch(ctx)
	if err != nil {
		return err
	}
	if cfg.FeedTitle != "" {
		fmt.Fprintf(w, "%s\n\n", cfg.FeedTitle)
	}
	for i, item := range items {
		fmt.Fprintf(w, "%d. %s\n   %s\n", i+1, item.Title, item.Link)
	}
	return nil
}

// service is everything a run consists of, apart from the Discord
// connection.
type service struct {
	configs *state.Configs
	seen    *state.Seen
	checker *checker.Checker
	sched   *scheduler.Scheduler
	bot     *bot.Bot
}

func (a *app) newService(cfg config, src feed.Source, dir sender.Directory, sink sender.Sink) *service {
	msgs := format.Messages{Prefix: cfg.Prefix}
	s := &service{
		configs: state.NewConfigs(),
		seen:    state.NewSeen(),
	}
	s.checker = checker.New(checker.Config{
		Source:    src,
		Configs:   s.configs,
		Seen:      s.seen,
		Directory: dir,
		Sink:      sink,
		Messages:  msgs,
		Logger:    a.slog,
	})
	s.sched = scheduler.New(scheduler.Config{
		Checker:  s.checker,
		Configs:  s.configs,
		Interval: cfg.Interval,
		Logger:   a.slog,
	})
	s.bot = bot.New(bot.Config{
		Checker: s.checker,
		Setup: setup.New(setup.Config{
			Configs:  s.configs,
			Starter:  s.sched,
			Messages: msgs,
			Timeout:  cfg.SetupTimeout,
			Logger:   a.slog,
		}),
		Configs:  s.configs,
		Seen:     s.seen,
		Messages: msgs,
		Logger:   a.slog,
	})
	return s
}

func (a *app) run(ctx context.Context, cfg config, getenv func(string) string) error {
	if err := cfg.validateFeed(); err != nil {
		return err
	}
	sd, err := systemd.New(getenv, a.slog)
	if err != nil {
		return err
	}

	var svc *service
	conn, err := discord.New(discord.Config{
		Token:  cfg.Token,
		Prefix: cfg.Prefix,
		OnReady: func() {
			svc.sched.MarkReady()
			sd.Notify(systemd.Ready)
		},
		Logger: a.slog,
	})
	if err != nil {
		return fmt.Errorf("%w: %v (set DISCORD_TOKEN)", cli.ErrInvalidArgs, err)
	}
	svc = a.newService(cfg, a.source(cfg), conn.Client(), conn.Client())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return conn.Run(ctx, svc.bot) })
	g.Go(func() error { return svc.sched.Wait(ctx) })
	g.Go(func() error { return sd.Watchdog(ctx) })
	if cfg.AdminAddr != "" {
		g.Go(func() error { return a.serveAdmin(ctx, cfg.AdminAddr, svc, conn.Ready) })
	}
	return g.Wait()
}

func (a *app) serveAdmin(ctx context.Context, addr string, svc *service, discordReady func() bool) error {
	return web.ListenAndServe(ctx, &web.ListenAndServeConfig{
		Addr: addr,
		Mux:  a.adminMux(svc, discordReady),
		Logf: a.logf,
		Logs: a.logs,
	})
}
