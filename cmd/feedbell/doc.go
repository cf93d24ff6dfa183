// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Feedbell watches a feed and pings a role in Discord guilds when a new item
appears.

# Usage

	$ feedbell [flags...] [run|feed|config]

The run command (the default) connects to Discord and serves guilds until
interrupted. The feed command fetches the feed once and prints its items. The
config command prints the effective configuration.

# Commands

In a guild, the bot answers these commands (with the default "!" prefix):

  - !setup: asks for the ID of the channel to post updates in and the ID of
    the role to ping. Only administrators can run it. Each question waits
    five minutes for an answer.
  - !latest: shows the last update the guild was notified about.
  - !check: checks the feed right now and reports what happened.

Once a guild is set up, every guild is checked every five minutes. An update
is announced once per guild: when the first item of the feed changes, the
configured role is pinged in the configured channel.

Configuration and seen updates live in memory and are lost on restart.

# Environment Variables

  - DISCORD_TOKEN: Discord bot token. Required by run.
  - FEED_URL: feed to watch.
  - CHECK_INTERVAL: time between checks, like "5m".
  - SETUP_TIMEOUT: how long setup waits for each answer, like "300s".
  - COMMAND_PREFIX: command prefix.
  - ADMIN_ADDR: address of the admin API, "-" disables it.
  - CONFIG_FILE: path to config.star.

Flags take precedence over environment variables, which take precedence over
config.star.

# Configuration

config.star is written in Starlark:

	watch = feed(
	    url = "https://example.com/novel.xml",
	    title = "My novel",
	)
	interval = "10m"
	setup_timeout = 120 # seconds
	prefix = "?"

Only one feed can be watched.

# Admin API

The admin server listens on localhost:3000 by default:

  - GET /api/guilds: configured guilds and the updates they saw.
  - GET /api/stats: scheduler stats.
  - POST /api/guilds/{id}/check: checks a guild right now.
  - GET /health: health checks.
  - GET /debug/logs: recent log lines, streamed.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/feedbell/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
