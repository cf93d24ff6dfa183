// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package scheduler periodically checks every configured guild for updates.
package scheduler

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"go.astrophena.name/feedbell/cmd/feedbell/internal/checker"
	"go.astrophena.name/feedbell/cmd/feedbell/internal/state"
	"go.astrophena.name/feedbell/internal/syncx"
)

const (
	// DefaultInterval is the time between two ticks.
	DefaultInterval = 5 * time.Minute
	// DefaultLimit is how many guilds are checked at the same time.
	DefaultLimit = 4
)

// Config configures a [Scheduler].
type Config struct {
	Checker  *checker.Checker
	Configs  *state.Configs
	Interval time.Duration // DefaultInterval if zero
	Limit    int           // DefaultLimit if zero
	Logger   *slog.Logger
}

// Scheduler runs ticks. It does nothing until both Start and MarkReady have
// been called, and stops for good once Stop is called.
type Scheduler struct {
	checker  *checker.Checker
	configs  *state.Configs
	interval time.Duration
	limit    int
	slog     *slog.Logger

	mu        sync.Mutex // guards starting against stopping
	ctx       context.Context
	stop      context.CancelFunc
	ready     chan struct{}
	readyOnce sync.Once
	running   atomic.Bool
	loops     sync.WaitGroup

	stats *syncx.Protected[*Stats]
}

// New returns a Scheduler.
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		checker:  cfg.Checker,
		configs:  cfg.Configs,
		interval: cfg.Interval,
		limit:    cfg.Limit,
		slog:     cfg.Logger,
		ready:    make(chan struct{}),
		stats:    syncx.Protect(&Stats{Totals: make(map[checker.Outcome]int)}),
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.limit <= 0 {
		s.limit = DefaultLimit
	}
	if s.slog == nil {
		s.slog = slog.Default()
	}
	s.ctx, s.stop = context.WithCancel(context.Background())
	return s
}

// MarkReady opens the readiness gate. Calling it more than once is harmless.
func (s *Scheduler) MarkReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Start starts the loop in a new goroutine, unless it is already running or
// the scheduler was stopped. The loop keeps the values of ctx, but outlives
// its cancellation: it only ends with Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil || !s.running.CompareAndSwap(false, true) {
		return
	}
	lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	unlink := context.AfterFunc(s.ctx, cancel)

	s.slog.Info("scheduler started", "interval", s.interval)
	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		defer unlink()
		defer cancel()
		s.loop(lctx)
	}()
}

// Stop stops the loop and waits for the current tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stop()
	s.mu.Unlock()
	s.loops.Wait()
}

// Wait blocks until ctx is done and then stops the scheduler. It fits
// errgroup-style process lifecycles.
func (s *Scheduler) Wait(ctx context.Context) error {
	<-ctx.Done()
	s.Stop()
	return nil
}

// Running reports whether the loop is running.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Ready reports whether the readiness gate is open.
func (s *Scheduler) Ready() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.running.Store(false)

	select {
	case <-s.ready:
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.Tick(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// Tick checks every configured guild once against a single fetch of the
// feed. Guilds configured while the tick runs wait for the next one.
func (s *Scheduler) Tick(ctx context.Context) TickStats {
	ts := TickStats{
		Start:    time.Now(),
		Outcomes: make(map[checker.Outcome]int),
	}

	ids := s.configs.IDs()
	ts.Guilds = len(ids)
	if len(ids) > 0 {
		snap := s.checker.Fetch(ctx)
		if snap.Err != nil {
			s.slog.Warn("fetching feed failed", "error", snap.Err)
		}

		var mu sync.Mutex
		wg := syncx.NewLimitedWaitGroup(s.limit)
		for _, id := range ids {
			wg.Go(func() {
				res := s.checker.CheckSnapshot(ctx, id, snap, nil)
				mu.Lock()
				ts.Outcomes[res.Outcome]++
				mu.Unlock()
			})
		}
		wg.Wait()
	}
	ts.Duration = time.Since(ts.Start)

	s.stats.WriteAccess(func(st *Stats) {
		last := ts
		last.Outcomes = maps.Clone(ts.Outcomes)
		st.Ticks++
		st.Last = &last
		for o, n := range ts.Outcomes {
			st.Totals[o] += n
		}
	})
	s.slog.Debug("tick finished", "guilds", ts.Guilds, "duration", ts.Duration)
	return ts
}
