// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package scheduler

import (
	"maps"
	"time"

	"go.astrophena.name/feedbell/cmd/feedbell/internal/checker"
)

// TickStats describes one tick.
type TickStats struct {
	Start    time.Time               `json:"start"`
	Duration time.Duration           `json:"duration"`
	Guilds   int                     `json:"guilds"`
	Outcomes map[checker.Outcome]int `json:"outcomes"`
}

// Stats describes everything the scheduler did since it was created.
type Stats struct {
	Running  bool                    `json:"running"`
	Ready    bool                    `json:"ready"`
	Interval time.Duration           `json:"interval"`
	Ticks    int                     `json:"ticks"`
	Last     *TickStats              `json:"last,omitempty"`
	Totals   map[checker.Outcome]int `json:"totals"`
}

// Stats returns a copy of the current stats.
func (s *Scheduler) Stats() Stats {
	var out Stats
	s.stats.ReadAccess(func(st *Stats) {
		out = *st
		out.Totals = maps.Clone(st.Totals)
		if st.Last != nil {
			last := *st.Last
			last.Outcomes = maps.Clone(st.Last.Outcomes)
			out.Last = &last
		}
	})
	out.Running = s.Running()
	out.Ready = s.Ready()
	out.Interval = s.interval
	return out
}
