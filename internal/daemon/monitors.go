package daemon

import (
	"log/slog"
	"time"

	"gfimx/internal/config"
	"gfimx/internal/policy"
	"gfimx/internal/schedule"
	"gfimx/internal/watcher"
)

// WatchTarget names the target scanned for [watch] events.
const WatchTarget = "watch"

// Monitors are the long-running components built from a policy. Either may
// be nil.
type Monitors struct {
	Watcher *watcher.Watcher
	Runner  *schedule.Runner
}

// Schedules lists the runner's schedules.
func (m *Monitors) Schedules() []schedule.Schedule {
	if m == nil || m.Runner == nil {
		return nil
	}
	return m.Runner.Schedules()
}

// BuildMonitors creates a watcher for the [watch] section and a schedule
// runner for the [schedule.*] tables, all driving scanner.
func BuildMonitors(pol *policy.Policy, scanner schedule.Scanner, cfg *config.Config, logger *slog.Logger) (*Monitors, error) {
	if err := pol.Validate(); err != nil {
		return nil, err
	}
	m := &Monitors{}
	if pol.Watch != nil {
		target, err := schedule.TargetFor(WatchTarget, pol.Watch.Dirs, pol.Watch.IgnoreFiles, pol.Watch.IgnoreDirs)
		if err != nil {
			return nil, err
		}
		debounce := time.Duration(cfg.Watch.DebounceMS) * time.Millisecond
		m.Watcher = watcher.New(target, scanner, debounce, logger)
	}
	if len(pol.Schedule) > 0 {
		scheds, err := schedule.FromPolicy(pol, time.Now())
		if err != nil {
			return nil, err
		}
		tick := time.Duration(cfg.Schedule.TickMS) * time.Millisecond
		m.Runner = schedule.NewRunner(scheds, scanner, tick, logger)
	}
	return m, nil
}
