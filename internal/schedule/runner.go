package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gfimx/internal/logging"
	"gfimx/internal/scan"
)

// Scanner runs one scan.
type Scanner interface {
	Scan(ctx context.Context, target scan.Target) (scan.Summary, error)
}

const defaultTick = 100 * time.Millisecond

// Runner polls schedules and scans due targets sequentially.
type Runner struct {
	schedules []Schedule
	scanner   Scanner
	tick      time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewRunner builds a runner. A non-positive tick uses 100ms.
func NewRunner(schedules []Schedule, scanner Scanner, tick time.Duration, logger *slog.Logger) *Runner {
	if tick <= 0 {
		tick = defaultTick
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		schedules: schedules,
		scanner:   scanner,
		tick:      tick,
		logger:    logging.NewComponentLogger(logger, "scheduler"),
		now:       time.Now,
	}
}

// Schedules returns the schedules the runner polls.
func (r *Runner) Schedules() []Schedule {
	return r.schedules
}

// Run blocks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	for _, s := range r.schedules {
		r.logger.Info("schedule registered",
			logging.Target(s.Name()),
			logging.String("next_run", s.Next().Format(time.RFC3339)),
		)
	}

	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

// poll scans every schedule due at the current time.
func (r *Runner) poll(ctx context.Context) {
	for _, s := range r.schedules {
		if ctx.Err() != nil {
			return
		}
		if !s.Due(r.now()) {
			continue
		}
		summary, err := r.scanner.Scan(ctx, s.Target())
		if err != nil {
			if errors.Is(err, context.Canceled) {
				r.logger.Info("scheduled scan interrupted by shutdown", logging.Target(s.Name()))
				return
			}
			logging.WarnWithContext(r.logger, "scheduled scan failed", "schedule_scan_failed",
				logging.Target(s.Name()),
				logging.Error(err),
				logging.Impact("target not fully checked until its next run"),
			)
			continue
		}
		r.logger.Debug("scheduled scan complete",
			logging.Target(s.Name()),
			logging.ScanID(summary.ScanID),
			logging.String("next_run", s.Next().Format(time.RFC3339)),
		)
	}
}
