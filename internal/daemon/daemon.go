package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"gfimx/internal/baseline"
	"gfimx/internal/config"
	"gfimx/internal/fault"
	"gfimx/internal/logging"
	"gfimx/internal/metrics"
	"gfimx/internal/notifications"
	"gfimx/internal/policy"
	"gfimx/internal/preflight"
	"gfimx/internal/scan"
	"gfimx/internal/stage"
)

// PolicySource fetches the agent's policy text.
type PolicySource interface {
	GetPolicy(ctx context.Context) (string, error)
}

// Deps are the collaborators the daemon runs with. Store is required; the
// rest are optional.
type Deps struct {
	Store    baseline.Store
	Policy   PolicySource
	Reporter scan.Reporter
	Metrics  *metrics.Recorder
	Notifier notifications.Service
	Logger   *slog.Logger
	// Closers are closed, in order, by Close after the store.
	Closers []func() error
}

// Daemon runs the monitors built from the agent policy.
type Daemon struct {
	cfg     *config.Config
	deps    Deps
	logger  *slog.Logger
	scanner *trackingScanner

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	http    *apiServer

	stateMu  sync.Mutex
	monitors *Monitors
	started  time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	Agent        string         `json:"agent"`
	Started      time.Time      `json:"started,omitempty"`
	LockFilePath string         `json:"lock_file"`
	StoreDriver  string         `json:"store_driver"`
	WatchedDirs  int            `json:"watched_dirs"`
	Schedules    []ScheduleInfo `json:"schedules"`
	Targets      []TargetStatus `json:"targets"`
	Pipeline     []stage.Health `json:"pipeline,omitempty"`
}

// ScheduleInfo describes one registered schedule.
type ScheduleInfo struct {
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps) (*Daemon, error) {
	if cfg == nil || deps.Store == nil {
		return nil, errors.New("daemon requires config and baseline store")
	}
	if deps.Policy == nil && cfg.Agent.PolicyFile == "" {
		return nil, fault.Wrap(fault.ErrConfiguration, "daemon", "init", "no broker and no agent.policy_file", nil)
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	deps.Logger = logger

	opts := []scan.Option{}
	if deps.Reporter != nil {
		opts = append(opts, scan.WithReporter(deps.Reporter))
	}
	if deps.Metrics != nil {
		opts = append(opts, scan.WithMetrics(deps.Metrics))
	}
	scanner := scan.NewScanner(scan.ConfigFrom(cfg), deps.Store, logging.NewComponentLogger(logger, "scanner"), opts...)

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		deps:     deps,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		scanner:  newTrackingScanner(scanner, deps.Notifier, logging.NewComponentLogger(logger, "notify")),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// LoadPolicy fetches the policy from the broker when one is configured,
// otherwise from agent.policy_file. Any failure is startup-fatal.
func (d *Daemon) LoadPolicy(ctx context.Context) (*policy.Policy, error) {
	if d.deps.Policy != nil {
		text, err := d.deps.Policy.GetPolicy(ctx)
		if err != nil {
			return nil, err
		}
		return policy.Parse(text)
	}
	return policy.LoadFile(d.cfg.Agent.PolicyFile)
}

// Start acquires the daemon lock, loads the policy, and launches the
// monitors and the HTTP server.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := d.cfg.EnsureDirectories(); err != nil {
		return fault.Wrap(fault.ErrConfiguration, "daemon", "start", "", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another gfimx daemon instance is already running")
	}
	release := func() {
		_ = d.lock.Unlock()
	}

	pol, err := d.LoadPolicy(ctx)
	if err != nil {
		release()
		return err
	}
	for _, root := range preflight.Roots(pol) {
		r := preflight.CheckRoot(root)
		if r.Passed {
			continue
		}
		logging.WarnWithContext(d.logger, "monitored root unavailable", "root_unavailable",
			logging.Path(root),
			logging.String("detail", r.Detail),
			logging.Impact("files under this root are not scanned until it appears"),
		)
	}
	monitors, err := BuildMonitors(pol, d.scanner, d.cfg, d.deps.Logger)
	if err != nil {
		release()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	srv := newAPIServer(d.cfg, d, d.deps.Logger)
	if err := srv.start(runCtx); err != nil {
		cancel()
		release()
		return err
	}

	if monitors.Watcher != nil {
		d.goRun(runCtx, "watcher", monitors.Watcher.Run)
	}
	if monitors.Runner != nil {
		d.goRun(runCtx, "scheduler", monitors.Runner.Run)
	}

	if err := os.WriteFile(d.cfg.PIDPath(), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		d.logger.Warn("failed to write pid file", logging.Error(err))
	}

	d.cancel = cancel
	d.http = srv
	d.stateMu.Lock()
	d.monitors = monitors
	d.started = time.Now()
	d.stateMu.Unlock()
	d.running.Store(true)
	d.logger.Info("gfimx daemon started",
		logging.String("agent", d.cfg.Agent.Name),
		logging.String("lock", d.lockPath),
		logging.Bool("watch", monitors.Watcher != nil),
		logging.Int("schedules", len(monitors.Schedules())),
	)
	return nil
}

func (d *Daemon) goRun(ctx context.Context, name string, run func(context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := run(ctx); err != nil {
			logging.ErrorWithContext(d.logger, "monitor stopped", "monitor_failed",
				logging.String(logging.FieldComponent, name),
				logging.Error(err),
				logging.Hint("check that the policy directories exist and are readable"),
			)
			if d.deps.Notifier != nil && ctx.Err() == nil {
				notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
				_ = d.deps.Notifier.NotifyError(notifyCtx, err, name+" stopped")
				cancel()
			}
		}
	}()
}

// Stop cancels the monitors, waits for in-flight scans, and releases the
// daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.http.stop()
	d.http = nil
	if err := os.Remove(d.cfg.PIDPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("failed to remove pid file", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("gfimx daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.deps.Store != nil {
		errs = append(errs, d.deps.Store.Close())
	}
	for _, closer := range d.deps.Closers {
		if closer != nil {
			errs = append(errs, closer())
		}
	}
	return errors.Join(errs...)
}

// Scan runs a one-off scan through the daemon's scanner, serialized with
// the monitors.
func (d *Daemon) Scan(ctx context.Context, target scan.Target) (scan.Summary, error) {
	return d.scanner.Scan(ctx, target)
}

// Baseline lists the stored records.
func (d *Daemon) Baseline(ctx context.Context) ([]baseline.Record, error) {
	return d.deps.Store.List(ctx)
}

// Status returns the current daemon status.
func (d *Daemon) Status(context.Context) Status {
	d.stateMu.Lock()
	monitors := d.monitors
	started := d.started
	d.stateMu.Unlock()

	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Agent:        d.cfg.Agent.Name,
		LockFilePath: d.lockPath,
		StoreDriver:  d.cfg.Store.Driver,
		Targets:      d.scanner.Targets(),
		Pipeline:     d.scanner.scanner.Stages(),
	}
	if status.Running {
		status.Started = started
	}
	if monitors != nil {
		if monitors.Watcher != nil {
			status.WatchedDirs = monitors.Watcher.Watched()
		}
		for _, s := range monitors.Schedules() {
			status.Schedules = append(status.Schedules, ScheduleInfo{Name: s.Name(), NextRun: s.Next()})
		}
	}
	return status
}
