package daemon_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"gfimx/internal/baseline"
	"gfimx/internal/config"
	"gfimx/internal/daemon"
	"gfimx/internal/fault"
	"gfimx/internal/metrics"
	"gfimx/internal/policy"
	"gfimx/internal/testsupport"
)

func scheduledPolicy(dir string) string {
	return fmt.Sprintf(`
[schedule.files]
dirs = [%q]
interval = 1
`, dir)
}

func TestDaemonStartStop(t *testing.T) {
	watched := t.TempDir()
	testsupport.Tree(t, watched, map[string]string{"a.txt": "a", "sub/b.txt": "b"})

	cfg := testsupport.NewConfig(t, testsupport.WithPolicyFile(scheduledPolicy(watched)))
	store := baseline.NewMemoryStore()
	d, err := daemon.New(cfg, daemon.Deps{Store: store, Metrics: metrics.NewRecorder(false)})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running || status.Agent != "test-agent" {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(status.Schedules) != 1 || status.Schedules[0].Name != "files" {
		t.Fatalf("schedules = %+v", status.Schedules)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}
	if ok, _ := flock.New(cfg.LockPath()).TryLock(); ok {
		t.Fatal("lock not held while running")
	}

	deadline := time.Now().Add(10 * time.Second)
	for store.Len() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("scheduled scan did not populate the baseline: %+v", d.Status(ctx))
		}
		time.Sleep(50 * time.Millisecond)
	}
	targets := d.Status(ctx).Targets
	if len(targets) != 1 || targets[0].Name != "files" || targets[0].Added != 2 {
		t.Fatalf("targets = %+v", targets)
	}

	d.Stop()
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
	lock := flock.New(cfg.LockPath())
	if ok, err := lock.TryLock(); !ok || err != nil {
		t.Fatalf("lock not released: %v", err)
	}
	_ = lock.Unlock()
}

type stubPolicy struct {
	text string
	err  error
}

func (s stubPolicy) GetPolicy(context.Context) (string, error) { return s.text, s.err }

func TestDaemonPolicyFromBroker(t *testing.T) {
	watched := t.TempDir()
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, daemon.Deps{
		Store:  baseline.NewMemoryStore(),
		Policy: stubPolicy{text: fmt.Sprintf("[watch]\ndirs = [%q]\n", watched)},
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	pol, err := d.LoadPolicy(context.Background())
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if pol.Watch == nil || pol.Watch.Dirs[0] != watched {
		t.Fatalf("unexpected policy %+v", pol)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for d.Status(context.Background()).WatchedDirs != 1 {
		if time.Now().After(deadline) {
			t.Fatal("watcher never reported its directory")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDaemonPolicyFailureIsStartupFatal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, daemon.Deps{
		Store:  baseline.NewMemoryStore(),
		Policy: stubPolicy{err: fault.Wrap(fault.ErrPolicy, "broker", "get policy", "missing key", nil)},
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	err = d.Start(context.Background())
	if !fault.Startup(err) || !errors.Is(err, fault.ErrPolicy) {
		t.Fatalf("Start = %v, want startup-fatal policy error", err)
	}
	lock := flock.New(cfg.LockPath())
	if ok, _ := lock.TryLock(); !ok {
		t.Fatal("lock leaked after failed start")
	}
	_ = lock.Unlock()
}

func TestDaemonRequiresPolicySource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Agent.PolicyFile = ""
	if _, err := daemon.New(cfg, daemon.Deps{Store: baseline.NewMemoryStore()}); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("New = %v", err)
	}
}

func TestBuildMonitors(t *testing.T) {
	pol, err := policy.Parse(`
[watch]
dirs = ["/srv/www"]
ignore_dirs = { patterns = ["/cache$"] }

[schedule.nightly]
dirs = ["/etc"]
cron = "0 2 * * *"
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg := config.Default()
	m, err := daemon.BuildMonitors(pol, nil, &cfg, nil)
	if err != nil {
		t.Fatalf("BuildMonitors: %v", err)
	}
	if m.Watcher == nil || m.Runner == nil {
		t.Fatalf("monitors = %+v", m)
	}
	if s := m.Schedules(); len(s) != 1 || s[0].Name() != "nightly" {
		t.Fatalf("schedules = %v", s)
	}

	watchOnly := &policy.Policy{Watch: &policy.Watch{Dirs: []string{filepath.Join("/", "x")}}}
	m, err = daemon.BuildMonitors(watchOnly, nil, &cfg, nil)
	if err != nil || m.Runner != nil || m.Schedules() != nil {
		t.Fatalf("watch-only monitors = %+v, %v", m, err)
	}

	if _, err := daemon.BuildMonitors(&policy.Policy{}, nil, &cfg, nil); !errors.Is(err, fault.ErrPolicy) {
		t.Fatalf("empty policy = %v", err)
	}
}
