package schedule_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gfimx/internal/fault"
	"gfimx/internal/policy"
	"gfimx/internal/scan"
	"gfimx/internal/schedule"
)

var base = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func TestIntervalSchedule(t *testing.T) {
	s, err := schedule.NewInterval(scan.Target{Name: "tmp"}, 30*time.Second, base)
	if err != nil {
		t.Fatalf("NewInterval: %v", err)
	}
	if s.Due(base) || s.Due(base.Add(29*time.Second)) {
		t.Fatal("due before first interval elapsed")
	}
	if !s.Due(base.Add(31 * time.Second)) {
		t.Fatal("not due after interval")
	}
	if s.Due(base.Add(32 * time.Second)) {
		t.Fatal("due twice in one interval")
	}
	if want := base.Add(61 * time.Second); !s.Next().Equal(want) {
		t.Fatalf("next = %v, want %v", s.Next(), want)
	}
}

func TestIntervalRejectsZero(t *testing.T) {
	if _, err := schedule.NewInterval(scan.Target{Name: "x"}, 0, base); !errors.Is(err, fault.ErrPolicy) {
		t.Fatalf("NewInterval = %v", err)
	}
}

func TestCronSchedule(t *testing.T) {
	s, err := schedule.NewCron(scan.Target{Name: "hourly"}, " 15 * * * * ", base)
	if err != nil {
		t.Fatalf("NewCron: %v", err)
	}
	if s.Expression() != "15 * * * *" {
		t.Fatalf("expression = %q", s.Expression())
	}
	if want := base.Add(15 * time.Minute); !s.Next().Equal(want) {
		t.Fatalf("next = %v, want %v", s.Next(), want)
	}
	if s.Due(base.Add(14 * time.Minute)) {
		t.Fatal("due before activation")
	}
	// Three missed activations collapse into one run.
	late := base.Add(3*time.Hour + 20*time.Minute)
	if !s.Due(late) {
		t.Fatal("not due after activation")
	}
	if s.Due(late) {
		t.Fatal("missed activations replayed")
	}
	if want := base.Add(4*time.Hour + 15*time.Minute); !s.Next().Equal(want) {
		t.Fatalf("next = %v, want %v", s.Next(), want)
	}
}

func TestCronRejectsInvalidExpression(t *testing.T) {
	if _, err := schedule.NewCron(scan.Target{Name: "bad"}, "61 * * * *", base); !errors.Is(err, fault.ErrPolicy) {
		t.Fatalf("NewCron = %v", err)
	}
}

func TestFromPolicy(t *testing.T) {
	pol, err := policy.Parse(`
[schedule.etc]
dirs = ["/etc"]
interval = 60
ignore_files = { patterns = ["%5C.swp$"] }

[schedule.bin]
dirs = ["/usr/bin", "/usr/sbin"]
cron = "0 3 * * *"
ignore_dirs = { paths = ["/usr/bin/skip"] }
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	scheds, err := schedule.FromPolicy(pol, base)
	if err != nil {
		t.Fatalf("FromPolicy: %v", err)
	}
	if len(scheds) != 2 || scheds[0].Name() != "bin" || scheds[1].Name() != "etc" {
		t.Fatalf("unexpected schedules %v", scheds)
	}
	if _, ok := scheds[0].(*schedule.CronSchedule); !ok {
		t.Fatalf("bin should be cron, got %T", scheds[0])
	}
	if _, ok := scheds[1].(*schedule.IntervalSchedule); !ok {
		t.Fatalf("etc should be interval, got %T", scheds[1])
	}
	bin := scheds[0].Target()
	if len(bin.Dirs) != 2 || !bin.IgnoreDirs.IgnoreDir("/usr/bin/skip/x") || bin.IgnoreFiles != nil {
		t.Fatalf("unexpected bin target %+v", bin)
	}
	if !scheds[1].Target().IgnoreFiles.IgnoreFile("/etc/.passwd.swp") {
		t.Fatal("etc file filter not compiled")
	}
}

func TestFromPolicyWatchOnly(t *testing.T) {
	scheds, err := schedule.FromPolicy(&policy.Policy{Watch: &policy.Watch{Dirs: []string{"/srv"}}}, base)
	if err != nil || len(scheds) != 0 {
		t.Fatalf("FromPolicy = %v, %v", scheds, err)
	}
}

type fakeScanner struct {
	mu      sync.Mutex
	targets []string
	err     error
}

func (f *fakeScanner) Scan(_ context.Context, target scan.Target) (scan.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target.Name)
	return scan.Summary{ScanID: "id", Target: target.Name}, f.err
}

func (f *fakeScanner) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.targets {
		if t == name {
			n++
		}
	}
	return n
}

func TestRunnerScansDueSchedules(t *testing.T) {
	now := time.Now()
	fast, _ := schedule.NewInterval(scan.Target{Name: "fast"}, 10*time.Millisecond, now.Add(-time.Second))
	slow, _ := schedule.NewInterval(scan.Target{Name: "slow"}, time.Hour, now)
	scanner := &fakeScanner{err: errors.New("scan failed")}

	runner := schedule.NewRunner([]schedule.Schedule{fast, slow}, scanner, 2*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for scanner.count("fast") < 3 {
		select {
		case <-deadline:
			t.Fatal("fast schedule did not fire repeatedly")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if scanner.count("slow") != 0 {
		t.Fatal("slow schedule fired early")
	}
}
