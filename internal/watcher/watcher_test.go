package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"gfimx/internal/policy"
	"gfimx/internal/scan"
	"gfimx/internal/watcher"
)

type fakeScanner struct {
	mu    sync.Mutex
	scans [][]string
}

func (f *fakeScanner) Scan(_ context.Context, target scan.Target) (scan.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = append(f.scans, append([]string(nil), target.Dirs...))
	return scan.Summary{ScanID: "id"}, nil
}

func (f *fakeScanner) scanned(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, dirs := range f.scans {
		if slices.Contains(dirs, path) {
			return true
		}
	}
	return false
}

func (f *fakeScanner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scans)
}

func startWatcher(t *testing.T, target scan.Target, scanner *fakeScanner) *watcher.Watcher {
	t.Helper()
	w := watcher.New(target, scanner, 20*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})
	select {
	case <-w.Ready():
	case err := <-done:
		t.Fatalf("watcher exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher not ready")
	}
	return w
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcherScansWrittenFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "a", "b"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	scanner := &fakeScanner{}
	w := startWatcher(t, scan.Target{Name: "w", Dirs: []string{root}}, scanner)
	if w.Watched() != 3 {
		t.Fatalf("watched %d dirs, want 3", w.Watched())
	}

	path := filepath.Join(root, "a", "b", "file.txt")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, "scan of written file", func() bool { return scanner.scanned(path) })
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	scanner := &fakeScanner{}
	w := startWatcher(t, scan.Target{Name: "w", Dirs: []string{root}}, scanner)

	sub := filepath.Join(root, "new")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	waitFor(t, "new directory watch", func() bool { return w.Watched() == 2 })
	waitFor(t, "scan of new directory", func() bool { return scanner.scanned(sub) })

	path := filepath.Join(sub, "late.txt")
	if err := os.WriteFile(path, []byte("late"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, "scan of file in new directory", func() bool { return scanner.scanned(path) })
}

func TestWatcherHonoursIgnoreFilters(t *testing.T) {
	root := t.TempDir()
	skipped := filepath.Join(root, "cache")
	if err := os.Mkdir(skipped, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	target := scan.Target{
		Name:        "w",
		Dirs:        []string{root},
		IgnoreFiles: policy.MustCompile(policy.Ignore{Patterns: []string{`\.tmp$`}}),
		IgnoreDirs:  policy.MustCompile(policy.Ignore{Paths: []string{skipped}}),
	}
	scanner := &fakeScanner{}
	w := startWatcher(t, target, scanner)
	if w.Watched() != 1 {
		t.Fatalf("ignored directory watched: %d", w.Watched())
	}

	for _, p := range []string{filepath.Join(root, "x.tmp"), filepath.Join(skipped, "y")} {
		if err := os.WriteFile(p, []byte("1"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	keep := filepath.Join(root, "keep")
	if err := os.WriteFile(keep, []byte("1"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, "scan of kept file", func() bool { return scanner.scanned(keep) })
	if scanner.scanned(filepath.Join(root, "x.tmp")) || scanner.scanned(filepath.Join(skipped, "y")) {
		t.Fatal("ignored path scanned")
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	root := t.TempDir()
	scanner := &fakeScanner{}
	w := watcher.New(scan.Target{Name: "w", Dirs: []string{root}}, scanner, 300*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	<-w.Ready()

	path := filepath.Join(root, "burst")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte{byte(i)}, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	waitFor(t, "debounced scan", func() bool { return scanner.count() >= 1 })
	time.Sleep(400 * time.Millisecond)
	if n := scanner.count(); n != 1 {
		t.Fatalf("burst produced %d scans, want 1", n)
	}
}

func TestWatcherMissingRoot(t *testing.T) {
	w := watcher.New(scan.Target{Name: "w", Dirs: []string{filepath.Join(t.TempDir(), "nope")}}, &fakeScanner{}, 0, nil)
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing root")
	}
}
