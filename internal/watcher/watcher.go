// Package watcher scans files as soon as the filesystem reports them
// written.
//
// Watches are placed recursively on every directory of the policy's
// [watch] section, skipping ignored directories and never following
// symlinks. Directories created later are watched as they appear. Events
// are collected until the tree has been quiet for the debounce window, then
// every touched path is scanned as one target.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"gfimx/internal/logging"
	"gfimx/internal/scan"
)

// DefaultDebounce is how long the tree must be quiet before a scan starts.
const DefaultDebounce = 2 * time.Second

// Scanner runs one scan.
type Scanner interface {
	Scan(ctx context.Context, target scan.Target) (scan.Summary, error)
}

// Watcher turns filesystem events under a target into scans.
type Watcher struct {
	target   scan.Target
	scanner  Scanner
	debounce time.Duration
	logger   *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once

	mu      sync.Mutex
	watched map[string]struct{}
}

// New builds a watcher. A non-positive debounce uses DefaultDebounce.
func New(target scan.Target, scanner Scanner, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		target:   target,
		scanner:  scanner,
		debounce: debounce,
		logger:   logging.NewComponentLogger(logger, "watcher").With(logging.Target(target.Name)),
		ready:    make(chan struct{}),
		watched:  map[string]struct{}{},
	}
}

// Ready is closed once the initial watches are in place.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Watched reports the number of directories currently watched.
func (w *Watcher) Watched() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

// Run places watches and processes events until ctx is done. Failing to
// watch one of the configured roots is an error; failing on a descendant is
// logged and skipped.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	for _, root := range w.target.Dirs {
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolve watch root %s: %w", root, err)
		}
		if err := w.addTree(fw, abs, true); err != nil {
			return err
		}
	}
	w.readyOnce.Do(func() { close(w.ready) })
	w.logger.Info("watching directories", logging.Int("dirs", w.Watched()))

	pending := map[string]struct{}{}
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	arm := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			timerC = timer.C
			return
		}
		timer.Reset(w.debounce)
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.handle(fw, event, pending) {
				arm()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were lost; fall back to the whole tree.
				for _, root := range w.target.Dirs {
					pending[root] = struct{}{}
				}
				arm()
			}
			logging.WarnWithContext(w.logger, "watch error", "watch_error",
				logging.Error(err),
				logging.Impact("some changes may be picked up late"),
			)
		case <-timerC:
			timer = nil
			timerC = nil
			w.flush(ctx, pending)
			clear(pending)
		}
	}
}

// handle records a relevant event and reports whether one was recorded.
func (w *Watcher) handle(fw *fsnotify.Watcher, event fsnotify.Event, pending map[string]struct{}) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Chmod) {
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			w.forget(event.Name)
		}
		return false
	}
	info, err := os.Lstat(event.Name)
	if err != nil {
		return false
	}
	switch mode := info.Mode(); {
	case mode&fs.ModeSymlink != 0:
		return false
	case mode.IsDir():
		if !event.Has(fsnotify.Create) || w.target.IgnoreDirs.IgnoreDir(event.Name) {
			return false
		}
		if err := w.addTree(fw, event.Name, false); err != nil {
			return false
		}
		// Files may have landed before the watch was placed.
		pending[event.Name] = struct{}{}
		return true
	case mode.IsRegular():
		if w.target.IgnoreFiles.IgnoreFile(event.Name) {
			return false
		}
		pending[event.Name] = struct{}{}
		return true
	}
	return false
}

func (w *Watcher) flush(ctx context.Context, pending map[string]struct{}) {
	if len(pending) == 0 {
		return
	}
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	target := w.target
	target.Dirs = paths
	summary, err := w.scanner.Scan(ctx, target)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logging.WarnWithContext(w.logger, "watch scan failed", "watch_scan_failed",
			logging.Int("paths", len(paths)),
			logging.Error(err),
			logging.Impact("changes picked up on the next event or scheduled scan"),
		)
		return
	}
	w.logger.Debug("watch scan complete",
		logging.Int("paths", len(paths)),
		logging.ScanID(summary.ScanID),
		logging.Int64("changes", summary.Added+summary.Modified),
	)
}

// addTree watches dir and every non-ignored directory below it.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string, root bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if root && path == dir {
				return fmt.Errorf("watch root %s: %w", dir, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.target.IgnoreDirs.IgnoreDir(path) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			if root && path == dir {
				return fmt.Errorf("watch root %s: %w", dir, err)
			}
			w.logger.Debug("cannot watch directory", logging.Path(path), logging.Error(err))
			return filepath.SkipDir
		}
		w.mu.Lock()
		w.watched[path] = struct{}{}
		w.mu.Unlock()
		return nil
	})
}

// forget drops bookkeeping for a removed directory. The kernel removes the
// watch itself.
func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.watched, path)
}
