package daemon

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gfimx/internal/logging"
	"gfimx/internal/notifications"
	"gfimx/internal/scan"
)

// TargetStatus summarizes the scans of one target since startup.
type TargetStatus struct {
	Name       string    `json:"name"`
	Scans      int       `json:"scans"`
	LastScanID string    `json:"last_scan_id"`
	LastRun    time.Time `json:"last_run"`
	LastError  string    `json:"last_error,omitempty"`
	Added      int64     `json:"added"`
	Modified   int64     `json:"modified"`
	Failed     int64     `json:"failed"`
}

const notifyTimeout = 15 * time.Second

// trackingScanner records per-target outcomes for Status and sends a change
// alert after every scan that found something.
type trackingScanner struct {
	scanner  *scan.Scanner
	notifier notifications.Service
	logger   *slog.Logger

	mu      sync.Mutex
	targets map[string]*TargetStatus
}

func newTrackingScanner(s *scan.Scanner, notifier notifications.Service, logger *slog.Logger) *trackingScanner {
	return &trackingScanner{scanner: s, notifier: notifier, logger: logger, targets: map[string]*TargetStatus{}}
}

func (t *trackingScanner) Scan(ctx context.Context, target scan.Target) (scan.Summary, error) {
	summary, err := t.scanner.Scan(ctx, target)
	t.record(target.Name, summary, err)

	if t.notifier != nil && (summary.Added > 0 || summary.Modified > 0) {
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		if nerr := t.notifier.NotifyChanges(notifyCtx, summary); nerr != nil {
			logging.WarnWithContext(t.logger, "change notification failed", "notify_failed",
				logging.ScanID(summary.ScanID),
				logging.Error(nerr),
				logging.Impact("changes are still recorded and reported"),
			)
		}
		cancel()
	}
	return summary, err
}

func (t *trackingScanner) record(name string, summary scan.Summary, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.targets[name]
	if !ok {
		st = &TargetStatus{Name: name}
		t.targets[name] = st
	}
	st.Scans++
	st.LastScanID = summary.ScanID
	st.LastRun = summary.Started
	st.Added += summary.Added
	st.Modified += summary.Modified
	st.Failed += summary.Failed
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
	}
}

// Targets returns a snapshot sorted by name.
func (t *trackingScanner) Targets() []TargetStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TargetStatus, 0, len(t.targets))
	for _, st := range t.targets {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
