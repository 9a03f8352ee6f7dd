package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gfimx/internal/metrics"
	"gfimx/internal/scan"
)

var _ scan.Metrics = (*metrics.Recorder)(nil)

func scrape(t *testing.T, r *metrics.Recorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestRecorderExposesCounters(t *testing.T) {
	r := metrics.NewRecorder(false)
	r.ObserveStage("hasher", "processed")
	r.ObserveStage("hasher", "processed")
	r.ObserveStage("reader", "failed")
	r.ObserveFile(100)
	r.ObserveFile(28)
	r.ObserveChange("added")
	r.ObserveScan("etc", 1500*time.Millisecond)

	body := scrape(t, r)
	for _, want := range []string{
		`gfimx_stage_items_total{outcome="processed",stage="hasher"} 2`,
		`gfimx_stage_items_total{outcome="failed",stage="reader"} 1`,
		`gfimx_files_hashed_total 2`,
		`gfimx_bytes_hashed_total 128`,
		`gfimx_changes_total{kind="added"} 1`,
		`gfimx_scan_duration_seconds_count{target="etc"} 1`,
		`gfimx_last_scan_timestamp_seconds{target="etc"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in scrape output", want)
		}
	}
	if strings.Contains(body, "go_goroutines") {
		t.Error("runtime collectors registered without withRuntime")
	}
}

func TestRecordersAreIndependent(t *testing.T) {
	a := metrics.NewRecorder(true)
	b := metrics.NewRecorder(true)
	a.ObserveFile(1)
	if strings.Contains(scrape(t, b), "gfimx_files_hashed_total 1") {
		t.Fatal("recorders share state")
	}
	if !strings.Contains(scrape(t, a), "go_goroutines") {
		t.Fatal("runtime collectors missing")
	}
}
