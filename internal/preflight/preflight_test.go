package preflight

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gfimx/internal/policy"
	"gfimx/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if CheckDirectoryAccess("test", f).Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "hosts")
	testsupport.WriteText(t, file, "127.0.0.1 localhost")
	link := filepath.Join(dir, "link")
	if err := os.Symlink(file, link); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path   string
		passed bool
		detail string
	}{
		{dir, true, "directory readable"},
		{file, true, "file readable"},
		{link, false, "symlink"},
		{filepath.Join(dir, "missing"), false, "does not exist"},
	}
	for _, tt := range tests {
		got := CheckRoot(tt.path)
		if got.Passed != tt.passed || !strings.Contains(got.Detail, tt.detail) {
			t.Errorf("CheckRoot(%s) = %+v", tt.path, got)
		}
	}
}

func TestRootsDeduplicatesAcrossSections(t *testing.T) {
	pol, err := policy.Parse(`
[watch]
dirs = ["/etc", "/srv"]

[schedule.a]
dirs = ["/etc", "/usr/bin"]
interval = 10
`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := Roots(pol)
	want := []string{"/etc", "/srv", "/usr/bin"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Roots = %v, want %v", got, want)
	}
	if Roots(nil) != nil {
		t.Fatal("nil policy has no roots")
	}
}

func TestRunAllLocalOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	root := filepath.Join(testsupport.BaseDir(cfg), "data")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	pol, err := policy.Parse("[watch]\ndirs = [\"" + root + "\"]\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	results := RunAll(context.Background(), cfg, pol)
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	joined := strings.Join(names, "|")
	for _, want := range []string{"State directory", "Baseline store (sqlite)", "Root " + root} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing check %q in %s", want, joined)
		}
	}
	if strings.Contains(joined, "Broker") || strings.Contains(joined, "Kafka") {
		t.Fatalf("disabled services should be skipped: %s", joined)
	}
}

func TestCheckTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	if r := CheckTCP(context.Background(), "svc", addr); !r.Passed {
		t.Fatalf("expected pass, got %+v", r)
	}
	ln.Close()
	if r := CheckTCP(context.Background(), "svc", addr); r.Passed {
		t.Fatalf("expected failure after close, got %+v", r)
	}
}
