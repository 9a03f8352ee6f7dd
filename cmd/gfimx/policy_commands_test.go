package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"gfimx/internal/testsupport"
)

const testPolicy = `
[watch]
dirs = ["/etc"]

[watch.ignore_files]
patterns = ["\\.swp$"]

[schedule.nightly]
dirs = ["/usr/bin"]
cron = "0 3 * * *"

[schedule.quick]
dirs = ["/opt/app"]
interval = 300
`

func TestPolicyCheck(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.toml")
	testsupport.WriteText(t, good, testPolicy)

	out, _, err := runCLI(t, []string{"policy", "check", good}, "")
	if err != nil {
		t.Fatalf("policy check: %v", err)
	}
	requireContains(t, out, "is valid")
	requireContains(t, out, "schedule.nightly")
	requireContains(t, out, "cron 0 3 * * *")
	requireContains(t, out, "every 300s")

	bad := filepath.Join(dir, "bad.toml")
	testsupport.WriteText(t, bad, "[schedule.x]\ndirs = [\"/tmp\"]\ninterval = 5\ncron = \"* * * * *\"\n")
	_, _, err = runCLI(t, []string{"policy", "check", bad}, "")
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("expected timing conflict, got %v", err)
	}
}

func TestPolicyPushValidatesBeforeConnecting(t *testing.T) {
	env := setupCLITestEnv(t)
	policyDir := env.cfg.Agent.PolicyDir
	testsupport.WriteText(t, filepath.Join(policyDir, "clients.toml"), "[web-01]\npolicy = \"web.toml\"\n\n[db-01]\npolicy = \"db.toml\"\n")
	testsupport.WriteText(t, filepath.Join(policyDir, "web.toml"), testPolicy)
	testsupport.WriteText(t, filepath.Join(policyDir, "db.toml"), "[watch]\ndirs = []\n")

	_, _, err := runCLI(t, []string{"policy", "push"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "db-01") {
		t.Fatalf("expected invalid db-01 policy to be reported, got %v", err)
	}

	_, _, err = runCLI(t, []string{"policy", "push", "--client", "web-01"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "no broker configured") {
		t.Fatalf("expected missing broker error, got %v", err)
	}

	_, _, err = runCLI(t, []string{"policy", "push", "--client", "nobody"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "no matching clients") {
		t.Fatalf("expected no matching clients, got %v", err)
	}
}

func TestLogsRequiresBroker(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"logs"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "no broker configured") {
		t.Fatalf("expected missing broker error, got %v", err)
	}
}

func TestLogsLocalTail(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteText(t, filepath.Join(env.cfg.Paths.LogDir, "gfimx.log"), "first\nsecond\nthird\n")

	out, _, err := runCLI(t, []string{"logs", "--local", "-n", "2"}, env.configPath)
	if err != nil {
		t.Fatalf("logs --local: %v", err)
	}
	if out != "second\nthird\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestStatusRequiresBind(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "not reachable") {
		t.Fatalf("expected unreachable error, got %v", err)
	}
}

func TestNotifyTestCommand(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Title") == "gfimx - Test" {
			hits.Add(1)
		}
	}))
	defer srv.Close()

	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"notify", "test"}, env.configPath); err == nil {
		t.Fatal("expected disabled notifications to fail")
	}

	env.cfg.Notify.NtfyTopic = srv.URL + "/fim"
	writeTestConfig(t, env.configPath, env.cfg)
	out, _, err := runCLI(t, []string{"notify", "test"}, env.configPath)
	if err != nil {
		t.Fatalf("notify test: %v", err)
	}
	requireContains(t, out, "Test notification sent")
	if hits.Load() != 1 {
		t.Fatalf("expected 1 ntfy request, got %d", hits.Load())
	}
}
