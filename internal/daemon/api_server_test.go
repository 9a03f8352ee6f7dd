package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gfimx/internal/baseline"
	"gfimx/internal/metrics"
	"gfimx/internal/testsupport"
)

func newTestServer(t *testing.T, token string) (*apiServer, http.Handler) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithPolicyFile("[watch]\ndirs = [\"/tmp\"]\n"))
	cfg.Metrics.Bind = "127.0.0.1:0"
	cfg.Metrics.Token = token

	store := baseline.NewMemoryStore()
	for _, path := range []string{"/etc/hosts", "/etc/passwd", "/usr/bin/env"} {
		if err := store.Upsert(context.Background(), baseline.Record{Path: path, Hash: "h"}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	d, err := New(cfg, Deps{Store: store, Metrics: metrics.NewRecorder(false)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := newAPIServer(cfg, d, nil)
	if srv == nil {
		t.Fatal("server not created for configured bind")
	}
	return srv, srv.routes(token)
}

func get(h http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAPIServerBaseline(t *testing.T) {
	_, h := newTestServer(t, "")

	w := get(h, "/api/baseline?prefix=/etc/&limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp BaselineResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 2 || len(resp.Records) != 1 || resp.Records[0].Path != "/etc/hosts" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestAPIServerStatusAndHealth(t *testing.T) {
	_, h := newTestServer(t, "")

	w := get(h, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status code %d", w.Code)
	}
	var status Status
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Running || status.Agent != "test-agent" {
		t.Fatalf("unexpected status %+v", status)
	}

	if w := get(h, "/healthz", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz on stopped daemon = %d", w.Code)
	}
	if w := get(h, "/metrics", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "# HELP") {
		t.Fatalf("metrics = %d", w.Code)
	}
}

func TestAPIServerRequiresToken(t *testing.T) {
	_, h := newTestServer(t, "s3cret")

	if w := get(h, "/api/status", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", w.Code)
	}
	if w := get(h, "/api/status", "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token = %d", w.Code)
	}
	if w := get(h, "/api/status", "s3cret"); w.Code != http.StatusOK {
		t.Fatalf("valid token = %d", w.Code)
	}
	if w := get(h, "/healthz", ""); w.Code == http.StatusUnauthorized {
		t.Fatal("healthz should not require a token")
	}
}

func TestAPIServerListens(t *testing.T) {
	srv, _ := newTestServer(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.stop()

	resp, err := http.Get("http://" + srv.addr() + "/api/baseline")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestNoServerWithoutBind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if srv := newAPIServer(cfg, &Daemon{}, nil); srv != nil {
		t.Fatal("server created without bind")
	}
}
