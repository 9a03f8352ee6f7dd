package fault_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gfimx/internal/fault"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("connection refused")
	err := fault.Wrap(fault.ErrStoreUnavailable, "baseline", "lookup", "query failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, fault.ErrStoreUnavailable) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"baseline", "lookup", "query failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := fault.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, fault.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestStartupClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"store", fault.Wrap(fault.ErrStoreUnavailable, "baseline", "open", "", nil), true},
		{"broker", fault.Wrap(fault.ErrBrokerUnavailable, "broker", "policy", "", nil), true},
		{"policy", fault.Wrap(fault.ErrPolicy, "policy", "parse", "", nil), true},
		{"configuration", fault.Wrap(fault.ErrConfiguration, "config", "load", "", nil), true},
		{"item", fault.Wrap(fault.ErrItem, "reader", "read", "", nil), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fault.Startup(tt.err); got != tt.want {
				t.Fatalf("Startup(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestKindLabels(t *testing.T) {
	if got := fault.Kind(nil); got != "ok" {
		t.Fatalf("Kind(nil) = %q", got)
	}
	if got := fault.Kind(fault.Wrap(fault.ErrItem, "hasher", "fold", "", nil)); got != "item" {
		t.Fatalf("Kind(item) = %q", got)
	}
	if got := fault.Kind(errors.New("x")); got != "transient" {
		t.Fatalf("Kind(plain) = %q", got)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := fault.ScanIDFromContext(ctx); ok {
		t.Fatal("expected no scan id on empty context")
	}
	ctx = fault.WithScanID(ctx, "scan-1")
	ctx = fault.WithStage(ctx, "hasher")
	ctx = fault.WithTarget(ctx, "nightly")
	ctx = fault.WithStage(ctx, "")

	if id, ok := fault.ScanIDFromContext(ctx); !ok || id != "scan-1" {
		t.Fatalf("unexpected scan id %q (%v)", id, ok)
	}
	if stage, ok := fault.StageFromContext(ctx); !ok || stage != "hasher" {
		t.Fatalf("unexpected stage %q (%v)", stage, ok)
	}
	if target, ok := fault.TargetFromContext(ctx); !ok || target != "nightly" {
		t.Fatalf("unexpected target %q (%v)", target, ok)
	}
}
