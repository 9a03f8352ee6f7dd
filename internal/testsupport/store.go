package testsupport

import (
	"context"
	"testing"

	"gfimx/internal/baseline"
	"gfimx/internal/config"
)

// MustOpenStore opens the baseline store configured in cfg and registers
// cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) baseline.Store {
	t.Helper()

	store, err := baseline.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("baseline.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustRecord returns the stored record for path, failing the test when it is
// missing.
func MustRecord(t testing.TB, store baseline.Store, path string) baseline.Record {
	t.Helper()

	rec, err := store.Lookup(context.Background(), path)
	if err != nil {
		t.Fatalf("Lookup(%s): %v", path, err)
	}
	if rec == nil {
		t.Fatalf("Lookup(%s): no record", path)
	}
	return *rec
}
