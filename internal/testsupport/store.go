package testsupport

import (
	"context"
	"testing"

	"seebeck/internal/config"
	"seebeck/internal/run"
)

// MustOpenStore opens a run.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *run.Store {
	t.Helper()

	store, err := run.Open(cfg)
	if err != nil {
		t.Fatalf("run.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustNewRun inserts a pending run with config-derived params and fails the
// test on error.
func MustNewRun(t testing.TB, store *run.Store, cfg *config.Config, label, fingerprint string) *run.Run {
	t.Helper()

	r, err := store.NewRun(context.Background(), label, fingerprint, run.ParamsFromConfig(cfg))
	if err != nil {
		t.Fatalf("store.NewRun: %v", err)
	}
	return r
}
