package testutil

import (
	"testing"

	"github.com/ringworld/server/internal/clock"
	"github.com/ringworld/server/internal/world"
)

// SetupTestStore opens an in-memory SQLite chunk store for tests.
// The store is closed automatically when the test finishes.
func SetupTestStore(t *testing.T) world.Store {
	t.Helper()

	store, err := world.OpenSQLiteStore(":memory:", clock.System())
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Logf("Warning: failed to close test store: %v", err)
		}
	})
	return store
}

// SetupMemoryStore creates a plain in-memory chunk store. Faster than the
// SQLite store for tests that hammer the CAS path.
func SetupMemoryStore(t *testing.T) world.Store {
	t.Helper()
	return world.NewMemoryStore(clock.System())
}
