package testutil

import (
	"path/filepath"
	"testing"

	"github.com/wesm/wahistory/internal/store"
)

// NewTestStore creates a migrated temporary database that is closed when
// the test completes.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if _, err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}
