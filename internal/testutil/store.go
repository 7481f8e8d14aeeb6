// Package testutil collects test fixtures — fresh in-memory stores, a ZIP
// archive builder, and minimal DAT documents; the facade test suite is
// its user — following the teacher's own
// testutil conventions (in-memory database helpers, mock filesystem
// builders).
package testutil

import (
	"testing"

	"romshelf/internal/catalogue"
)

// NewStore opens a fresh in-memory catalogue Store with migrations
// applied, closing it automatically when the test completes.
func NewStore(t *testing.T) *catalogue.Store {
	t.Helper()
	store, err := catalogue.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("testutil.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
