// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/earlfranciss/swiftshield/internal/store"
)

// NewTestStore returns an empty in-memory store, closed when t ends.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})
	return s
}

// NewStoreWithIntent returns a test store whose persisted intent is
// already sms and gmail, as if a previous run had toggled them.
func NewStoreWithIntent(t *testing.T, sms, gmail bool) *store.SQLiteStore {
	t.Helper()

	s := NewTestStore(t)
	if err := s.SetIntent(context.Background(), sms, gmail); err != nil {
		t.Fatalf("seeding intent: %v", err)
	}
	return s
}

// NewStoreWithCursor returns a test store whose mail cursor is uid, so a
// poller skips its first-run history scan.
func NewStoreWithCursor(t *testing.T, uid uint32) *store.SQLiteStore {
	t.Helper()

	s := NewTestStore(t)
	if err := s.SetMailCursor(context.Background(), uid); err != nil {
		t.Fatalf("seeding mail cursor: %v", err)
	}
	return s
}
