package ygggo_invdb

import (
	"context"
	"path/filepath"
	"testing"
)

// testHelper provides utilities for testing against a SQLite file database.
type testHelper struct {
	t *testing.T
	m *Manager
	e *Executor
}

// newTestHelper creates a manager over a fresh SQLite file in t.TempDir().
func newTestHelper(t *testing.T, opts ...Option) *testHelper {
	t.Helper()
	cfg := NewSQLiteConfig(filepath.Join(t.TempDir(), "inventory.db"))
	cfg.Logging.Enabled = false
	m := newTestManager(t, cfg, opts...)
	return &testHelper{t: t, m: m, e: NewExecutor(m)}
}

// exec runs a write and fails the test on error.
func (h *testHelper) exec(query string, args ...any) WriteSummary {
	h.t.Helper()
	r := h.e.ExecuteSingle(context.Background(), query, args...)
	if !r.OK() {
		h.t.Fatalf("exec %q: %s (%s)", query, r.Err.Msg, r.Err.Diagnostic)
	}
	return r.Data
}

// count returns the number of rows in table.
func (h *testHelper) count(table string) int64 {
	h.t.Helper()
	r := h.e.FetchScalar(context.Background(), "SELECT COUNT(*) FROM "+table)
	if !r.OK() {
		h.t.Fatalf("count %s: %s", table, r.Err.Msg)
	}
	n, ok := r.Data.(int64)
	if !ok {
		h.t.Fatalf("count %s: unexpected type %T", table, r.Data)
	}
	return n
}

// setupInventory creates the locations/equipment schema used across tests.
func (h *testHelper) setupInventory() {
	h.t.Helper()
	h.exec(`CREATE TABLE locations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`)
	h.exec(`CREATE TABLE equipment (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		serial TEXT NOT NULL UNIQUE,
		location_id INTEGER NOT NULL REFERENCES locations(id)
	)`)
}
