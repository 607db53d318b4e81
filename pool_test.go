package ygggo_invdb

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestPool_SizedFromConfig(t *testing.T) {
	_, cfg := newFakeBackend(t, true)
	cfg.Pool.Size = 3
	cfg.Pool.ConnMaxLifetime = time.Minute
	m := newTestManager(t, cfg)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := m.DB().Stats().MaxOpenConnections; got != 3 {
		t.Fatalf("max open=%d want 3", got)
	}
}

func TestPool_NilOpenResult(t *testing.T) {
	_, cfg := newFakeBackend(t, true)
	m := newTestManager(t, cfg, WithOpenFunc(func(context.Context, Config) (*sql.DB, error) {
		return nil, nil
	}))
	err := m.Initialize(context.Background())
	if !errors.Is(err, ErrPoolUnavailable) {
		t.Fatalf("err=%v want ErrPoolUnavailable", err)
	}
}

func TestPool_NilSafe(t *testing.T) {
	var p *Pool
	if p.DB() != nil {
		t.Fatal("nil pool DB should be nil")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("nil pool close: %v", err)
	}
	if _, err := p.Acquire(context.Background()); err == nil {
		t.Fatal("nil pool acquire should fail")
	}
}

func TestPool_TelemetryDriverWrapsSQLite(t *testing.T) {
	cfg := NewSQLiteConfig(filepath.Join(t.TempDir(), "otel.db"))
	cfg.Logging.Enabled = false
	cfg.Telemetry.Enabled = true
	m := newTestManager(t, cfg)
	e := NewExecutor(m)
	if err := e.TestConnection(context.Background()); err != nil {
		t.Fatalf("TestConnection through otelsql: %v", err)
	}
	if g := m.Stats().Generation; g != 1 {
		t.Fatalf("generation=%d want 1", g)
	}
}
