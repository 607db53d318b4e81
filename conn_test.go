package ygggo_invdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestConn_WithConnReleases(t *testing.T) {
	_, cfg := newFakeBackend(t, true)
	m := newTestManager(t, cfg)
	ctx := context.Background()

	wantErr := errors.New("callback failed")
	err := m.WithConn(ctx, func(c *Conn) error {
		if c.Generation() != 1 {
			t.Fatalf("generation=%d want 1", c.Generation())
		}
		if got := m.Stats().InUse(); got != 1 {
			t.Fatalf("in use=%d want 1", got)
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err=%v want %v", err, wantErr)
	}
	if got := m.Stats().InUse(); got != 0 {
		t.Fatalf("in use after WithConn=%d want 0", got)
	}
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	_, cfg := newFakeBackend(t, true)
	m := newTestManager(t, cfg)

	c, err := m.Conn(context.Background())
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := c.Close(); err != nil {
			t.Fatalf("close #%d: %v", i+1, err)
		}
	}
	st := m.Stats()
	if st.Acquired != 1 || st.Released != 1 {
		t.Fatalf("acquired=%d released=%d want 1/1", st.Acquired, st.Released)
	}

	var nilConn *Conn
	if err := nilConn.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
	if nilConn.Generation() != 0 {
		t.Fatalf("nil generation should be 0")
	}
}

func TestConn_HeldFor(t *testing.T) {
	_, cfg := newFakeBackend(t, true)
	m := newTestManager(t, cfg)

	c, err := m.Conn(context.Background())
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	defer c.Close()
	time.Sleep(5 * time.Millisecond)
	if c.HeldFor() < 5*time.Millisecond {
		t.Fatalf("HeldFor=%v, want >= 5ms", c.HeldFor())
	}
}

func TestConn_CursorOutsideTransaction(t *testing.T) {
	cfg := NewSQLiteConfig(filepath.Join(t.TempDir(), "conn.db"))
	cfg.Logging.Enabled = false
	m := newTestManager(t, cfg)
	ctx := context.Background()

	err := m.WithConn(ctx, func(c *Conn) error {
		cur := c.Cursor()
		if _, err := cur.Exec(ctx, "CREATE TABLE locations (id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
			return err
		}
		if _, err := cur.Exec(ctx, "INSERT INTO locations (name) VALUES (?)", "dock"); err != nil {
			return err
		}
		v, err := cur.Scalar(ctx, "SELECT name FROM locations")
		if err != nil {
			return err
		}
		if v != "dock" {
			t.Fatalf("scalar=%v want dock", v)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithConn: %v", err)
	}
}
