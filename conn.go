package ygggo_invdb

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
)

// Conn wraps a single connection borrowed from a Pool.
// It must be closed to return the connection back to the pool.
type Conn struct {
	inner    *sqlx.Conn
	p        *Pool
	acqNS    int64 // acquisition time (ns)
	released atomic.Bool
}

// WithConn acquires a connection, calls fn, and always returns the connection.
func (m *Manager) WithConn(ctx context.Context, fn func(*Conn) error) error {
	conn, err := m.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

func (c *Conn) markAcquired(ctx context.Context) {
	if c == nil || c.p == nil {
		return
	}
	atomic.StoreInt64(&c.acqNS, time.Now().UnixNano())
	c.p.onBorrow(ctx)
}

// Generation returns the generation of the pool the connection came from.
func (c *Conn) Generation() uint64 {
	if c == nil || c.p == nil {
		return 0
	}
	return c.p.gen
}

// HeldFor reports how long the connection has been borrowed.
func (c *Conn) HeldFor() time.Duration {
	return time.Duration(time.Now().UnixNano() - atomic.LoadInt64(&c.acqNS))
}

// Cursor returns a non-transactional cursor over the connection.
func (c *Conn) Cursor() Cursor {
	return newCursor(c.p.m, c.inner)
}

// Close returns the connection to the pool. It is safe to call more than once.
func (c *Conn) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	if !c.released.CompareAndSwap(false, true) {
		return nil
	}
	c.p.onReturn()
	return c.inner.Close()
}
