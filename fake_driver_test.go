package ygggo_invdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

// fakeBackend is an in-process stand-in for a database server. It can be made
// unreachable, and counts dials.
type fakeBackend struct {
	reachable atomic.Bool
	dials     atomic.Int64
}

func (b *fakeBackend) Open(name string) (driver.Conn, error) {
	b.dials.Add(1)
	if !b.reachable.Load() {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	}
	return &fakeConn{}, nil
}

type fakeConn struct{}

func (*fakeConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported")
}
func (*fakeConn) Close() error { return nil }

func (*fakeConn) Begin() (driver.Tx, error) { return fakeTx{}, nil }

func (*fakeConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) { return fakeTx{}, nil }

func (*fakeConn) Ping(ctx context.Context) error { return nil }

func (*fakeConn) ResetSession(ctx context.Context) error { return nil }

func (*fakeConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return &fakeRows{cols: []string{"test_value"}, vals: [][]driver.Value{{int64(1)}}}, nil
}

func (*fakeConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	return driver.RowsAffected(1), nil
}

type fakeTx struct{}

func (fakeTx) Commit() error { return nil }

func (fakeTx) Rollback() error { return nil }

type fakeRows struct {
	cols []string
	vals [][]driver.Value
	i    int
}

func (r *fakeRows) Columns() []string { return r.cols }

func (r *fakeRows) Close() error { return nil }
func (r *fakeRows) Next(dest []driver.Value) error {
	if r.i >= len(r.vals) {
		return io.EOF
	}
	copy(dest, r.vals[r.i])
	r.i++
	return nil
}

var (
	fakeRegistry   sync.Map // dsn -> *fakeBackend
	fakeRegisterMu sync.Once
)

type fakeDriver struct{}

func (fakeDriver) Open(name string) (driver.Conn, error) {
	b, ok := fakeRegistry.Load(name)
	if !ok {
		return nil, fmt.Errorf("unknown fake backend %q", name)
	}
	return b.(*fakeBackend).Open(name)
}

const fakeDriverName = "invdb-fake"

// newFakeBackend registers a backend under a unique DSN and returns a config
// pointing at it with fast retry bounds.
func newFakeBackend(t *testing.T, reachable bool) (*fakeBackend, Config) {
	t.Helper()
	fakeRegisterMu.Do(func() { sql.Register(fakeDriverName, fakeDriver{}) })
	b := &fakeBackend{}
	b.reachable.Store(reachable)
	dsn := fmt.Sprintf("%s-%d", t.Name(), time.Now().UnixNano())
	fakeRegistry.Store(dsn, b)
	t.Cleanup(func() { fakeRegistry.Delete(dsn) })

	cfg := DefaultConfig()
	cfg.Driver = fakeDriverName
	cfg.DSN = dsn
	cfg.Pool.Size = 4
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.TotalDuration = 30 * time.Millisecond
	cfg.Logging.Enabled = false
	return b, cfg
}

func newTestManager(t *testing.T, cfg Config, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(cfg, opts...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}
