package ygggo_invdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	_ "modernc.org/sqlite"
)

// OpenFunc opens (but need not verify) a *sql.DB for cfg.
type OpenFunc func(ctx context.Context, cfg Config) (*sql.DB, error)

// Pool is one generation of the connection pool: a *sqlx.DB plus the
// generation number the manager assigned to it.
type Pool struct {
	name string
	db   *sqlx.DB
	gen  uint64
	m    *Manager
}

// openDB is the default OpenFunc.
func openDB(telemetry bool) OpenFunc {
	return func(ctx context.Context, cfg Config) (*sql.DB, error) {
		dsn, err := dsnFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		if telemetry {
			return otelsql.Open(cfg.Driver, dsn,
				otelsql.WithAttributes(
					attribute.String("db.system", cfg.Driver),
					attribute.String("db.pool", cfg.PoolName),
				),
			)
		}
		return sql.Open(cfg.Driver, dsn)
	}
}

// newPool opens, sizes and verifies a pool.
func newPool(ctx context.Context, m *Manager, gen uint64) (*Pool, error) {
	open := m.open
	if open == nil {
		open = openDB(m.telemetryEnabled.Load())
	}
	raw, err := open(ctx, m.cfg)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("open returned a nil *sql.DB")
	}
	size := m.cfg.Pool.Size
	raw.SetMaxOpenConns(size)
	raw.SetMaxIdleConns(size)
	if m.cfg.Pool.ConnMaxLifetime > 0 {
		raw.SetConnMaxLifetime(m.cfg.Pool.ConnMaxLifetime)
	}
	if m.cfg.Pool.ConnMaxIdleTime > 0 {
		raw.SetConnMaxIdleTime(m.cfg.Pool.ConnMaxIdleTime)
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Pool{
		name: m.cfg.PoolName,
		db:   sqlx.NewDb(raw, m.cfg.Driver),
		gen:  gen,
		m:    m,
	}, nil
}

// Generation returns the generation number of the pool.
func (p *Pool) Generation() uint64 { return p.gen }

// DB returns the underlying *sql.DB.
func (p *Pool) DB() *sql.DB {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.DB
}

// Acquire gets a connection from the underlying *sql.DB honoring context.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	if p == nil || p.db == nil {
		return nil, errors.New("nil pool")
	}
	c, err := p.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	conn := &Conn{inner: c, p: p}
	conn.markAcquired(ctx)
	return conn, nil
}

// Close closes the pool. Borrowed connections are closed when returned.
func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Pool) onBorrow(ctx context.Context) {
	if p.m == nil {
		return
	}
	p.m.acquired.Add(1)
	p.m.recordAcquired(ctx)
}

func (p *Pool) onReturn() {
	if p.m == nil {
		return
	}
	p.m.released.Add(1)
	p.m.recordReleased(context.Background())
}
