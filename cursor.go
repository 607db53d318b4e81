package ygggo_invdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

// Row is one result row keyed by column name. Byte slices are returned as strings.
type Row map[string]any

// Cursor is the handle a unit of work runs its statements through. For writes it
// is bound to the transaction; for reads to the borrowed connection.
type Cursor interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	// Query returns all rows.
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	// QueryRow returns the first row, or nil when there is none.
	QueryRow(ctx context.Context, query string, args ...any) (Row, error)
	// Scalar returns the first column of the first row, or nil when there is none.
	Scalar(ctx context.Context, query string, args ...any) (any, error)
}

// execQueryer is satisfied by both *sqlx.Conn and *sqlx.Tx.
type execQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
}

type cursor struct {
	m *Manager
	q execQueryer
}

func newCursor(m *Manager, q execQueryer) Cursor {
	return &cursor{m: m, q: q}
}

func (c *cursor) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := c.q.ExecContext(ctx, query, args...)
	c.m.logStatement(ctx, "exec", query, len(args), time.Since(start), err)
	return res, err
}

func (c *cursor) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	start := time.Now()
	rows, err := c.query(ctx, query, -1, args...)
	c.m.logStatement(ctx, "query", query, len(args), time.Since(start), err)
	return rows, err
}

func (c *cursor) QueryRow(ctx context.Context, query string, args ...any) (Row, error) {
	start := time.Now()
	rows, err := c.query(ctx, query, 1, args...)
	c.m.logStatement(ctx, "query_row", query, len(args), time.Since(start), err)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (c *cursor) Scalar(ctx context.Context, query string, args ...any) (v any, err error) {
	start := time.Now()
	defer func() { c.m.logStatement(ctx, "scalar", query, len(args), time.Since(start), err) }()

	rows, err := c.q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	vals, err := rows.SliceScan()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return normalize(vals[0]), rows.Err()
}

// query scans up to limit rows (all when limit < 0).
func (c *cursor) query(ctx context.Context, query string, limit int, args ...any) ([]Row, error) {
	rows, err := c.q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		r := map[string]any{}
		if err := rows.MapScan(r); err != nil {
			return nil, err
		}
		for k, v := range r {
			r[k] = normalize(v)
		}
		out = append(out, Row(r))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
