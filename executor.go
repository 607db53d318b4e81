package ygggo_invdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"
)

// maxAttempts bounds how often a unit of work runs: once, plus one retry after
// a connectivity failure.
const maxAttempts = 2

// UnitOfWork is one logical operation run against a cursor.
type UnitOfWork[T any] func(ctx context.Context, cur Cursor) (T, error)

// Executor runs units of work against a Manager's pool with uniform commit,
// rollback, retry and classification behavior.
type Executor struct {
	m *Manager
}

// NewExecutor returns an executor over m.
func NewExecutor(m *Manager) *Executor {
	return &Executor{m: m}
}

// Manager returns the manager the executor borrows from.
func (e *Executor) Manager() *Manager { return e.m }

func modeName(write bool) string {
	if write {
		return "write"
	}
	return "read"
}

// Execute runs work once on a borrowed connection. Writes run inside a
// transaction that is committed on success and rolled back on error. A
// connectivity failure triggers one pool recovery and one more run. The
// connection is returned to the pool on every path, including panics.
// Cancelling ctx stops a wait for a connection but not a running unit.
func Execute[T any](ctx context.Context, e *Executor, work UnitOfWork[T], write bool) (res Result[T]) {
	m := e.m
	mode := modeName(write)
	ctx, span := m.startSpan(ctx, "execute."+mode)
	start := time.Now()
	attempts := 0
	defer func() {
		if r := recover(); r != nil {
			f := &Failure{Category: CategoryUnclassified, Msg: MsgUnexpected, cause: fmt.Errorf("panic: %v", r)}
			m.finishSpan(span, attempts, f)
			m.recordExecution(ctx, mode, time.Since(start), f)
			panic(r)
		}
		m.finishSpan(span, attempts, res.Err)
		m.recordExecution(ctx, mode, time.Since(start), res.Err)
	}()

	for {
		attempts++
		data, gen, acqErr, err := runAttempt(ctx, m, work, write)
		if acqErr != nil {
			m.logEvent(ctx, slog.LevelError, LogCategoryExec, "connection unavailable",
				slog.String("mode", mode),
				slog.Int("attempt", attempts),
				slog.String("error", acqErr.Error()),
			)
			return Fail[T](unavailable(acqErr))
		}
		if err == nil {
			return Ok(data)
		}
		if IsConnectivityError(err) && attempts < maxAttempts {
			m.logEvent(ctx, slog.LevelWarn, LogCategoryExec, "connection lost, recovering and retrying",
				slog.String("mode", mode),
				slog.Uint64("generation", gen),
				slog.String("error", err.Error()),
			)
			m.recordRetry(ctx, mode)
			if rerr := m.recover(ctx, gen, m.cfg.Retry.RecoveryAttempts); rerr != nil {
				m.logEvent(ctx, slog.LevelError, LogCategoryExec, "pool recovery failed",
					slog.String("error", rerr.Error()))
			}
			continue
		}
		f := newFailure(err)
		m.logEvent(ctx, slog.LevelError, LogCategoryExec, f.Msg,
			slog.String("mode", mode),
			slog.String("category", string(f.Category)),
			slog.String("diagnostic", f.Diagnostic),
			slog.Int("attempts", attempts),
		)
		return Fail[T](f)
	}
}

// runAttempt borrows a connection and runs work once. acqErr is set when no
// connection could be borrowed, in which case work was not invoked.
func runAttempt[T any](ctx context.Context, m *Manager, work UnitOfWork[T], write bool) (data T, gen uint64, acqErr, err error) {
	conn, acqErr := m.Conn(ctx)
	if acqErr != nil {
		return data, 0, acqErr, nil
	}
	gen = conn.Generation()
	defer conn.Close()

	// Once a connection is held the unit runs to completion; the caller's
	// deadline bounds only the wait for a connection.
	ctx = context.WithoutCancel(ctx)

	if !write {
		data, err = work(ctx, newCursor(m, conn.inner))
		return data, gen, nil, err
	}

	tx, err := conn.inner.BeginTxx(ctx, nil)
	if err != nil {
		return data, gen, nil, fmt.Errorf("begin: %w", err)
	}
	done := false
	defer func() {
		if done {
			return
		}
		if r := recover(); r != nil {
			rollback(ctx, m, tx, fmt.Errorf("panic: %v", r))
			panic(r)
		}
		rollback(ctx, m, tx, err)
	}()

	data, err = work(ctx, newCursor(m, tx))
	if err != nil {
		var zero T
		return zero, gen, nil, err
	}
	done = true
	if cerr := tx.Commit(); cerr != nil {
		var zero T
		return zero, gen, nil, cerr
	}
	return data, gen, nil, nil
}

// rollback rolls tx back. A rollback failure is logged and does not change the
// outcome of the unit of work.
func rollback(ctx context.Context, m *Manager, tx *sqlx.Tx, cause error) {
	rbErr := tx.Rollback()
	attrs := []slog.Attr{}
	if cause != nil {
		attrs = append(attrs, slog.String("cause", cause.Error()))
	}
	if rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		combined := multierror.Append(cause, fmt.Errorf("rollback: %w", rbErr))
		attrs = append(attrs, slog.String("error", combined.Error()))
		m.logEvent(ctx, slog.LevelError, LogCategoryRollback, "rollback failed", attrs...)
		return
	}
	m.logEvent(ctx, slog.LevelWarn, LogCategoryRollback, "transaction rolled back", attrs...)
}
