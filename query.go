package ygggo_invdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Statement is one SQL statement with its arguments.
type Statement struct {
	Query string
	Args  []any
}

// Stmt builds a Statement.
func Stmt(query string, args ...any) Statement {
	return Statement{Query: query, Args: args}
}

// WriteSummary is the outcome of ExecuteSingle and ExecuteMany.
type WriteSummary struct {
	RowCount  int64  `json:"rowcount"`
	LastRowID *int64 `json:"lastrowid"`
}

// TxSummary is the outcome of ExecuteTransaction.
type TxSummary struct {
	RowCount   int64  `json:"rowcount"`
	LastRowID  *int64 `json:"lastrowid"`
	Statements int    `json:"statements"`
}

// add folds one statement result into the running totals. LastRowID keeps the
// last non-zero id seen.
func (s *WriteSummary) add(res sql.Result) {
	if res == nil {
		return
	}
	if n, err := res.RowsAffected(); err == nil {
		s.RowCount += n
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		s.LastRowID = &id
	}
}

// FetchAll runs a read and returns every row.
func (e *Executor) FetchAll(ctx context.Context, query string, args ...any) Result[[]Row] {
	return Execute(ctx, e, func(ctx context.Context, cur Cursor) ([]Row, error) {
		return cur.Query(ctx, query, args...)
	}, false)
}

// FetchOne runs a read and returns the first row, or nil.
func (e *Executor) FetchOne(ctx context.Context, query string, args ...any) Result[Row] {
	return Execute(ctx, e, func(ctx context.Context, cur Cursor) (Row, error) {
		return cur.QueryRow(ctx, query, args...)
	}, false)
}

// FetchScalar runs a read and returns the first column of the first row, or nil.
func (e *Executor) FetchScalar(ctx context.Context, query string, args ...any) Result[any] {
	return Execute(ctx, e, func(ctx context.Context, cur Cursor) (any, error) {
		return cur.Scalar(ctx, query, args...)
	}, false)
}

// ExecuteSingle runs one write statement in its own transaction.
func (e *Executor) ExecuteSingle(ctx context.Context, query string, args ...any) Result[WriteSummary] {
	return Execute(ctx, e, func(ctx context.Context, cur Cursor) (WriteSummary, error) {
		var s WriteSummary
		res, err := cur.Exec(ctx, query, args...)
		if err != nil {
			return s, err
		}
		s.add(res)
		return s, nil
	}, true)
}

// ExecuteMany runs the same statement once per argument set, all in one transaction.
func (e *Executor) ExecuteMany(ctx context.Context, query string, argSets [][]any) Result[WriteSummary] {
	if len(argSets) == 0 {
		return Ok(WriteSummary{})
	}
	return Execute(ctx, e, func(ctx context.Context, cur Cursor) (WriteSummary, error) {
		var s WriteSummary
		for _, args := range argSets {
			res, err := cur.Exec(ctx, query, args...)
			if err != nil {
				return WriteSummary{}, err
			}
			s.add(res)
		}
		return s, nil
	}, true)
}

// ExecuteTransaction runs stmts in order inside one transaction. Any failure
// rolls back every statement.
func (e *Executor) ExecuteTransaction(ctx context.Context, stmts []Statement) Result[TxSummary] {
	if len(stmts) == 0 {
		return Ok(TxSummary{})
	}
	return Execute(ctx, e, func(ctx context.Context, cur Cursor) (TxSummary, error) {
		var s WriteSummary
		for i, st := range stmts {
			res, err := cur.Exec(ctx, st.Query, st.Args...)
			if err != nil {
				e.m.logEvent(ctx, slog.LevelWarn, LogCategoryExec, "transaction statement failed",
					slog.Int("statement", i+1),
					slog.Int("statements", len(stmts)),
				)
				return TxSummary{}, err
			}
			s.add(res)
		}
		return TxSummary{RowCount: s.RowCount, LastRowID: s.LastRowID, Statements: len(stmts)}, nil
	}, true)
}

// TestConnection runs SELECT 1 through the executor and checks the answer.
func (e *Executor) TestConnection(ctx context.Context) error {
	r := e.FetchScalar(ctx, "SELECT 1 AS test_value")
	v, f := r.Get()
	if f != nil {
		e.m.logEvent(ctx, slog.LevelError, LogCategoryTest, "database connection test failed",
			slog.String("error", f.Msg))
		return f
	}
	if fmt.Sprint(v) != "1" {
		err := fmt.Errorf("unexpected test value %v", v)
		e.m.logEvent(ctx, slog.LevelError, LogCategoryTest, "database connection test failed",
			slog.String("error", err.Error()))
		return err
	}
	e.m.logEvent(ctx, slog.LevelInfo, LogCategoryTest, "database connection test passed")
	return nil
}

// IsAvailable reports whether a trivial read currently succeeds.
func (e *Executor) IsAvailable(ctx context.Context) bool {
	return e.TestConnection(ctx) == nil
}
