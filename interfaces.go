package ygggo_invdb

import "context"

// Querier is the data-access surface handed to route handlers. *Executor
// implements it; tests substitute spies.
type Querier interface {
	FetchAll(ctx context.Context, query string, args ...any) Result[[]Row]
	FetchOne(ctx context.Context, query string, args ...any) Result[Row]
	FetchScalar(ctx context.Context, query string, args ...any) Result[any]
	ExecuteSingle(ctx context.Context, query string, args ...any) Result[WriteSummary]
	ExecuteMany(ctx context.Context, query string, argSets [][]any) Result[WriteSummary]
	ExecuteTransaction(ctx context.Context, stmts []Statement) Result[TxSummary]
}

var (
	_ Querier = (*Executor)(nil)
)
