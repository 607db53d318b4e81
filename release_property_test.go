package ygggo_invdb

import (
	"context"
	"errors"
	"testing"

	mysql "github.com/go-sql-driver/mysql"
	"pgregory.net/rapid"
)

type opKind int

const (
	opSuccess opKind = iota
	opClassified
	opUnclassified
	opConnectivityOnce
	opConnectivityTwice
	opPanic
)

// runOp executes one unit of work of the given kind and swallows panics.
func runOp(ctx context.Context, e *Executor, kind opKind, write bool) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
		}
	}()
	calls := 0
	Execute(ctx, e, func(ctx context.Context, cur Cursor) (any, error) {
		calls++
		switch kind {
		case opClassified:
			return nil, &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
		case opUnclassified:
			return nil, errors.New("syntax error near 'SELEC'")
		case opConnectivityOnce:
			if calls == 1 {
				return nil, &mysql.MySQLError{Number: 2006, Message: "MySQL server has gone away"}
			}
		case opConnectivityTwice:
			return nil, &mysql.MySQLError{Number: 2013, Message: "Lost connection"}
		case opPanic:
			panic("boom")
		}
		if write {
			_, err := cur.Exec(ctx, "UPDATE locations SET name = name")
			return nil, err
		}
		return cur.Scalar(ctx, "SELECT 1")
	}, write)
	return false
}

func TestProperty_EveryAcquiredConnectionIsReleased(t *testing.T) {
	_, cfg := newFakeBackend(t, true)
	cfg.Retry.TotalDuration = 0
	m := newTestManager(t, cfg)
	e := NewExecutor(m)
	ctx := context.Background()
	total := 0

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(10, 40).Draw(rt, "ops")
		for i := 0; i < n; i++ {
			kind := opKind(rapid.IntRange(int(opSuccess), int(opPanic)).Draw(rt, "kind"))
			write := rapid.Bool().Draw(rt, "write")
			panicked := runOp(ctx, e, kind, write)
			if panicked != (kind == opPanic) {
				rt.Fatalf("op %d: panicked=%v for kind %d", i, panicked, kind)
			}
			st := m.Stats()
			if st.Acquired != st.Released {
				rt.Fatalf("op %d (kind %d, write %v): acquired %d released %d", i, kind, write, st.Acquired, st.Released)
			}
			total++
		}
	})

	if total < 1000 {
		t.Fatalf("only %d operations exercised", total)
	}
	if db := m.DB(); db != nil && db.Stats().InUse != 0 {
		t.Fatalf("%d connections still in use", db.Stats().InUse)
	}
}
