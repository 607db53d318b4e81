package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	invdb "github.com/yggai/ygggo_invdb"
)

var schema = []string{`CREATE TABLE account_roles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	access_level INTEGER NOT NULL
)`, `CREATE TABLE accounts (
	id TEXT PRIMARY KEY,
	role_id INTEGER NOT NULL REFERENCES account_roles(id),
	first_name TEXT,
	middle_name TEXT,
	last_name TEXT,
	email TEXT NOT NULL,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL
)`}

func newManager(t *testing.T, path string) *invdb.Manager {
	t.Helper()
	cfg := invdb.NewSQLiteConfig(path)
	cfg.Logging.Enabled = false
	cfg.Retry.StartupMaxAttempts = 2
	cfg.Retry.StartupTotalDuration = 20 * time.Millisecond
	m, err := invdb.NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func newChecker(t *testing.T) (*Checker, *invdb.Executor) {
	t.Helper()
	m := newManager(t, filepath.Join(t.TempDir(), "system.db"))
	ctx := context.Background()
	require.NoError(t, m.Initialize(ctx))
	e := invdb.NewExecutor(m)
	for _, stmt := range schema {
		r := e.ExecuteSingle(ctx, stmt)
		require.True(t, r.OK(), "schema: %v", r.Err)
	}

	c := New(m, RootAccount{Email: "root@example.com", Password: "s3cret"}, nil)
	c.hashCost = bcrypt.MinCost
	return c, e
}

func scalar(t *testing.T, e *invdb.Executor, query string, args ...any) any {
	t.Helper()
	v, f := e.FetchScalar(context.Background(), query, args...).Get()
	require.Nil(t, f)
	return v
}

func TestRunSeedsRootRoleAndAccount(t *testing.T) {
	c, e := newChecker(t)
	ctx := context.Background()

	require.NoError(t, c.Run(ctx))

	assert.EqualValues(t, 1, scalar(t, e, "SELECT COUNT(*) FROM account_roles WHERE access_level = 0"))
	assert.Equal(t, RootRoleName, scalar(t, e, "SELECT name FROM account_roles WHERE access_level = 0"))

	row, f := e.FetchOne(ctx, "SELECT id, username, password_hash FROM accounts WHERE email = ?", "root@example.com").Get()
	require.Nil(t, f)
	require.NotNil(t, row)
	assert.Equal(t, "admin@system", row["username"])
	assert.Len(t, row["id"], 36)
	hash, _ := row["password_hash"].(string)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
}

func TestRunIsIdempotent(t *testing.T) {
	c, e := newChecker(t)
	ctx := context.Background()

	require.NoError(t, c.Run(ctx))
	require.NoError(t, c.Run(ctx))

	assert.EqualValues(t, 1, scalar(t, e, "SELECT COUNT(*) FROM account_roles"))
	assert.EqualValues(t, 1, scalar(t, e, "SELECT COUNT(*) FROM accounts"))
}

func TestEnsureRootRoleReusesExisting(t *testing.T) {
	c, e := newChecker(t)
	ctx := context.Background()
	r := e.ExecuteSingle(ctx, "INSERT INTO account_roles (name, access_level) VALUES (?, ?)", "Superuser", 0)
	require.True(t, r.OK())

	id, err := c.EnsureRootRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, *r.Data.LastRowID, id)
	assert.EqualValues(t, 1, scalar(t, e, "SELECT COUNT(*) FROM account_roles"))
}

func TestEnsureRootAccountWithoutRole(t *testing.T) {
	c, _ := newChecker(t)
	assert.ErrorIs(t, c.EnsureRootAccount(context.Background(), nil), ErrNoRootRole)
}

func TestEnsureRootAccountSkipsWithoutEmail(t *testing.T) {
	c, e := newChecker(t)
	ctx := context.Background()
	c.root.Email = ""

	id, err := c.EnsureRootRole(ctx)
	require.NoError(t, err)
	require.NoError(t, c.EnsureRootAccount(ctx, id))
	assert.EqualValues(t, 0, scalar(t, e, "SELECT COUNT(*) FROM accounts"))
}

func TestRunFailsWhenDatabaseUnreachable(t *testing.T) {
	m := newManager(t, filepath.Join(t.TempDir(), "missing", "dir", "system.db"))
	c := New(m, RootAccount{Email: "root@example.com"}, nil)

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, invdb.ErrPoolUnavailable)
	assert.Equal(t, invdb.StateAbsent, m.State())
}

func TestRunReportsSeedFailure(t *testing.T) {
	m := newManager(t, filepath.Join(t.TempDir(), "empty.db"))
	c := New(m, RootAccount{Email: "root@example.com"}, nil)

	// No schema: the pool comes up but the role lookup fails.
	err := c.Run(context.Background())
	require.Error(t, err)
	var f *invdb.Failure
	assert.ErrorAs(t, err, &f)
	assert.Equal(t, invdb.StateReady, m.State())
}
