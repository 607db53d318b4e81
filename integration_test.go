//go:build integration

package ygggo_invdb

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/wait"
)

// mysqlHelper manages a MySQL container and a Manager pointed at it.
type mysqlHelper struct {
	container testcontainers.Container
	m         *Manager
	e         *Executor
	cfg       Config
}

func newMySQLHelper(t *testing.T) *mysqlHelper {
	t.Helper()
	ctx := context.Background()
	c, err := mysql.Run(ctx,
		"mysql:8.0",
		mysql.WithDatabase("system_database"),
		mysql.WithUsername("inventory"),
		mysql.WithPassword("inventory"),
		testcontainers.WithEnv(map[string]string{
			"MYSQL_ROOT_PASSWORD": "rootpass",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForLog("port: 3306  MySQL Community Server").
				WithOccurrence(1).
				WithStartupTimeout(90*time.Second),
		),
	)
	require.NoError(t, err, "start MySQL container")
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "3306")
	require.NoError(t, err)
	portInt, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Host = host
	cfg.Port = portInt
	cfg.Username = "inventory"
	cfg.Password = "inventory"
	cfg.Database = "system_database"
	cfg.Pool.Size = 5
	cfg.Retry.MaxAttempts = 5
	cfg.Retry.TotalDuration = 5 * time.Second
	cfg.Logging.Enabled = false

	m := newTestManager(t, cfg)
	h := &mysqlHelper{container: c, m: m, e: NewExecutor(m), cfg: cfg}
	require.NoError(t, h.e.TestConnection(ctx))
	h.schema(t)
	return h
}

func (h *mysqlHelper) schema(t *testing.T) {
	t.Helper()
	for _, ddl := range []string{
		`CREATE TABLE locations (
			id INT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(16) NOT NULL UNIQUE
		) ENGINE=InnoDB`,
		`CREATE TABLE equipment (
			id INT AUTO_INCREMENT PRIMARY KEY,
			serial VARCHAR(32) NOT NULL UNIQUE,
			location_id INT NOT NULL,
			FOREIGN KEY (location_id) REFERENCES locations(id)
		) ENGINE=InnoDB`,
	} {
		r := h.e.ExecuteSingle(context.Background(), ddl)
		require.True(t, r.OK(), "%+v", r.Err)
	}
}

func TestIntegration_ClassificationAgainstMySQL(t *testing.T) {
	h := newMySQLHelper(t)
	ctx := context.Background()

	r := h.e.ExecuteSingle(ctx, "INSERT INTO locations (name) VALUES (?)", "dock")
	require.True(t, r.OK())
	locID := *r.Data.LastRowID
	require.True(t, h.e.ExecuteSingle(ctx, "INSERT INTO equipment (serial, location_id) VALUES (?, ?)", "SN-1", locID).OK())

	dup := h.e.ExecuteSingle(ctx, "INSERT INTO locations (name) VALUES (?)", "dock")
	require.False(t, dup.OK())
	assert.Equal(t, MsgDuplicate, dup.Err.Msg)
	require.NotNil(t, dup.Err.Errno)
	assert.Equal(t, 1062, *dup.Err.Errno)
	assert.Equal(t, "23000", dup.Err.SQLState)

	fk := h.e.ExecuteSingle(ctx, "INSERT INTO equipment (serial, location_id) VALUES (?, ?)", "SN-2", 9999)
	require.False(t, fk.OK())
	assert.Equal(t, MsgInvalidReference, fk.Err.Msg)

	inUse := h.e.ExecuteSingle(ctx, "DELETE FROM locations WHERE id = ?", locID)
	require.False(t, inUse.OK())
	assert.Equal(t, MsgStillReferenced, inUse.Err.Msg)

	long := h.e.ExecuteSingle(ctx, "INSERT INTO locations (name) VALUES (?)", strings.Repeat("x", 64))
	require.False(t, long.OK())
	assert.Equal(t, MsgTooLong, long.Err.Msg)
}

func TestIntegration_TransactionAtomicity(t *testing.T) {
	h := newMySQLHelper(t)
	ctx := context.Background()
	require.True(t, h.e.ExecuteSingle(ctx, "INSERT INTO locations (name) VALUES (?)", "warehouse").OK())

	r := h.e.ExecuteTransaction(ctx, []Statement{
		Stmt("INSERT INTO locations (name) VALUES (?)", "dock"),
		Stmt("UPDATE locations SET name = ? WHERE name = ?", "main", "warehouse"),
		Stmt("INSERT INTO locations (name) VALUES (?)", "dock"),
	})
	require.False(t, r.OK())
	assert.Equal(t, MsgDuplicate, r.Err.Msg)

	rows := h.e.FetchAll(ctx, "SELECT name FROM locations ORDER BY id")
	require.True(t, rows.OK())
	require.Len(t, rows.Data, 1)
	assert.Equal(t, "warehouse", rows.Data[0]["name"])
}

func TestIntegration_ForceReconnect(t *testing.T) {
	h := newMySQLHelper(t)
	ctx := context.Background()
	require.NoError(t, h.m.ForceReconnect(ctx))
	assert.True(t, h.e.IsAvailable(ctx))
	assert.EqualValues(t, 1, h.m.Stats().Recreated)
}

func TestIntegration_RecoversAfterRestart(t *testing.T) {
	h := newMySQLHelper(t)
	ctx := context.Background()

	timeout := 30 * time.Second
	require.NoError(t, h.container.Stop(ctx, &timeout))
	require.NoError(t, h.container.Start(ctx))

	// the mapped port can change across restarts
	port, err := h.container.MappedPort(ctx, "3306")
	require.NoError(t, err)
	if port.Port() != strconv.Itoa(h.cfg.Port) {
		t.Skip("mapped port changed across restart")
	}

	require.Eventually(t, func() bool {
		return h.e.FetchScalar(ctx, "SELECT 1").OK()
	}, 60*time.Second, time.Second)
	st := h.m.Stats()
	assert.Equal(t, st.Acquired, st.Released)
}
