package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yggai/ygggo_invdb/access"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeFile(t, `
addr: ":9090"
jwt_secret: "0123456789abcdef0123456789abcdef"
access_levels:
  root: 0
  admin: 1
  clerk: 2
  guest: 5
root_admin:
  email: root@example.com
timeouts:
  shutdown: 3s
database:
  driver: sqlite
  database: ":memory:"
  pool:
    size: 1
  retry:
    max_attempts: 4
    total_duration: 2s
`)
	t.Setenv(EnvRootAdminPassword, "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "root@example.com", cfg.Root.Email)
	assert.Equal(t, "from-env", cfg.Root.Password)
	assert.Equal(t, 3*time.Second, cfg.Timeouts.Shutdown)
	assert.Equal(t, 15*time.Second, cfg.Timeouts.Read)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 4, cfg.Database.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Database.Retry.Delay())
	// Unset database fields keep their defaults.
	assert.Equal(t, 20, cfg.Database.Retry.StartupMaxAttempts)

	table, err := cfg.Table()
	require.NoError(t, err)
	lvl, ok := table.Lookup("clerk")
	assert.True(t, ok)
	assert.Equal(t, access.Level(2), lvl)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeFile(t, `
jwt_secret: "0123456789abcdef0123456789abcdef"
database:
  driver: sqlite
  database: ":memory:"
`)
	t.Setenv(EnvAddr, "127.0.0.1:7000")
	t.Setenv(EnvJWTSecret, "ffffffffffffffffffffffffffffffffffff")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
	assert.Equal(t, "ffffffffffffffffffffffffffffffffffff", cfg.JWTSecret)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "addr: [unterminated"))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, `
jwt_secret: short
database:
  driver: sqlite
  database: ":memory:"
`))
	assert.ErrorContains(t, err, "jwt_secret")

	_, err = LoadConfig(writeFile(t, `
jwt_secret: "0123456789abcdef0123456789abcdef"
access_levels:
  root: -1
database:
  driver: sqlite
  database: ":memory:"
`))
	assert.ErrorContains(t, err, "access_levels")

	_, err = LoadConfig(writeFile(t, `
jwt_secret: "0123456789abcdef0123456789abcdef"
database:
  driver: sqlite
  database: ":memory:"
  pool:
    size: 0
`))
	assert.ErrorContains(t, err, "database")
}

func TestDefaultTableWhenUnset(t *testing.T) {
	table, err := DefaultConfig().Table()
	require.NoError(t, err)
	assert.Len(t, table.Entries(), len(access.DefaultLevels()))
}
