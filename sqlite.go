package ygggo_invdb

import (
	"time"
)

// MemoryDatabase selects an in-memory SQLite database.
const MemoryDatabase = ":memory:"

// NewSQLiteConfig returns a Config for an embedded SQLite database at path.
// Foreign keys are enforced. An in-memory database is limited to a single
// connection so every borrower sees the same data.
func NewSQLiteConfig(path string) Config {
	cfg := DefaultConfig()
	cfg.Driver = DriverSQLite
	cfg.Host = ""
	cfg.Port = 0
	cfg.Username = ""
	cfg.Database = path
	cfg.Pool = PoolConfig{
		Size:            4,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
	if path == MemoryDatabase {
		cfg.Pool.Size = 1
		cfg.Pool.ConnMaxLifetime = 0
		cfg.Pool.ConnMaxIdleTime = 0
	}
	return cfg
}
