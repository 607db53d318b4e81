package ygggo_invdb

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	mysql "github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

// Driver names understood by the pool opener.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// PoolConfig holds pool sizing.
type PoolConfig struct {
	// Size is the fixed number of connections; applied as both max open and max idle.
	Size            int           `yaml:"size"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// RetryPolicy bounds pool initialization retries. The delay between attempts is
// TotalDuration / MaxAttempts, fixed.
type RetryPolicy struct {
	MaxAttempts          int           `yaml:"max_attempts"`
	TotalDuration        time.Duration `yaml:"total_duration"`
	StartupMaxAttempts   int           `yaml:"startup_max_attempts"`
	StartupTotalDuration time.Duration `yaml:"startup_total_duration"`
	// RecoveryAttempts is the attempt budget used to rebuild the pool after a
	// connection is lost mid-operation. 1 means a single recreation.
	RecoveryAttempts int `yaml:"recovery_attempts"`
}

// Delay returns the fixed pause between two attempts.
func (r RetryPolicy) Delay() time.Duration {
	return fixedDelay(r.MaxAttempts, r.TotalDuration)
}

// TelemetryConfig toggles OpenTelemetry instrumentation.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// LoggingConfig toggles structured logging.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	// SlowThreshold marks statements that take at least this long as slow.
	// Zero disables slow statement tracking.
	SlowThreshold time.Duration `yaml:"slow_threshold"`
	// SlowCapacity bounds how many slow statements are kept for inspection.
	SlowCapacity int `yaml:"slow_capacity"`
}

// HealthConfig drives the background health monitor. A zero Interval leaves
// the monitor off.
type HealthConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	// FailureThreshold is the number of consecutive connectivity failures
	// after which the monitor forces a reconnect. Zero never reconnects.
	FailureThreshold int `yaml:"failure_threshold"`
}

// Config holds the data-access configuration.
type Config struct {
	// Driver selects the database/sql driver ("mysql" in production, "sqlite" for
	// embedded runs, anything registered in tests).
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	PoolName string `yaml:"pool_name"`
	// Field-based DSN building (used when DSN is empty)
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	Username  string            `yaml:"username"`
	Password  string            `yaml:"password"`
	Database  string            `yaml:"database"`
	Params    map[string]string `yaml:"params"`
	Pool      PoolConfig        `yaml:"pool"`
	Retry     RetryPolicy       `yaml:"retry"`
	Telemetry TelemetryConfig   `yaml:"telemetry"`
	Logging   LoggingConfig     `yaml:"logging"`
	Health    HealthConfig      `yaml:"health"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Driver:   DriverMySQL,
		PoolName: "conn-pool-inventory",
		Host:     "localhost",
		Port:     3306,
		Username: "root",
		Database: "system_database",
		Pool: PoolConfig{
			Size:           10,
			ConnectTimeout: 10 * time.Second,
		},
		Retry: RetryPolicy{
			MaxAttempts:          10,
			TotalDuration:        3 * time.Minute,
			StartupMaxAttempts:   20,
			StartupTotalDuration: 5 * time.Minute,
			RecoveryAttempts:     1,
		},
		Logging: LoggingConfig{
			Enabled:       true,
			Level:         "info",
			SlowThreshold: time.Second,
			SlowCapacity:  100,
		},
		Health: HealthConfig{
			Timeout:          5 * time.Second,
			FailureThreshold: 3,
		},
	}
}

// Validate checks that the configuration can drive a Manager.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Driver) == "" {
		errs = append(errs, errors.New("driver must be set"))
	}
	if c.Pool.Size <= 0 {
		errs = append(errs, fmt.Errorf("pool size must be positive, got %d", c.Pool.Size))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("retry max attempts must be positive, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.TotalDuration < 0 || c.Retry.StartupTotalDuration < 0 {
		errs = append(errs, errors.New("retry durations must not be negative"))
	}
	if c.Retry.RecoveryAttempts < 0 {
		errs = append(errs, fmt.Errorf("recovery attempts must not be negative, got %d", c.Retry.RecoveryAttempts))
	}
	if c.Logging.SlowThreshold < 0 || c.Logging.SlowCapacity < 0 {
		errs = append(errs, errors.New("slow statement settings must not be negative"))
	}
	if c.Health.Interval < 0 || c.Health.Timeout < 0 || c.Health.FailureThreshold < 0 {
		errs = append(errs, errors.New("health settings must not be negative"))
	}
	if c.Driver == DriverMySQL && c.DSN == "" && c.Host == "" {
		errs = append(errs, errors.New("mysql requires a host or a DSN"))
	}
	return errors.Join(errs...)
}

// dsnFromConfig returns the DSN for c.
// Priority: if Config.DSN is non-empty, return it unchanged.
func dsnFromConfig(c Config) (string, error) {
	if strings.TrimSpace(c.DSN) != "" {
		return c.DSN, nil
	}
	switch c.Driver {
	case DriverSQLite:
		return sqliteDSN(c), nil
	default:
		return mysqlDSN(c), nil
	}
}

func mysqlDSN(c Config) string {
	mc := mysql.NewConfig()
	mc.User = c.Username
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = c.Host
	if c.Port > 0 {
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	}
	mc.DBName = c.Database
	mc.ParseTime = true
	if c.Pool.ConnectTimeout > 0 {
		mc.Timeout = c.Pool.ConnectTimeout
	}
	if len(c.Params) > 0 {
		mc.Params = make(map[string]string, len(c.Params))
		for k, v := range c.Params {
			mc.Params[k] = v
		}
	}
	return mc.FormatDSN()
}

func sqliteDSN(c Config) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	if c.Database != MemoryDatabase {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	for k, v := range c.Params {
		q.Add(k, v)
	}
	return "file:" + c.Database + "?" + q.Encode()
}

// LoadConfigFile reads a YAML file on top of DefaultConfig.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}
