package ygggo_invdb

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	gge "github.com/yggai/ygggo_env"
)

// Environment variable names. Prefixed names win over the legacy MYSQL_* ones.
const (
	EnvDriver                = "YGGGO_INVDB_DRIVER"
	EnvDSN                   = "YGGGO_INVDB_DSN"
	EnvPoolName              = "YGGGO_INVDB_POOL_NAME"
	EnvHost                  = "YGGGO_INVDB_HOST"
	EnvPort                  = "YGGGO_INVDB_PORT"
	EnvUsername              = "YGGGO_INVDB_USERNAME"
	EnvPassword              = "YGGGO_INVDB_PASSWORD"
	EnvDatabase              = "YGGGO_INVDB_DATABASE"
	EnvParams                = "YGGGO_INVDB_PARAMS"
	EnvPoolSize              = "YGGGO_INVDB_POOL_SIZE"
	EnvRetryMaxAttempts      = "YGGGO_INVDB_RETRY_MAX_ATTEMPTS"
	EnvRetryTotalDuration    = "YGGGO_INVDB_RETRY_TOTAL_DURATION"
	EnvRetryRecoveryAttempts = "YGGGO_INVDB_RETRY_RECOVERY_ATTEMPTS"
	EnvTelemetry             = "YGGGO_INVDB_TELEMETRY"
	EnvLogLevel              = "YGGGO_INVDB_LOG_LEVEL"

	legacyEnvHost     = "MYSQL_HOST"
	legacyEnvPort     = "MYSQL_PORT"
	legacyEnvUser     = "MYSQL_USER"
	legacyEnvPassword = "MYSQL_PASSWORD"
	legacyEnvDatabase = "MYSQL_DATABASE"
	legacyEnvPoolSize = "MYSQL_POOL_SIZE"
)

// LoadConfigEnv loads a .env file if one is found and builds a Config from
// DefaultConfig plus the environment.
func LoadConfigEnv() (Config, error) {
	gge.LoadEnv()
	cfg := DefaultConfig()
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func lookup(names ...string) (string, bool) {
	for _, n := range names {
		if v, ok := os.LookupEnv(n); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config) error {
	if v, ok := lookup(EnvDriver); ok {
		cfg.Driver = v
	}
	if v, ok := lookup(EnvDSN); ok {
		cfg.DSN = v
	}
	if v, ok := lookup(EnvPoolName); ok {
		cfg.PoolName = v
	}
	if v, ok := lookup(EnvHost, legacyEnvHost); ok {
		cfg.Host = v
	}
	if v, ok := lookup(EnvUsername, legacyEnvUser); ok {
		cfg.Username = v
	}
	if v, ok := os.LookupEnv(EnvPassword); ok {
		cfg.Password = v
	} else if v, ok := os.LookupEnv(legacyEnvPassword); ok {
		cfg.Password = v
	}
	if v, ok := os.LookupEnv(EnvDatabase); ok {
		cfg.Database = strings.TrimSpace(v)
	} else if v, ok := lookup(legacyEnvDatabase); ok {
		cfg.Database = v
	}
	if v, ok := lookup(EnvPort, legacyEnvPort); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", v, err)
		}
		cfg.Port = n
	}
	if v, ok := lookup(EnvPoolSize, legacyEnvPoolSize); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid pool size %q: %w", v, err)
		}
		cfg.Pool.Size = n
	}
	if v, ok := lookup(EnvParams); ok {
		q, err := url.ParseQuery(v)
		if err != nil {
			return fmt.Errorf("invalid params %q: %w", v, err)
		}
		cfg.Params = make(map[string]string, len(q))
		for k := range q {
			cfg.Params[k] = q.Get(k)
		}
	}
	if v, ok := lookup(EnvRetryMaxAttempts); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid retry attempts %q: %w", v, err)
		}
		cfg.Retry.MaxAttempts = n
	}
	if v, ok := lookup(EnvRetryTotalDuration); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid retry duration %q: %w", v, err)
		}
		cfg.Retry.TotalDuration = d
	}
	if v, ok := lookup(EnvRetryRecoveryAttempts); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid recovery attempts %q: %w", v, err)
		}
		cfg.Retry.RecoveryAttempts = n
	}
	if v, ok := lookup(EnvTelemetry); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid telemetry flag %q: %w", v, err)
		}
		cfg.Telemetry.Enabled = b
	}
	if v, ok := lookup(EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
	return nil
}
