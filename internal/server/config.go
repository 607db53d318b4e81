package server

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	invdb "github.com/yggai/ygggo_invdb"
	"github.com/yggai/ygggo_invdb/access"
	"github.com/yggai/ygggo_invdb/internal/bootstrap"
)

// Environment variables read on top of the file or default configuration.
const (
	EnvAddr              = "YGGGO_INVDB_ADDR"
	EnvJWTSecret         = "YGGGO_INVDB_JWT_SECRET"
	EnvRootAdminEmail    = "ROOT_ADMIN_EMAIL"
	EnvRootAdminPassword = "ROOT_ADMIN_PASSWORD"
)

// Config is the process configuration: database, identity and listener.
type Config struct {
	Addr         string                `yaml:"addr"`
	JWTSecret    string                `yaml:"jwt_secret"`
	AccessLevels map[string]int        `yaml:"access_levels"`
	Root         bootstrap.RootAccount `yaml:"root_admin"`
	Database     invdb.Config          `yaml:"database"`
	Timeouts     Timeouts              `yaml:"timeouts"`
}

// Timeouts bound the HTTP listener.
type Timeouts struct {
	Read     time.Duration `yaml:"read"`
	Write    time.Duration `yaml:"write"`
	Idle     time.Duration `yaml:"idle"`
	Shutdown time.Duration `yaml:"shutdown"`
}

// DefaultConfig returns listener defaults over the database defaults.
func DefaultConfig() Config {
	return Config{
		Addr:     ":8080",
		Database: invdb.DefaultConfig(),
		Timeouts: Timeouts{
			Read:     15 * time.Second,
			Write:    30 * time.Second,
			Idle:     60 * time.Second,
			Shutdown: 10 * time.Second,
		},
	}
}

// LoadConfig reads path as YAML when it is set, otherwise builds the database
// section from the environment. Listener and identity variables are applied
// last in both cases.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
		if err := cfg.Database.Validate(); err != nil {
			return cfg, fmt.Errorf("database: %w", err)
		}
	} else {
		db, err := invdb.LoadConfigEnv()
		if err != nil {
			return cfg, err
		}
		cfg.Database = db
	}
	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	set := func(dst *string, name string) {
		if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&cfg.Addr, EnvAddr)
	set(&cfg.JWTSecret, EnvJWTSecret)
	set(&cfg.Root.Email, EnvRootAdminEmail)
	set(&cfg.Root.Password, EnvRootAdminPassword)
}

// Validate checks the listener and identity sections.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("addr must be set")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 characters")
	}
	if _, err := c.Table(); err != nil {
		return err
	}
	return nil
}

// Table builds the access table, falling back to the built-in levels.
func (c Config) Table() (*access.Table, error) {
	if len(c.AccessLevels) == 0 {
		return access.DefaultTable(), nil
	}
	levels := make(map[string]access.Level, len(c.AccessLevels))
	for name, lvl := range c.AccessLevels {
		levels[name] = access.Level(lvl)
	}
	t, err := access.NewTable(levels)
	if err != nil {
		return nil, fmt.Errorf("access_levels: %w", err)
	}
	return t, nil
}
