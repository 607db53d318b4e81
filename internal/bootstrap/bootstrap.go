// Package bootstrap runs the startup system check: it brings the connection
// pool up, verifies it answers, and makes sure a root role and a root account
// exist before the HTTP surface starts serving.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	invdb "github.com/yggai/ygggo_invdb"
)

// Log categories.
const (
	LogCategory        = "SYSTEM-CHECK"
	LogCategoryRole    = "ROOT_ADMIN-ROLE"
	LogCategoryAccount = "ROOT_ADMIN-ACCOUNT"
)

// RootRoleName is the name given to a freshly created root role.
const RootRoleName = "Root"

const (
	queryRootRole = "SELECT id FROM account_roles WHERE access_level = 0"
	insertRole    = "INSERT INTO account_roles (name, access_level) VALUES (?, ?)"

	queryRootAccount = "SELECT id FROM accounts WHERE email = ? AND role_id = ?"
	insertAccount    = `INSERT INTO accounts
		(id, role_id, first_name, middle_name, last_name, email, username, password_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryRoles    = "SELECT name, access_level FROM account_roles ORDER BY access_level"
	queryAccounts = `SELECT accounts.username, account_roles.name AS role_name
		FROM accounts INNER JOIN account_roles ON accounts.role_id = account_roles.id
		ORDER BY accounts.username`
)

// ErrNoRootRole is returned when the root account is requested before a root
// role exists.
var ErrNoRootRole = errors.New("root role not found")

// RootAccount describes the account seeded under the root role.
type RootAccount struct {
	Email      string `yaml:"email"`
	Password   string `yaml:"password"`
	Username   string `yaml:"username"`
	FirstName  string `yaml:"first_name"`
	MiddleName string `yaml:"middle_name"`
	LastName   string `yaml:"last_name"`
}

func (a RootAccount) withDefaults() RootAccount {
	if a.Username == "" {
		a.Username = "admin@system"
	}
	if a.FirstName == "" {
		a.FirstName = "root"
	}
	if a.LastName == "" {
		a.LastName = "admin"
	}
	return a
}

// Checker performs the startup sequence against one manager.
type Checker struct {
	m      *invdb.Manager
	e      *invdb.Executor
	root   RootAccount
	logger *slog.Logger
	// hashCost is the bcrypt cost; tests lower it.
	hashCost int
}

// New returns a Checker. A nil logger discards output.
func New(m *invdb.Manager, root RootAccount, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Checker{
		m:        m,
		e:        invdb.NewExecutor(m),
		root:     root.withDefaults(),
		logger:   logger,
		hashCost: bcrypt.DefaultCost,
	}
}

func (c *Checker) log(ctx context.Context, level slog.Level, category, msg string, attrs ...slog.Attr) {
	attrs = append([]slog.Attr{slog.String("category", category)}, attrs...)
	c.logger.LogAttrs(ctx, level, msg, attrs...)
}

// Run brings the pool up with the startup retry bounds, tests it, then seeds
// the root role and account. A failed pool bring-up or connection test is
// fatal; seeding failures are logged and returned after the inventory pass.
func (c *Checker) Run(ctx context.Context) error {
	r := c.m.Config().Retry
	c.log(ctx, slog.LevelInfo, LogCategory, "starting system check",
		slog.Int("max_attempts", r.StartupMaxAttempts),
		slog.Duration("total_duration", r.StartupTotalDuration))

	if err := c.m.InitializeWithRetry(ctx, r.StartupMaxAttempts, r.StartupTotalDuration); err != nil {
		c.log(ctx, slog.LevelError, LogCategory, "database initialization failed", slog.String("error", err.Error()))
		return fmt.Errorf("system check: %w", err)
	}
	if err := c.e.TestConnection(ctx); err != nil {
		c.log(ctx, slog.LevelError, LogCategory, "database connection test failed", slog.String("error", err.Error()))
		return fmt.Errorf("system check: %w", err)
	}

	var seedErr error
	roleID, err := c.EnsureRootRole(ctx)
	if err != nil {
		seedErr = err
	} else if err := c.EnsureRootAccount(ctx, roleID); err != nil {
		seedErr = err
	}
	c.LogInventory(ctx)

	if seedErr != nil {
		return fmt.Errorf("system check: %w", seedErr)
	}
	c.log(ctx, slog.LevelInfo, LogCategory, "system check complete")
	return nil
}

// EnsureRootRole returns the id of the role at access level 0, inserting it
// when missing.
func (c *Checker) EnsureRootRole(ctx context.Context) (any, error) {
	id, f := c.e.FetchScalar(ctx, queryRootRole).Get()
	if f != nil {
		c.log(ctx, slog.LevelError, LogCategoryRole, "root role check failed", slog.String("error", f.Msg))
		return nil, f
	}
	if id != nil {
		c.log(ctx, slog.LevelInfo, LogCategoryRole, "root role already exists")
		return id, nil
	}

	c.log(ctx, slog.LevelWarn, LogCategoryRole, "root role not found, adding")
	if r := c.e.ExecuteSingle(ctx, insertRole, RootRoleName, 0); !r.OK() {
		c.log(ctx, slog.LevelError, LogCategoryRole, "failed to add root role", slog.String("error", r.Err.Msg))
		return nil, r.Err
	}
	c.log(ctx, slog.LevelInfo, LogCategoryRole, "root role created")

	id, f = c.e.FetchScalar(ctx, queryRootRole).Get()
	if f != nil {
		return nil, f
	}
	if id == nil {
		return nil, ErrNoRootRole
	}
	return id, nil
}

// EnsureRootAccount inserts the configured root account under roleID unless an
// account with the same email already holds that role.
func (c *Checker) EnsureRootAccount(ctx context.Context, roleID any) error {
	if roleID == nil {
		return ErrNoRootRole
	}
	if strings.TrimSpace(c.root.Email) == "" {
		c.log(ctx, slog.LevelWarn, LogCategoryAccount, "root account email not configured, skipping")
		return nil
	}

	id, f := c.e.FetchScalar(ctx, queryRootAccount, c.root.Email, roleID).Get()
	if f != nil {
		c.log(ctx, slog.LevelError, LogCategoryAccount, "root account check failed", slog.String("error", f.Msg))
		return f
	}
	if id != nil {
		c.log(ctx, slog.LevelInfo, LogCategoryAccount, "root account already exists")
		return nil
	}

	c.log(ctx, slog.LevelWarn, LogCategoryAccount, "root account not found, adding")
	hash, err := bcrypt.GenerateFromPassword([]byte(c.root.Password), c.hashCost)
	if err != nil {
		return fmt.Errorf("hashing root password: %w", err)
	}
	r := c.e.ExecuteSingle(ctx, insertAccount,
		uuid.NewString(),
		roleID,
		c.root.FirstName,
		c.root.MiddleName,
		c.root.LastName,
		c.root.Email,
		c.root.Username,
		string(hash),
	)
	if !r.OK() {
		c.log(ctx, slog.LevelError, LogCategoryAccount, "failed to create root account", slog.String("error", r.Err.Msg))
		return r.Err
	}
	c.log(ctx, slog.LevelInfo, LogCategoryAccount, "root account created")
	return nil
}

// LogInventory logs every role and account. Failures are logged, not returned.
func (c *Checker) LogInventory(ctx context.Context) {
	roles := c.e.FetchAll(ctx, queryRoles)
	if !roles.OK() {
		c.log(ctx, slog.LevelError, LogCategory, "account roles check failed", slog.String("error", roles.Err.Msg))
	} else {
		c.log(ctx, slog.LevelInfo, LogCategory, fmt.Sprintf("found %d role/s", len(roles.Data)))
		for _, row := range roles.Data {
			c.log(ctx, slog.LevelInfo, LogCategory, "role",
				slog.Any("name", row["name"]),
				slog.Any("access_level", row["access_level"]))
		}
	}

	accounts := c.e.FetchAll(ctx, queryAccounts)
	if !accounts.OK() {
		c.log(ctx, slog.LevelError, LogCategory, "accounts check failed", slog.String("error", accounts.Err.Msg))
		return
	}
	c.log(ctx, slog.LevelInfo, LogCategory, fmt.Sprintf("found %d account/s", len(accounts.Data)))
	for _, row := range accounts.Data {
		c.log(ctx, slog.LevelInfo, LogCategory, "account",
			slog.Any("username", row["username"]),
			slog.Any("role", row["role_name"]))
	}
}
