// Package ygggo_invdb is the resilient data-access core of the inventory and
// account-management API.
//
// # Overview
//
// ygggo_invdb keeps three promises to the route handlers that sit on top of it:
//   - A connection can be obtained whenever the database is reachable. The
//     Manager owns a single pool, recreates it after total loss and retries
//     initialization with a bounded, fixed-delay budget.
//   - Every statement goes through one choke point. Execute and the derived
//     operations (FetchAll, FetchOne, FetchScalar, ExecuteSingle, ExecuteMany,
//     ExecuteTransaction) apply the same commit discipline, reconnect once on
//     connectivity loss and always release the connection.
//   - Driver failures never leak as raw text. The classifier maps them to a
//     small set of stable messages while the diagnostic is logged.
//
// Authorization lives in the access subpackage.
//
// # Quick Start
//
//	cfg := ygggo_invdb.DefaultConfig()
//	cfg.Host = "localhost"
//	cfg.Username = "root"
//	cfg.Password = "secret"
//	cfg.Database = "system_database"
//
//	mgr, err := ygggo_invdb.NewManager(cfg)
//	if err != nil {
//		return err
//	}
//	defer mgr.Close()
//
//	ex := ygggo_invdb.NewExecutor(mgr)
//	res := ex.FetchAll(ctx, "SELECT id, name FROM locations WHERE name = ?", "Depot")
//	rows, fail := res.Get()
//	if fail != nil {
//		// fail.Msg is safe to show to the caller
//	}
//
// # Transactions
//
//	res := ex.ExecuteTransaction(ctx, []ygggo_invdb.Statement{
//		ygggo_invdb.Stmt("INSERT INTO equipment_sets (id, name) VALUES (?, ?)", id, name),
//		ygggo_invdb.Stmt("INSERT INTO equipment_set_history (set_id, action) VALUES (?, ?)", id, "created"),
//	})
//
// Either every statement commits or none does.
//
// # Configuration
//
// Config can be built in code, loaded from YAML (LoadConfigFile) or from the
// environment (LoadConfigEnv). Environment variables use the prefix
// YGGGO_INVDB_* and the legacy MYSQL_* names are honored as well.
package ygggo_invdb

// Version returns the current library version.
func Version() string { return "v0.1.0-dev" }
