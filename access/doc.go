// Package access implements the access-level gate.
//
// Privilege levels are integers where a lower number means more privilege
// (root is 0). A Requirement names a level from a Table and a comparison Mode:
// ModeAtLeast allows any caller at least as privileged as the named level,
// ModeExact allows only callers at exactly that level.
//
// The gate is evaluated before a protected operation runs. On denial the
// operation body is never invoked, so nothing reaches the database layer.
//
//	gate := access.NewGate(access.DefaultTable())
//	r.With(gate.Guard("admin", access.ModeAtLeast)).Post("/locations", create)
package access
