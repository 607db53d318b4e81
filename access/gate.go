package access

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Mode selects how a claim is compared to a required level.
type Mode int

const (
	// ModeAtLeast allows claims at least as privileged as the requirement.
	ModeAtLeast Mode = iota
	// ModeExact allows only claims equal to the requirement.
	ModeExact
)

func (m Mode) String() string {
	if m == ModeExact {
		return "exact"
	}
	return "at_least"
}

// Claim is the caller's resolved privilege.
type Claim struct {
	Subject string
	Level   Level
}

// Requirement is attached to a protected operation.
type Requirement struct {
	Name string
	Mode Mode
}

// Decision is the gate's verdict.
type Decision struct {
	Allowed  bool
	Required Level
	Reason   string
}

// LogCategory is attached to every gate log event.
const LogCategory = "access-gate"

// Gate evaluates requirements against claims. It is safe for concurrent use.
type Gate struct {
	table   *Table
	logger  *slog.Logger
	denials metric.Int64Counter
	denied  atomic.Uint64
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets the gate logger.
func WithLogger(l *slog.Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMeterProvider records denials through provider.
func WithMeterProvider(provider metric.MeterProvider) GateOption {
	return func(g *Gate) {
		g.denials, _ = provider.Meter("github.com/yggai/ygggo_invdb/access").Int64Counter(
			"ygggo_invdb_access_denials_total",
			metric.WithDescription("Requests rejected by the access gate"),
		)
	}
}

// NewGate returns a gate over t (DefaultTable when nil).
func NewGate(t *Table, opts ...GateOption) *Gate {
	if t == nil {
		t = DefaultTable()
	}
	g := &Gate{
		table:  t,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	g.denials, _ = otel.Meter("github.com/yggai/ygggo_invdb/access").Int64Counter("ygggo_invdb_access_denials_total")
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Table returns the gate's lookup table.
func (g *Gate) Table() *Table { return g.table }

// Denied returns how many requests the gate has rejected.
func (g *Gate) Denied() uint64 { return g.denied.Load() }

// Require decides whether claim satisfies the requirement (name, mode).
// Unknown names always deny.
func (g *Gate) Require(claim Claim, name string, mode Mode) Decision {
	required, ok := g.table.Lookup(name)
	if !ok {
		return g.deny(claim, name, mode, required, fmt.Sprintf("unknown access level %q", name))
	}
	var allowed bool
	switch mode {
	case ModeExact:
		allowed = claim.Level == required
	default:
		allowed = claim.Level <= required
	}
	if !allowed {
		return g.deny(claim, name, mode, required, "insufficient access level")
	}
	return Decision{Allowed: true, Required: required}
}

// Check is Require for a Requirement value.
func (g *Gate) Check(claim Claim, req Requirement) Decision {
	return g.Require(claim, req.Name, req.Mode)
}

func (g *Gate) deny(claim Claim, name string, mode Mode, required Level, reason string) Decision {
	g.denied.Add(1)
	if g.denials != nil {
		g.denials.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("requirement", name),
			attribute.String("mode", mode.String()),
		))
	}
	g.logger.Warn("access denied",
		"category", LogCategory,
		"subject", claim.Subject,
		"claim_level", int(claim.Level),
		"requirement", name,
		"mode", mode.String(),
		"reason", reason,
	)
	return Decision{Allowed: false, Required: required, Reason: reason}
}

// Run calls fn only if the gate allows claim. On denial fn is not invoked and
// the zero value is returned.
func Run[T any](g *Gate, claim Claim, req Requirement, fn func() T) (T, Decision) {
	d := g.Check(claim, req)
	if !d.Allowed {
		var zero T
		return zero, d
	}
	return fn(), d
}
