package ygggo_invdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

// State is the liveness state of the managed pool.
type State int32

const (
	StateAbsent State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "absent"
	}
}

// Stats is a snapshot of manager counters. Counters span all pool generations.
type Stats struct {
	State      State
	Generation uint64
	Acquired   uint64
	Released   uint64
	Opened     uint64
	Recreated  uint64
	DB         sql.DBStats
}

// InUse is the number of connections currently borrowed.
func (s Stats) InUse() int64 { return int64(s.Acquired) - int64(s.Released) }

// Option configures a Manager.
type Option func(*Manager)

// WithOpenFunc replaces the function used to open each pool generation.
func WithOpenFunc(fn OpenFunc) Option {
	return func(m *Manager) { m.open = fn }
}

// WithLogger sets the logger used by the manager.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger.Store(l)
		}
	}
}

// WithMeterProvider enables metrics using provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(m *Manager) {
		m.meterProvider = provider
		m.metricsEnabled = true
	}
}

// Manager owns the connection pool. It opens the pool lazily, retries
// initialization with a fixed delay and rebuilds the pool when connections are lost.
// At most one initialization runs at a time.
type Manager struct {
	cfg  Config
	open OpenFunc

	logger           atomic.Pointer[slog.Logger]
	loggingEnabled   atomic.Bool
	telemetryEnabled atomic.Bool

	metricsMu      sync.RWMutex
	metricsEnabled bool
	meterProvider  metric.MeterProvider
	metrics        *Metrics

	// initMu serializes pool creation; group collapses concurrent waiters.
	initMu       sync.Mutex
	group        singleflight.Group
	initializing atomic.Bool

	mu     sync.RWMutex
	pool   *Pool
	gen    uint64
	closed bool

	discards  sync.WaitGroup
	discardMu sync.Mutex
	discardEr error

	acquired  atomic.Uint64
	released  atomic.Uint64
	opened    atomic.Uint64
	recreated atomic.Uint64

	slow *slowLog

	// closing is cancelled by Close; shared pool work runs under it instead of
	// any one caller's context.
	closing  context.Context
	closeAll context.CancelFunc
}

// NewManager creates a manager for cfg. No connection is made until first use
// or an explicit Initialize.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	m := &Manager{cfg: cfg, slow: newSlowLog(cfg.Logging.SlowThreshold, cfg.Logging.SlowCapacity)}
	m.closing, m.closeAll = context.WithCancel(context.Background())
	m.logger.Store(NewLogger(cfg.Logging))
	m.loggingEnabled.Store(cfg.Logging.Enabled)
	m.telemetryEnabled.Store(cfg.Telemetry.Enabled)
	for _, opt := range opts {
		opt(m)
	}
	if m.metricsEnabled {
		m.initMetricsLocked()
	}
	return m, nil
}

// Config returns the manager's configuration.
func (m *Manager) Config() Config { return m.cfg }

// State reports whether a pool is ready, being built, or absent.
func (m *Manager) State() State {
	m.mu.RLock()
	ready := m.pool != nil
	m.mu.RUnlock()
	switch {
	case ready:
		return StateReady
	case m.initializing.Load():
		return StateInitializing
	default:
		return StateAbsent
	}
}

// Stats returns a snapshot of the manager counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	p, gen := m.pool, m.gen
	m.mu.RUnlock()
	s := Stats{
		State:      m.State(),
		Generation: gen,
		Acquired:   m.acquired.Load(),
		Released:   m.released.Load(),
		Opened:     m.opened.Load(),
		Recreated:  m.recreated.Load(),
	}
	if p != nil {
		s.DB = p.DB().Stats()
	}
	return s
}

// DB returns the current generation's *sql.DB, or nil when no pool exists.
func (m *Manager) DB() *sql.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pool.DB()
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Initialize makes one attempt to build a fresh pool, replacing any current one.
// On failure no pool remains and the error wraps ErrPoolUnavailable.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	m.initializing.Store(true)
	defer m.initializing.Store(false)
	return m.initializeLocked(ctx, "initialize")
}

// detach returns a context carrying ctx's values that is cancelled only when
// the manager closes.
func (m *Manager) detach(ctx context.Context) (context.Context, func()) {
	c, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(m.closing, cancel)
	return c, func() {
		stop()
		cancel()
	}
}

// await waits for a shared attempt. A caller whose ctx ends stops waiting; the
// attempt itself carries on for the others.
func (m *Manager) await(ctx context.Context, ch <-chan singleflight.Result) error {
	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrPoolUnavailable, context.Cause(ctx))
	}
}

func (m *Manager) initializeLocked(ctx context.Context, reason string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrPoolClosed
	}
	old := m.pool
	m.pool = nil
	m.gen++
	gen := m.gen
	m.mu.Unlock()
	if old != nil {
		m.discard(ctx, old, reason)
	}

	start := time.Now()
	p, err := newPool(ctx, m, gen)
	m.recordInitAttempt(ctx, err)
	if err != nil {
		m.logEvent(ctx, slog.LevelError, LogCategoryDatabase, "failed to create connection pool",
			slog.String("pool", m.cfg.PoolName),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %v", ErrPoolUnavailable, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = p.Close()
		return ErrPoolClosed
	}
	m.pool = p
	m.mu.Unlock()

	if m.opened.Add(1) > 1 {
		m.recreated.Add(1)
		m.recordRecreation(ctx, reason)
	}
	m.logEvent(ctx, slog.LevelInfo, LogCategoryDatabase, "connection pool created",
		slog.String("pool", m.cfg.PoolName),
		slog.Int("size", m.cfg.Pool.Size),
		slog.Uint64("generation", gen),
		slog.String("reason", reason),
		slog.Float64("duration_ms", float64(time.Since(start).Nanoseconds())/1e6),
	)
	return nil
}

// discard drops a pool without waiting for borrowed connections.
func (m *Manager) discard(ctx context.Context, p *Pool, reason string) {
	m.logEvent(ctx, slog.LevelWarn, LogCategoryDatabase, "connection pool discarded",
		slog.String("pool", p.name),
		slog.Uint64("generation", p.gen),
		slog.String("reason", reason),
	)
	m.discards.Add(1)
	go func() {
		defer m.discards.Done()
		if err := p.Close(); err != nil {
			m.discardMu.Lock()
			m.discardEr = multierror.Append(m.discardEr, fmt.Errorf("close generation %d: %w", p.gen, err))
			m.discardMu.Unlock()
		}
	}()
}

// InitializeWithRetry builds a pool, retrying up to maxAttempts times with a
// fixed delay of totalDuration/maxAttempts. It returns nil at once when a pool
// is ready. Concurrent callers share one in-flight attempt, which is bounded
// only by its retry budget and Close; ctx ends this caller's wait, not the attempt.
func (m *Manager) InitializeWithRetry(ctx context.Context, maxAttempts int, totalDuration time.Duration) error {
	if m.State() == StateReady {
		return nil
	}
	ch := m.group.DoChan("initialize", func() (any, error) {
		sctx, done := m.detach(ctx)
		defer done()
		m.initMu.Lock()
		defer m.initMu.Unlock()
		if m.State() == StateReady {
			return nil, nil
		}
		return nil, m.retryInitLocked(sctx, maxAttempts, fixedDelay(maxAttempts, totalDuration), "initialize")
	})
	return m.await(ctx, ch)
}

// ForceReconnect discards the current pool and rebuilds it with the default
// retry bounds. Concurrent calls share one reconnect.
func (m *Manager) ForceReconnect(ctx context.Context) error {
	m.logEvent(ctx, slog.LevelWarn, LogCategoryDatabase, "forcing reconnect",
		slog.String("pool", m.cfg.PoolName))
	ch := m.group.DoChan("reconnect", func() (any, error) {
		sctx, done := m.detach(ctx)
		defer done()
		m.initMu.Lock()
		defer m.initMu.Unlock()
		r := m.cfg.Retry
		return nil, m.retryInitLocked(sctx, r.MaxAttempts, r.Delay(), "force_reconnect")
	})
	return m.await(ctx, ch)
}

// recover rebuilds the pool after generation gen lost a connection. If the pool
// has already been replaced since, the replacement is reused.
func (m *Manager) recover(ctx context.Context, gen uint64, attempts int) error {
	ctx, done := m.detach(ctx)
	defer done()
	m.initMu.Lock()
	defer m.initMu.Unlock()
	m.mu.RLock()
	replaced := m.pool != nil && m.gen != gen
	m.mu.RUnlock()
	if replaced {
		m.logEvent(ctx, slog.LevelInfo, LogCategoryDatabase, "connection pool already recreated",
			slog.Uint64("failed_generation", gen))
		return nil
	}
	return m.retryInitLocked(ctx, attempts, m.cfg.Retry.Delay(), "connection_lost")
}

// current returns the ready pool, initializing it with the default bounds if absent.
func (m *Manager) current(ctx context.Context) (*Pool, error) {
	m.mu.RLock()
	p, closed := m.pool, m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrPoolClosed
	}
	if p != nil {
		return p, nil
	}
	m.logEvent(ctx, slog.LevelWarn, LogCategoryDatabase, "connection pool absent, initializing")
	if err := m.InitializeWithRetry(ctx, m.cfg.Retry.MaxAttempts, m.cfg.Retry.TotalDuration); err != nil {
		return nil, err
	}
	m.mu.RLock()
	p = m.pool
	m.mu.RUnlock()
	if p == nil {
		return nil, ErrPoolUnavailable
	}
	return p, nil
}

// Conn borrows a connection. An absent pool is initialized first; a
// connectivity failure on acquisition triggers one pool recreation and one
// more acquisition.
func (m *Manager) Conn(ctx context.Context) (*Conn, error) {
	p, err := m.current(ctx)
	if err != nil {
		return nil, err
	}
	c, err := p.Acquire(ctx)
	if err == nil {
		return c, nil
	}
	if !IsConnectivityError(err) {
		return nil, err
	}
	m.logEvent(ctx, slog.LevelWarn, LogCategoryDatabase, "connection acquisition failed, recreating pool",
		slog.Uint64("generation", p.gen),
		slog.String("error", err.Error()),
	)
	if rerr := m.recover(ctx, p.gen, 1); rerr != nil {
		return nil, rerr
	}
	m.mu.RLock()
	p = m.pool
	m.mu.RUnlock()
	if p == nil {
		return nil, ErrPoolUnavailable
	}
	return p.Acquire(ctx)
}

// Ping verifies the current pool without initializing one.
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	p := m.pool
	m.mu.RUnlock()
	if p == nil {
		return ErrPoolUnavailable
	}
	return p.db.PingContext(ctx)
}

// Close closes the current pool and waits for discarded ones to finish closing.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.closeAll()
	p := m.pool
	m.pool = nil
	m.mu.Unlock()

	var result error
	if p != nil {
		if err := p.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	m.discards.Wait()
	m.discardMu.Lock()
	if m.discardEr != nil {
		result = multierror.Append(result, m.discardEr)
	}
	m.discardMu.Unlock()
	m.logEvent(context.Background(), slog.LevelInfo, LogCategoryDatabase, "manager closed",
		slog.String("pool", m.cfg.PoolName))
	return result
}
