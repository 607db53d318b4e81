package ygggo_invdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// LogCategoryHealth is attached to health monitor events.
const LogCategoryHealth = "DATABASE-HEALTH"

// HealthStatus is the outcome of one health check.
type HealthStatus struct {
	Healthy           bool          `json:"healthy"`
	State             string        `json:"state"`
	Generation        uint64        `json:"generation"`
	LastChecked       time.Time     `json:"last_checked"`
	ResponseTime      time.Duration `json:"response_time"`
	ConnectionsInUse  int           `json:"connections_in_use"`
	ConnectionsIdle   int           `json:"connections_idle"`
	ConnectionsMax    int           `json:"connections_max"`
	Borrowed          int64         `json:"borrowed"`
	Recreated         uint64        `json:"recreated"`
	Errors            []HealthError `json:"errors,omitempty"`
	ConsecutiveFailed int           `json:"consecutive_failed,omitempty"`
}

// HealthError is one failed check.
type HealthError struct {
	Type        string    `json:"type"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	Recoverable bool      `json:"recoverable"`
}

// HealthCheck pings the current pool and runs a trivial query on it. It never
// creates or replaces a pool: an absent pool is reported unhealthy.
func (m *Manager) HealthCheck(ctx context.Context) HealthStatus {
	start := time.Now()
	if t := m.cfg.Health.Timeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	st := m.Stats()
	status := HealthStatus{
		State:          st.State.String(),
		Generation:     st.Generation,
		LastChecked:    start,
		Borrowed:       st.InUse(),
		Recreated:      st.Recreated,
		ConnectionsMax: st.DB.MaxOpenConnections,
	}
	fail := func(kind string, err error) {
		status.Errors = append(status.Errors, HealthError{
			Type:        kind,
			Message:     err.Error(),
			Timestamp:   time.Now(),
			Recoverable: errors.Is(err, ErrPoolUnavailable) || IsConnectivityError(err),
		})
	}

	if err := m.Ping(ctx); err != nil {
		fail("connectivity", err)
	} else if db := m.DB(); db != nil {
		var v int
		if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&v); err != nil {
			fail("query_execution", err)
		} else if v != 1 {
			fail("query_execution", fmt.Errorf("unexpected test value %d", v))
		}
		s := db.Stats()
		status.ConnectionsInUse = s.InUse
		status.ConnectionsIdle = s.Idle
		status.ConnectionsMax = s.MaxOpenConnections
	}

	status.ResponseTime = time.Since(start)
	status.Healthy = len(status.Errors) == 0
	return status
}

// HealthMonitor runs HealthCheck on an interval and keeps the latest status.
// After FailureThreshold consecutive recoverable failures it forces a
// reconnect.
type HealthMonitor struct {
	m   *Manager
	cfg HealthConfig

	statusMu sync.RWMutex
	status   HealthStatus
	failed   int

	runMu   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	reconns uint64
}

// NewHealthMonitor returns a stopped monitor for m using m's health settings.
func NewHealthMonitor(m *Manager) *HealthMonitor {
	return &HealthMonitor{m: m, cfg: m.cfg.Health}
}

// Start begins monitoring until Stop or ctx is done.
func (hm *HealthMonitor) Start(ctx context.Context) error {
	if hm.cfg.Interval <= 0 {
		return errors.New("health monitor interval must be positive")
	}
	hm.runMu.Lock()
	defer hm.runMu.Unlock()
	if hm.cancel != nil {
		return errors.New("health monitor already running")
	}
	ctx, hm.cancel = context.WithCancel(ctx)
	hm.done = make(chan struct{})
	go hm.loop(ctx, hm.done)
	return nil
}

// Stop ends monitoring and waits for the loop to exit.
func (hm *HealthMonitor) Stop() {
	hm.runMu.Lock()
	cancel, done := hm.cancel, hm.done
	hm.cancel, hm.done = nil, nil
	hm.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (hm *HealthMonitor) Running() bool {
	hm.runMu.Lock()
	defer hm.runMu.Unlock()
	return hm.cancel != nil
}

// Status returns the latest status.
func (hm *HealthMonitor) Status() HealthStatus {
	hm.statusMu.RLock()
	defer hm.statusMu.RUnlock()
	s := hm.status
	s.Errors = append([]HealthError(nil), hm.status.Errors...)
	return s
}

// Reconnects returns how many reconnects the monitor has forced.
func (hm *HealthMonitor) Reconnects() uint64 {
	hm.statusMu.RLock()
	defer hm.statusMu.RUnlock()
	return hm.reconns
}

func (hm *HealthMonitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(hm.cfg.Interval)
	defer ticker.Stop()

	hm.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hm.Probe(ctx)
		}
	}
}

// Probe runs one check, updates the status and reconnects when the failure
// threshold is reached.
func (hm *HealthMonitor) Probe(ctx context.Context) HealthStatus {
	status := hm.m.HealthCheck(ctx)

	hm.statusMu.Lock()
	recoverable := !status.Healthy
	for _, e := range status.Errors {
		recoverable = recoverable && e.Recoverable
	}
	switch {
	case status.Healthy:
		hm.failed = 0
	case recoverable:
		hm.failed++
	}
	status.ConsecutiveFailed = hm.failed
	hm.status = status
	reconnect := hm.cfg.FailureThreshold > 0 && hm.failed >= hm.cfg.FailureThreshold
	if reconnect {
		hm.failed = 0
		hm.reconns++
	}
	hm.statusMu.Unlock()

	if !status.Healthy {
		hm.m.logEvent(ctx, slog.LevelWarn, LogCategoryHealth, "health check failed",
			slog.Int("consecutive_failed", status.ConsecutiveFailed),
			slog.String("state", status.State),
			slog.Any("errors", status.Errors),
		)
	}
	if reconnect {
		if err := hm.m.ForceReconnect(ctx); err != nil {
			hm.m.logEvent(ctx, slog.LevelError, LogCategoryHealth, "reconnect after failed health checks did not succeed",
				slog.String("error", err.Error()))
		}
	}
	return status
}
