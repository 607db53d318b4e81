package ygggo_invdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck_ReadyPool(t *testing.T) {
	cfg := NewSQLiteConfig(filepath.Join(t.TempDir(), "health.db"))
	cfg.Logging.Enabled = false
	m := newTestManager(t, cfg)
	require.NoError(t, m.Initialize(context.Background()))

	s := m.HealthCheck(context.Background())
	assert.True(t, s.Healthy, "errors: %+v", s.Errors)
	assert.Equal(t, "ready", s.State)
	assert.EqualValues(t, 1, s.Generation)
	assert.Equal(t, cfg.Pool.Size, s.ConnectionsMax)
	assert.Empty(t, s.Errors)
	assert.Greater(t, s.ResponseTime, time.Duration(0))
}

func TestHealthCheck_AbsentPoolIsNotCreated(t *testing.T) {
	b, cfg := newFakeBackend(t, true)
	m := newTestManager(t, cfg)

	s := m.HealthCheck(context.Background())
	assert.False(t, s.Healthy)
	assert.Equal(t, "absent", s.State)
	require.Len(t, s.Errors, 1)
	assert.Equal(t, "connectivity", s.Errors[0].Type)
	assert.True(t, s.Errors[0].Recoverable)
	assert.Zero(t, b.dials.Load(), "a health check must not dial")
	assert.Equal(t, StateAbsent, m.State())
}

func TestHealthMonitor_ReconnectsAfterThreshold(t *testing.T) {
	b, cfg := newFakeBackend(t, false)
	cfg.Retry.MaxAttempts = 1
	cfg.Health.FailureThreshold = 2
	m := newTestManager(t, cfg)
	hm := NewHealthMonitor(m)
	ctx := context.Background()

	assert.Equal(t, 1, hm.Probe(ctx).ConsecutiveFailed)
	assert.Zero(t, b.dials.Load())
	hm.Probe(ctx)
	assert.EqualValues(t, 1, hm.Reconnects())
	assert.EqualValues(t, 1, b.dials.Load(), "threshold reached: one reconnect attempt")
	assert.Equal(t, StateAbsent, m.State())

	b.reachable.Store(true)
	assert.Equal(t, 1, hm.Probe(ctx).ConsecutiveFailed)
	hm.Probe(ctx)
	assert.EqualValues(t, 2, hm.Reconnects())
	assert.Equal(t, StateReady, m.State())

	s := hm.Probe(ctx)
	assert.True(t, s.Healthy)
	assert.Zero(t, s.ConsecutiveFailed)
	assert.True(t, hm.Status().Healthy)
}

func TestHealthMonitor_ZeroThresholdNeverReconnects(t *testing.T) {
	b, cfg := newFakeBackend(t, false)
	cfg.Health.FailureThreshold = 0
	m := newTestManager(t, cfg)
	hm := NewHealthMonitor(m)

	for i := 0; i < 5; i++ {
		hm.Probe(context.Background())
	}
	assert.Zero(t, hm.Reconnects())
	assert.Zero(t, b.dials.Load())
	assert.Equal(t, 5, hm.Status().ConsecutiveFailed)
}

func TestHealthMonitor_StartStop(t *testing.T) {
	_, cfg := newFakeBackend(t, true)
	cfg.Health.Interval = 5 * time.Millisecond
	cfg.Health.FailureThreshold = 1
	m := newTestManager(t, cfg)
	hm := NewHealthMonitor(m)

	require.NoError(t, hm.Start(context.Background()))
	assert.Error(t, hm.Start(context.Background()))
	assert.True(t, hm.Running())

	// The first failed probe on the absent pool reconnects; a later one is healthy.
	require.Eventually(t, func() bool { return hm.Status().Healthy }, 2*time.Second, 5*time.Millisecond)

	hm.Stop()
	assert.False(t, hm.Running())
	hm.Stop()
}

func TestHealthMonitor_RequiresInterval(t *testing.T) {
	_, cfg := newFakeBackend(t, true)
	m := newTestManager(t, cfg)
	assert.Error(t, NewHealthMonitor(m).Start(context.Background()))
}
