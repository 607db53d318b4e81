package ygggo_invdb

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricsInstrumentationName = "github.com/yggai/ygggo_invdb"
)

// Metrics holds all the metric instruments
type Metrics struct {
	// Pool metrics
	connectionsActive metric.Int64UpDownCounter
	acquisitionsTotal metric.Int64Counter
	releasesTotal     metric.Int64Counter
	recreationsTotal  metric.Int64Counter
	initAttemptsTotal metric.Int64Counter

	// Execution metrics
	executionsTotal   metric.Int64Counter
	executionDuration metric.Float64Histogram
	retriesTotal      metric.Int64Counter
}

var (
	defaultMeter = otel.Meter(metricsInstrumentationName)
)

// EnableMetrics enables or disables metrics collection for this manager
func (m *Manager) EnableMetrics(enabled bool) {
	if m == nil {
		return
	}
	m.metricsMu.Lock()
	defer m.metricsMu.Unlock()
	m.metricsEnabled = enabled
	if enabled && m.metrics == nil {
		m.initMetricsLocked()
	}
}

// SetMeterProvider sets a custom meter provider for metrics
func (m *Manager) SetMeterProvider(provider metric.MeterProvider) {
	if m == nil {
		return
	}
	m.metricsMu.Lock()
	defer m.metricsMu.Unlock()
	m.meterProvider = provider
	if m.metricsEnabled {
		m.initMetricsLocked()
	}
}

func (m *Manager) initMetricsLocked() {
	meter := defaultMeter
	if m.meterProvider != nil {
		meter = m.meterProvider.Meter(metricsInstrumentationName)
	}

	mt := &Metrics{}
	mt.connectionsActive, _ = meter.Int64UpDownCounter(
		"ygggo_invdb_connections_active",
		metric.WithDescription("Number of connections currently borrowed from the pool"),
	)
	mt.acquisitionsTotal, _ = meter.Int64Counter(
		"ygggo_invdb_connections_acquired_total",
		metric.WithDescription("Total number of connections borrowed from the pool"),
	)
	mt.releasesTotal, _ = meter.Int64Counter(
		"ygggo_invdb_connections_released_total",
		metric.WithDescription("Total number of connections returned to the pool"),
	)
	mt.recreationsTotal, _ = meter.Int64Counter(
		"ygggo_invdb_pool_recreations_total",
		metric.WithDescription("Total number of times the pool was discarded and rebuilt"),
	)
	mt.initAttemptsTotal, _ = meter.Int64Counter(
		"ygggo_invdb_pool_init_attempts_total",
		metric.WithDescription("Pool initialization attempts"),
	)
	mt.executionsTotal, _ = meter.Int64Counter(
		"ygggo_invdb_executions_total",
		metric.WithDescription("Total number of units of work executed"),
	)
	mt.executionDuration, _ = meter.Float64Histogram(
		"ygggo_invdb_execution_duration_seconds",
		metric.WithDescription("Duration of units of work including retries"),
		metric.WithUnit("s"),
	)
	mt.retriesTotal, _ = meter.Int64Counter(
		"ygggo_invdb_execution_retries_total",
		metric.WithDescription("Units of work retried after a connectivity failure"),
	)
	m.metrics = mt
}

func (m *Manager) currentMetrics() *Metrics {
	if m == nil {
		return nil
	}
	m.metricsMu.RLock()
	defer m.metricsMu.RUnlock()
	if !m.metricsEnabled {
		return nil
	}
	return m.metrics
}

func (m *Manager) recordAcquired(ctx context.Context) {
	if mt := m.currentMetrics(); mt != nil {
		mt.connectionsActive.Add(ctx, 1)
		mt.acquisitionsTotal.Add(ctx, 1)
	}
}

func (m *Manager) recordReleased(ctx context.Context) {
	if mt := m.currentMetrics(); mt != nil {
		mt.connectionsActive.Add(ctx, -1)
		mt.releasesTotal.Add(ctx, 1)
	}
}

func (m *Manager) recordRecreation(ctx context.Context, reason string) {
	if mt := m.currentMetrics(); mt != nil {
		mt.recreationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func (m *Manager) recordInitAttempt(ctx context.Context, err error) {
	if mt := m.currentMetrics(); mt != nil {
		mt.initAttemptsTotal.Add(ctx, 1, metric.WithAttributes(statusAttr(err == nil)))
	}
}

func (m *Manager) recordExecution(ctx context.Context, mode string, duration time.Duration, fail *Failure) {
	mt := m.currentMetrics()
	if mt == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("mode", mode), statusAttr(fail == nil)}
	if fail != nil {
		attrs = append(attrs, attribute.String("category", string(fail.Category)))
	}
	mt.executionsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	mt.executionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs[:2]...))
}

func (m *Manager) recordRetry(ctx context.Context, mode string) {
	if mt := m.currentMetrics(); mt != nil {
		mt.retriesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
	}
}

func statusAttr(ok bool) attribute.KeyValue {
	if ok {
		return attribute.String("status", "success")
	}
	return attribute.String("status", "error")
}
