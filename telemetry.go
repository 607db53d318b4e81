package ygggo_invdb

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName    = "github.com/yggai/ygggo_invdb"
	instrumentationVersion = "v0.1.0"
)

func tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(instrumentationName, trace.WithInstrumentationVersion(instrumentationVersion))
}

// EnableTelemetry enables or disables OpenTelemetry tracing for this manager.
// Pools opened afterwards are also wrapped with otelsql.
func (m *Manager) EnableTelemetry(enabled bool) {
	if m == nil {
		return
	}
	m.telemetryEnabled.Store(enabled)
}

// startSpan creates a new span with common database attributes
func (m *Manager) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if m == nil || !m.telemetryEnabled.Load() {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := tracer().Start(ctx, fmt.Sprintf("ygggo_invdb.%s", operation))
	span.SetAttributes(
		attribute.String("db.system", m.cfg.Driver),
		attribute.String("db.operation", operation),
		attribute.String("db.pool", m.cfg.PoolName),
	)
	if name := m.cfg.Telemetry.ServiceName; name != "" {
		span.SetAttributes(attribute.String("service.name", name))
	}
	return ctx, span
}

// finishSpan completes a span, recording the failure if any.
func (m *Manager) finishSpan(span trace.Span, attempts int, fail *Failure) {
	if m == nil || !m.telemetryEnabled.Load() {
		return
	}
	span.SetAttributes(attribute.Int("ygggo_invdb.attempts", attempts))
	if fail != nil {
		span.SetAttributes(attribute.String("ygggo_invdb.category", string(fail.Category)))
		if fail.cause != nil {
			span.RecordError(fail.cause)
		}
		span.SetStatus(codes.Error, fail.Msg)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
