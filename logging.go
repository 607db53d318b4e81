package ygggo_invdb

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	mysql "github.com/go-sql-driver/mysql"
)

// Log categories attached to every event as the "category" attribute.
const (
	LogCategoryDatabase = "DATABASE"
	LogCategoryRetry    = "DATABASE-RETRY"
	LogCategoryExec     = "db-executionist"
	LogCategoryRollback = "db-executionist-rollback"
	LogCategoryTest     = "database-test"
)

// NewLogger builds the default JSON slog logger for cfg.
func NewLogger(cfg LoggingConfig) *slog.Logger {
	return newLoggerTo(os.Stdout, cfg)
}

func newLoggerTo(w io.Writer, cfg LoggingConfig) *slog.Logger {
	if !cfg.Enabled {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	level := slog.LevelInfo
	if cfg.Level != "" {
		_ = level.UnmarshalText([]byte(cfg.Level))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// EnableLogging enables or disables structured logging for this manager.
func (m *Manager) EnableLogging(enabled bool) {
	if m == nil {
		return
	}
	m.loggingEnabled.Store(enabled)
}

// SetLogger sets a custom logger for this manager.
func (m *Manager) SetLogger(logger *slog.Logger) {
	if m == nil || logger == nil {
		return
	}
	m.logger.Store(logger)
	m.loggingEnabled.Store(true)
}

// Logger returns the logger in use.
func (m *Manager) Logger() *slog.Logger {
	if m == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return m.logger.Load()
}

func (m *Manager) logEvent(ctx context.Context, level slog.Level, category, msg string, attrs ...slog.Attr) {
	if m == nil || !m.loggingEnabled.Load() {
		return
	}
	attrs = append([]slog.Attr{slog.String("category", category)}, attrs...)
	m.logger.Load().LogAttrs(ctx, level, msg, attrs...)
}

// logStatement logs a single statement run through a Cursor at debug level.
// Statements over the slow threshold are also recorded and logged at warn.
func (m *Manager) logStatement(ctx context.Context, operation, query string, argCount int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	slow := m.slow.observe(operation, query, duration, err)
	if !m.loggingEnabled.Load() {
		return
	}
	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("query", query),
		slog.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
	}
	if argCount > 0 {
		attrs = append(attrs, slog.Int("arg_count", argCount))
	}
	level := slog.LevelDebug
	if slow {
		level = slog.LevelWarn
		attrs = append(attrs, slog.Bool("slow", true))
	}
	if err != nil {
		attrs = append(attrs, slog.String("status", "error"), slog.String("error", err.Error()))
		if me, ok := err.(*mysql.MySQLError); ok {
			attrs = append(attrs, slog.Int("error_code", int(me.Number)))
		}
	} else {
		attrs = append(attrs, slog.String("status", "success"))
	}
	m.logEvent(ctx, level, LogCategoryExec, "statement executed", attrs...)
}
