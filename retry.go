package ygggo_invdb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// fixedDelay splits a total budget evenly across attempts.
func fixedDelay(attempts int, total time.Duration) time.Duration {
	if attempts <= 0 || total <= 0 {
		return 0
	}
	return total / time.Duration(attempts)
}

// newFixedBackOff returns a constant backoff that allows attempts tries in total.
func newFixedBackOff(ctx context.Context, attempts int, delay time.Duration) backoff.BackOffContext {
	if attempts <= 0 {
		attempts = 1
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1))
	return backoff.WithContext(b, ctx)
}

// retryInitLocked calls initializeLocked up to attempts times, sleeping delay
// between failures. Callers must hold initMu.
func (m *Manager) retryInitLocked(ctx context.Context, attempts int, delay time.Duration, reason string) error {
	if attempts <= 0 {
		attempts = 1
	}
	m.initializing.Store(true)
	defer m.initializing.Store(false)
	attempt := 0
	op := func() error {
		attempt++
		m.logEvent(ctx, slog.LevelInfo, LogCategoryRetry,
			fmt.Sprintf("initializing connection pool, attempt %d/%d", attempt, attempts),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.String("reason", reason),
		)
		err := m.initializeLocked(ctx, reason)
		if err != nil && m.isClosed() {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		m.logEvent(ctx, slog.LevelWarn, LogCategoryRetry,
			fmt.Sprintf("attempt %d/%d failed", attempt, attempts),
			slog.String("error", err.Error()),
			slog.Duration("retry_in", next),
		)
	}
	if err := backoff.RetryNotify(op, newFixedBackOff(ctx, attempts, delay), notify); err != nil {
		m.logEvent(ctx, slog.LevelError, LogCategoryRetry,
			fmt.Sprintf("giving up after %d/%d attempts", attempt, attempts),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}
