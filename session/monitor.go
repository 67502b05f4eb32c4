// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/timenest/timenest-go/lib/clock"
)

// DefaultMonitorInterval is how often the monitor re-evaluates the
// credential's expiry. Tunable via MonitorConfig; one minute matches
// the web client's sweep.
const DefaultMonitorInterval = time.Minute

// MonitorConfig holds dependencies for creating a Monitor.
type MonitorConfig struct {
	// Store is the session store to watch. Required.
	Store *Store

	// Interval between expiry checks while a credential is present.
	// Zero uses DefaultMonitorInterval.
	Interval time.Duration

	// Clock drives the check interval. If nil, clock.Real() is used.
	Clock clock.Clock

	// OnExpired, if set, is called after a forced logout, once per
	// expiry. Callers use it to surface a "session expired" notice.
	OnExpired func()

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Monitor periodically evaluates the store's credential expiry and
// forces a logout when the embedded expiry passes. Expiry detection is
// purely local, a clock comparison against the token's embedded
// instant, never a network round-trip. The forced logout flows through
// Store.Logout, so connection teardown and every other watcher sees
// the same transition as an explicit logout.
type Monitor struct {
	store     *Store
	interval  time.Duration
	clock     clock.Clock
	onExpired func()
	logger    *slog.Logger
}

// NewMonitor creates a Monitor. Call Run to start it.
func NewMonitor(cfg MonitorConfig) *Monitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		store:     cfg.Store,
		interval:  interval,
		clock:     clk,
		onExpired: cfg.OnExpired,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled, checking the credential on every
// tick and immediately after every credential transition (a fresh
// login is evaluated at once, not an interval later). Returns nil on
// cancellation; the ticker and the store subscription are always
// released.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	// A login while between ticks kicks an immediate check. Buffered
	// so the store's synchronous watcher callback never blocks.
	kick := make(chan struct{}, 1)
	sub := m.store.Watch(func(cred *Credential) {
		if cred == nil {
			return
		}
		select {
		case kick <- struct{}{}:
		default:
		}
	})
	defer sub.Cancel()

	m.check(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.check(ctx)
		case <-kick:
			m.check(ctx)
		}
	}
}

// check forces a logout when the held credential reads as expired.
// Holding no credential is the idle state; nothing to do.
func (m *Monitor) check(ctx context.Context) {
	cred, ok := m.store.Current()
	if !ok {
		return
	}
	if !m.store.Expired() {
		return
	}

	m.logger.Warn("session expired, forcing logout", "user_id", cred.UserID)
	if err := m.store.Logout(ctx); err != nil {
		m.logger.Error("forced logout failed to clear storage", "error", err)
	}
	if m.onExpired != nil {
		m.onExpired()
	}
}
