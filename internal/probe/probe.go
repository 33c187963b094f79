// Package probe periodically checks that the light's API is reachable,
// independently of the reconciler's poll cadence. Probe results are
// published so the reconciler can recover a degraded connection without
// hammering the device on every tick.
package probe

import (
	"context"
	"log/slog"
	"time"

	"github.com/clambin/meeting-light/pkg/pubsub"
)

// Pinger performs a lightweight device-reachability check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// A Report is the outcome of one probe.
type Report struct {
	Time time.Time
	Err  error
}

// Healthy reports whether the probe succeeded.
func (r Report) Healthy() bool { return r.Err == nil }

// Monitor runs the periodic probe and publishes its Reports.
type Monitor struct {
	Pinger
	*pubsub.Publisher[Report]
	interval time.Duration
	logger   *slog.Logger
}

// New returns a Monitor probing pinger every interval.
func New(pinger Pinger, interval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		Pinger:    pinger,
		Publisher: pubsub.New[Report](logger),
		interval:  interval,
		logger:    logger,
	}
}

// Run probes until ctx is canceled. The first probe happens immediately, so
// a dead connection is reported at startup rather than one interval in.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Debug("started", slog.Duration("interval", m.interval))
	defer m.logger.Debug("stopped")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	report := Report{Time: time.Now(), Err: m.Ping(ctx)}
	if report.Healthy() {
		m.logger.Debug("health check passed")
	} else {
		m.logger.Warn("health check failed", "err", report.Err)
	}
	if ctx.Err() != nil {
		// don't report (and block on) a probe aborted by shutdown
		return
	}
	m.Publish(report)
}
