// Package poller periodically fetches the user's upcoming calendar events
// and publishes them to all subscribers (reconciler, health endpoint, bot).
package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/clambin/meeting-light/internal/calendar"
	"github.com/clambin/meeting-light/pkg/pubsub"
)

// Poller is the interface consumed by subscribers.
type Poller interface {
	Subscribe() chan Update
	Unsubscribe(ch chan Update)
	Refresh()
}

// An Update is the result of one poll: the events on the calendar and the
// wall-clock time they were fetched. The timestamp doubles as the
// reconciler's tick time for sleep/wake gap detection.
type Update struct {
	Time   time.Time
	Events []calendar.Event
}

var _ Poller = &CalendarPoller{}

// CalendarPoller polls a calendar Source on a fixed interval. A failed fetch
// publishes nothing, so subscribers keep acting on the last good update
// rather than falling back to an empty calendar. Fetch failures are logged
// once per status change, not on every tick.
type CalendarPoller struct {
	Source calendar.Source
	*pubsub.Publisher[Update]
	interval time.Duration
	logger   *slog.Logger
	refresh  chan struct{}
	failing  bool
}

// New returns a CalendarPoller polling source every interval.
func New(source calendar.Source, interval time.Duration, logger *slog.Logger) *CalendarPoller {
	return &CalendarPoller{
		Source:    source,
		Publisher: pubsub.New[Update](logger),
		interval:  interval,
		logger:    logger,
		refresh:   make(chan struct{}, 1),
	}
}

// Run polls until ctx is canceled. The first poll happens immediately.
func (p *CalendarPoller) Run(ctx context.Context) error {
	p.logger.Debug("started", slog.Duration("interval", p.interval))
	defer p.logger.Debug("stopped")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.poll(ctx)
		case <-p.refresh:
			p.poll(ctx)
		}
	}
}

// Refresh triggers an out-of-band poll.
func (p *CalendarPoller) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

func (p *CalendarPoller) poll(ctx context.Context) {
	start := time.Now()
	events, err := p.Source.GetUpcomingEvents(ctx)
	if err != nil {
		if !p.failing {
			if errors.Is(err, calendar.ErrAuth) {
				p.logger.Error("calendar rejected our credentials. check the calendar configuration", "err", err)
			} else {
				p.logger.Error("failed to get calendar events", "err", err)
			}
		}
		p.failing = true
		return
	}
	if p.failing {
		p.logger.Info("calendar connection restored")
		p.failing = false
	}
	p.Publish(Update{Time: start, Events: events})
	p.logger.Debug("poll completed", slog.Int("events", len(events)), slog.Duration("duration", time.Since(start)))
}
