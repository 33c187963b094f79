package poller_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/clambin/meeting-light/internal/calendar"
	"github.com/clambin/meeting-light/internal/poller"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	lock   sync.Mutex
	events []calendar.Event
	err    error
	calls  int
}

func (f *fakeSource) GetUpcomingEvents(_ context.Context) ([]calendar.Event, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls++
	return f.events, f.err
}

func (f *fakeSource) set(events []calendar.Event, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.events = events
	f.err = err
}

func TestCalendarPoller_Run(t *testing.T) {
	source := fakeSource{events: []calendar.Event{{Summary: "stand-up"}}}
	p := poller.New(&source, time.Hour, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	ch := p.Subscribe()
	defer p.Unsubscribe(ch)

	errCh := make(chan error)
	go func() { errCh <- p.Run(ctx) }()

	update := <-ch
	require.Len(t, update.Events, 1)
	assert.Equal(t, "stand-up", update.Events[0].Summary)
	assert.False(t, update.Time.IsZero())

	p.Refresh()
	update = <-ch
	require.Len(t, update.Events, 1)

	cancel()
	assert.NoError(t, <-errCh)
}

func TestCalendarPoller_Run_FetchFailure(t *testing.T) {
	source := fakeSource{err: errors.New("network down")}
	p := poller.New(&source, time.Hour, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := p.Subscribe()
	defer p.Unsubscribe(ch)

	errCh := make(chan error)
	go func() { errCh <- p.Run(ctx) }()

	// nothing published while the source fails
	p.Refresh()
	select {
	case <-ch:
		t.Fatal("unexpected update during fetch failure")
	case <-time.After(100 * time.Millisecond):
	}

	// recovery: the next successful poll is published
	source.set([]calendar.Event{{Summary: "recovered"}}, nil)
	p.Refresh()
	select {
	case update := <-ch:
		require.Len(t, update.Events, 1)
		assert.Equal(t, "recovered", update.Events[0].Summary)
	case <-time.After(time.Second):
		t.Fatal("no update after recovery")
	}

	cancel()
	assert.NoError(t, <-errCh)
}
