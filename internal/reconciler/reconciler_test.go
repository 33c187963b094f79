package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clambin/meeting-light/internal/calendar"
	"github.com/clambin/meeting-light/internal/govee"
	"github.com/clambin/meeting-light/internal/meeting"
	"github.com/clambin/meeting-light/internal/palette"
	"github.com/clambin/meeting-light/internal/poller"
	"github.com/clambin/meeting-light/internal/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePoller struct {
	ch        chan poller.Update
	refreshes atomic.Int32
}

func (f *fakePoller) Subscribe() chan poller.Update    { return f.ch }
func (f *fakePoller) Unsubscribe(_ chan poller.Update) {}
func (f *fakePoller) Refresh()                         { f.refreshes.Add(1) }

type fakeProbes struct {
	ch chan probe.Report
}

func (f *fakeProbes) Subscribe() chan probe.Report    { return f.ch }
func (f *fakeProbes) Unsubscribe(_ chan probe.Report) {}

type fakeDevice struct {
	lock     sync.Mutex
	err      error
	commands []govee.Command
	health   govee.Health
	resets   int
}

func (f *fakeDevice) Apply(_ context.Context, cmd govee.Command) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.commands = append(f.commands, cmd)
	if f.err != nil {
		f.health.ConsecutiveFailures++
		return f.err
	}
	f.health.LastSuccess = time.Now()
	f.health.ConsecutiveFailures = 0
	return nil
}

func (f *fakeDevice) GetHealth() govee.Health {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.health
}

func (f *fakeDevice) ResetHealth() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.resets++
	f.health.ConsecutiveFailures = 0
}

func (f *fakeDevice) fail(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.err = err
}

func (f *fakeDevice) applied() []govee.Command {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]govee.Command{}, f.commands...)
}

type testHarness struct {
	*Reconciler
	poller *fakePoller
	probes *fakeProbes
	device *fakeDevice
	cancel context.CancelFunc
	done   chan error
}

func startReconciler(t *testing.T) *testHarness {
	t.Helper()
	h := testHarness{
		poller: &fakePoller{ch: make(chan poller.Update)},
		probes: &fakeProbes{ch: make(chan probe.Report)},
		device: &fakeDevice{},
		done:   make(chan error),
	}
	h.Reconciler = New(h.poller, h.probes, h.device, time.Minute, meeting.DefaultThresholds, palette.Default(), nil, slog.Default())

	var ctx context.Context
	ctx, h.cancel = context.WithCancel(context.Background())
	go func() { h.done <- h.Run(ctx) }()
	t.Cleanup(func() {
		h.cancel()
		assert.NoError(t, <-h.done)
	})
	return &h
}

func TestReconciler_MeetingLifecycle(t *testing.T) {
	h := startReconciler(t)

	now := time.Date(2024, time.November, 5, 9, 0, 0, 0, time.UTC)
	event := calendar.Event{Start: now.Add(605 * time.Second), End: now.Add(3605 * time.Second)}

	ticks := []struct {
		at   time.Time
		want meeting.State
	}{
		{at: now, want: meeting.StateSoon},
		{at: now.Add(600 * time.Second), want: meeting.StateImminent},
		{at: now.Add(606 * time.Second), want: meeting.StateActive},
		{at: now.Add(3606 * time.Second), want: meeting.StateIdle},
	}

	for _, tick := range ticks {
		h.poller.ch <- poller.Update{Time: tick.at, Events: []calendar.Event{event}}
		require.Eventually(t, func() bool {
			return h.GetStatus().Applied == tick.want
		}, time.Second, 10*time.Millisecond)
	}

	pal := palette.Default()
	want := []govee.Command{
		pal[meeting.StateSoon],
		pal[meeting.StateImminent],
		pal[meeting.StateActive],
		pal[meeting.StateIdle],
	}
	assert.Equal(t, want, h.device.applied())
}

func TestReconciler_AppliesOnlyOnChange(t *testing.T) {
	h := startReconciler(t)

	now := time.Now()
	update := poller.Update{Time: now, Events: nil}

	for range 5 {
		h.poller.ch <- update
		update.Time = update.Time.Add(time.Minute)
	}
	require.Eventually(t, func() bool {
		return h.GetStatus().Applied == meeting.StateIdle
	}, time.Second, 10*time.Millisecond)

	// five idle ticks, one command
	assert.Len(t, h.device.applied(), 1)
}

func TestReconciler_DegradedAndRecovery(t *testing.T) {
	h := startReconciler(t)

	now := time.Now()
	h.device.fail(errors.New("device unreachable"))
	h.poller.ch <- poller.Update{Time: now}
	require.Eventually(t, func() bool {
		return h.GetStatus().Mode == ModeDegraded
	}, time.Second, 10*time.Millisecond)
	require.Len(t, h.device.applied(), 1)
	assert.Equal(t, meeting.StateUnknown, h.GetStatus().Applied)

	// while degraded, ticks don't retry the device
	h.poller.ch <- poller.Update{Time: now.Add(time.Minute)}
	h.poller.ch <- poller.Update{Time: now.Add(2 * time.Minute)}
	require.Eventually(t, func() bool {
		return h.GetStatus().State == meeting.StateIdle
	}, time.Second, 10*time.Millisecond)
	assert.Len(t, h.device.applied(), 1)

	// a failed probe keeps it degraded
	h.probes.ch <- probe.Report{Time: now, Err: errors.New("still down")}

	// a successful probe starts recovery and triggers a poll
	h.device.fail(nil)
	h.probes.ch <- probe.Report{Time: now.Add(5 * time.Minute)}
	require.Eventually(t, func() bool {
		return h.GetStatus().Mode == ModeRecovering
	}, time.Second, 10*time.Millisecond)
	assert.Positive(t, h.poller.refreshes.Load())

	// the next tick resends the current state even though it hasn't changed
	h.poller.ch <- poller.Update{Time: now.Add(5 * time.Minute)}
	require.Eventually(t, func() bool {
		s := h.GetStatus()
		return s.Mode == ModeRunning && s.Applied == meeting.StateIdle
	}, time.Second, 10*time.Millisecond)
	assert.Len(t, h.device.applied(), 2)
}

func TestReconciler_WakeFromSleep(t *testing.T) {
	h := startReconciler(t)

	now := time.Now()
	h.poller.ch <- poller.Update{Time: now}
	require.Eventually(t, func() bool {
		return h.GetStatus().Applied == meeting.StateIdle
	}, time.Second, 10*time.Millisecond)
	require.Len(t, h.device.applied(), 1)

	// one hour gap: same meeting state, but the command is resent
	h.poller.ch <- poller.Update{Time: now.Add(time.Hour)}
	require.Eventually(t, func() bool {
		return len(h.device.applied()) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, h.device.resets)
	assert.Equal(t, meeting.StateIdle, h.GetStatus().Applied)
}

func TestReconciler_TestLight(t *testing.T) {
	h := startReconciler(t)

	now := time.Now()
	h.poller.ch <- poller.Update{Time: now}
	require.Eventually(t, func() bool {
		return h.GetStatus().Applied == meeting.StateIdle
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, h.TestLight(context.Background()))
	commands := h.device.applied()
	require.Len(t, commands, 2)
	assert.Equal(t, palette.TestCommand(), commands[1])
	// the test does not change the applied state: the next idle tick sends nothing
	assert.Equal(t, meeting.StateIdle, h.GetStatus().Applied)
}

func TestReconciler_Invalidate(t *testing.T) {
	h := startReconciler(t)

	now := time.Now()
	h.poller.ch <- poller.Update{Time: now}
	require.Eventually(t, func() bool {
		return h.GetStatus().Applied == meeting.StateIdle
	}, time.Second, 10*time.Millisecond)

	h.Invalidate()
	assert.Equal(t, meeting.StateUnknown, h.GetStatus().Applied)
	assert.Positive(t, h.poller.refreshes.Load())

	h.poller.ch <- poller.Update{Time: now.Add(time.Minute)}
	require.Eventually(t, func() bool {
		return len(h.device.applied()) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestReconciler_SetTuning(t *testing.T) {
	h := startReconciler(t)

	now := time.Now()
	h.poller.ch <- poller.Update{Time: now}
	require.Eventually(t, func() bool {
		return h.GetStatus().Applied == meeting.StateIdle
	}, time.Second, 10*time.Millisecond)

	pal := palette.Default()
	pal[meeting.StateIdle] = govee.Command{Power: true, Temperature: 4000, Brightness: 30}
	h.SetTuning(meeting.DefaultThresholds, pal)
	h.Invalidate()

	h.poller.ch <- poller.Update{Time: now.Add(time.Minute)}
	require.Eventually(t, func() bool {
		return len(h.device.applied()) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, pal[meeting.StateIdle], h.device.applied()[1])
}

func TestNotifiers(t *testing.T) {
	var received []string
	n := Notifiers{SLogNotifier{Logger: slog.Default()}, notifierFunc(func(msg string) { received = append(received, msg) })}
	n.Notify("hello")
	assert.Equal(t, []string{"hello"}, received)
}

type notifierFunc func(string)

func (f notifierFunc) Notify(message string) { f(message) }
