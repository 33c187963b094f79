// Package reconciler is the control loop at the heart of meeting-light: it
// classifies every calendar update into a meeting state, and sends the light
// a command only when that state differs from the last state the device
// confirmed. Probe reports from the health monitor drive recovery after the
// device connection breaks, and a wall-clock gap between updates (host
// slept) forces a resync, since the light may have been changed while we
// were away.
package reconciler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/clambin/meeting-light/internal/govee"
	"github.com/clambin/meeting-light/internal/meeting"
	"github.com/clambin/meeting-light/internal/palette"
	"github.com/clambin/meeting-light/internal/poller"
	"github.com/clambin/meeting-light/internal/probe"
)

// extra slack on top of 2x the poll interval before a gap between ticks
// counts as a sleep/wake cycle
const wakeSlack = 30 * time.Second

// Mode is the reconciler's own state, layered on top of the meeting state.
type Mode int

const (
	// ModeRunning means the device confirmed the last command.
	ModeRunning Mode = iota
	// ModeDegraded means a command failed terminally. The reconciler stops
	// applying on every tick and waits for a successful health probe.
	ModeDegraded
	// ModeRecovering means the connection looks healthy again; the current
	// state is resent on the next tick.
	ModeRecovering
)

func (m Mode) String() string {
	switch m {
	case ModeDegraded:
		return "degraded"
	case ModeRecovering:
		return "recovering"
	default:
		return "running"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// A Status is a snapshot of the reconciler, as shown on the /health endpoint
// and by the bot's status command.
type Status struct {
	Mode Mode `json:"mode"`
	// State is the most recently classified meeting state.
	State meeting.State `json:"state"`
	// Applied is the state for which a device command was last confirmed.
	// Unknown after startup, a failure, a wake or a settings change; the
	// next tick then always sends a command.
	Applied meeting.State `json:"applied"`
	// NextMeeting is the start of the next (or current) meeting, if any.
	NextMeeting time.Time    `json:"nextMeeting,omitzero"`
	Device      govee.Health `json:"device"`
}

// DeviceClient is the part of the govee client the reconciler uses.
type DeviceClient interface {
	Apply(ctx context.Context, cmd govee.Command) error
	GetHealth() govee.Health
	ResetHealth()
}

// Probes is the probe.Monitor interface consumed by the reconciler.
type Probes interface {
	Subscribe() chan probe.Report
	Unsubscribe(ch chan probe.Report)
}

// Reconciler subscribes to calendar updates and probe reports and drives
// the light. Create one with New and run it with Run.
type Reconciler struct {
	poller   poller.Poller
	probes   Probes
	device   DeviceClient
	notifier Notifier
	logger   *slog.Logger
	// pollInterval is only used for sleep/wake gap detection
	pollInterval time.Duration

	lock       sync.RWMutex
	thresholds meeting.Thresholds
	palette    palette.Palette
	status     Status
	lastTick   time.Time
}

// New returns a Reconciler. notifier may be nil.
func New(p poller.Poller, probes Probes, device DeviceClient, pollInterval time.Duration, thresholds meeting.Thresholds, pal palette.Palette, notifier Notifier, logger *slog.Logger) *Reconciler {
	if notifier == nil {
		notifier = Notifiers{}
	}
	return &Reconciler{
		poller:       p,
		probes:       probes,
		device:       device,
		notifier:     notifier,
		logger:       logger,
		pollInterval: pollInterval,
		thresholds:   thresholds,
		palette:      pal,
		status: Status{
			State:   meeting.StateUnknown,
			Applied: meeting.StateUnknown,
		},
	}
}

// Run processes calendar updates and probe reports until ctx is canceled.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Debug("started")
	defer r.logger.Debug("stopped")

	updates := r.poller.Subscribe()
	defer r.poller.Unsubscribe(updates)
	reports := r.probes.Subscribe()
	defer r.probes.Unsubscribe(reports)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-updates:
			r.reconcile(ctx, update)
		case report := <-reports:
			r.onProbe(report)
		}
	}
}

// GetStatus returns a snapshot of the reconciler's state.
func (r *Reconciler) GetStatus() Status {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.status
}

// TestLight sends the fixed test command, bypassing the change check. The
// last-applied state is left untouched, so the next differing tick restores
// the correct light state.
func (r *Reconciler) TestLight(ctx context.Context) error {
	return r.device.Apply(ctx, palette.TestCommand())
}

// Invalidate discards the last-applied state, forcing a command on the next
// tick, and triggers a poll. Called after the user changed settings.
func (r *Reconciler) Invalidate() {
	r.lock.Lock()
	r.status.Applied = meeting.StateUnknown
	r.lock.Unlock()
	r.poller.Refresh()
}

// SetTuning replaces the classification thresholds and the palette. It does
// not invalidate by itself; callers combine it with Invalidate.
func (r *Reconciler) SetTuning(thresholds meeting.Thresholds, pal palette.Palette) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.thresholds = thresholds
	r.palette = pal
}

// reconcile handles one calendar update: classify, diff, apply.
func (r *Reconciler) reconcile(ctx context.Context, update poller.Update) {
	r.lock.Lock()

	if gap := update.Time.Sub(r.lastTick); !r.lastTick.IsZero() && gap > 2*r.pollInterval+wakeSlack {
		r.logger.Warn("wake from sleep detected. forcing a resync", slog.Duration("gap", gap))
		r.status.Applied = meeting.StateUnknown
		r.device.ResetHealth()
		r.setMode(ModeRecovering)
	}
	r.lastTick = update.Time

	c := meeting.Classify(update.Time, update.Events, r.thresholds)
	r.status.State = c.State
	r.status.NextMeeting = c.Next

	mode := r.status.Mode
	needApply := c.State != r.status.Applied
	cmd, ok := r.palette[c.State]
	r.lock.Unlock()

	if !needApply || !ok {
		return
	}
	if mode == ModeDegraded {
		// don't hammer a dead connection on every tick; the health monitor
		// tells us when to try again
		r.logger.Debug("device degraded. deferring light update", "state", c.State)
		return
	}

	err := r.device.Apply(ctx, cmd)

	var notes []string
	r.lock.Lock()
	r.status.Device = r.device.GetHealth()
	if err != nil {
		r.logger.Error("failed to update light", "state", c.State, "err", err)
		r.status.Applied = meeting.StateUnknown
		if r.setMode(ModeDegraded) {
			notes = append(notes, "light connection lost")
		}
	} else {
		r.status.Applied = c.State
		r.setMode(ModeRunning)
		r.logger.Info("light updated", "state", c.State, "command", cmd.String())
		notes = append(notes, "meeting state: "+c.State.String())
	}
	r.lock.Unlock()

	for _, note := range notes {
		r.notifier.Notify(note)
	}
}

// onProbe handles a health monitor report.
func (r *Reconciler) onProbe(report probe.Report) {
	r.lock.Lock()
	r.status.Device = r.device.GetHealth()

	var refresh bool
	var notes []string
	if report.Healthy() {
		if r.status.Mode == ModeDegraded {
			r.status.Applied = meeting.StateUnknown
			r.setMode(ModeRecovering)
			notes = append(notes, "light connection restored")
			refresh = true
		}
	} else {
		// the device may have missed commands; resend once it's back
		r.status.Applied = meeting.StateUnknown
		if r.setMode(ModeDegraded) {
			notes = append(notes, "light connection lost")
		}
	}
	r.lock.Unlock()

	for _, note := range notes {
		r.notifier.Notify(note)
	}
	if refresh {
		r.poller.Refresh()
	}
}

// setMode records a mode transition, reporting whether the mode changed so
// callers can notify the user once per change instead of on every tick.
// Callers hold the lock.
func (r *Reconciler) setMode(mode Mode) bool {
	if mode == r.status.Mode {
		return false
	}
	r.logger.Info("mode changed", "from", r.status.Mode.String(), "to", mode.String())
	r.status.Mode = mode
	return true
}
