// Package meeting derives the current meeting state from the user's
// upcoming calendar events. Classification is a pure function of the clock
// and the event list, so it can never fail and is trivially testable.
package meeting

import (
	"fmt"
	"time"

	"github.com/clambin/meeting-light/internal/calendar"
)

// State is the user's current meeting state.
type State int

const (
	// StateUnknown means no classification has been made (or applied) yet.
	StateUnknown State = iota
	// StateIdle means no qualifying meeting within the "soon" threshold.
	StateIdle
	// StateSoon means the next meeting starts within the "soon" threshold.
	StateSoon
	// StateImminent means the next meeting starts within the "imminent" threshold.
	StateImminent
	// StateActive means a meeting is in progress.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSoon:
		return "soon"
	case StateImminent:
		return "imminent"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler, so a State renders as its
// name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseState returns the State for its name, as used in the palette file.
func ParseState(name string) (State, error) {
	for _, s := range []State{StateIdle, StateSoon, StateImminent, StateActive} {
		if s.String() == name {
			return s, nil
		}
	}
	return StateUnknown, fmt.Errorf("invalid meeting state: %q", name)
}

// Thresholds hold the time-to-start cut-offs for the Soon and Imminent states.
type Thresholds struct {
	Soon     time.Duration
	Imminent time.Duration
}

// DefaultThresholds match the classic behavior: "soon" within 10 minutes,
// "imminent" within 1 minute.
var DefaultThresholds = Thresholds{Soon: 10 * time.Minute, Imminent: time.Minute}

// A Classification is the outcome of one Classify call.
type Classification struct {
	// State is the current meeting state.
	State State
	// Next is the start of the candidate event (zero if there is none).
	// Shown to the user as "next meeting at".
	Next time.Time
}

// Classify returns the meeting state at now, given the upcoming events.
// The candidate is the qualifying event with the earliest start time that
// hasn't ended yet; with back-to-back meetings the closest-by-start-time
// candidate wins. An event ending exactly at now is treated as ended, so the
// light doesn't flicker at meeting boundaries.
func Classify(now time.Time, events []calendar.Event, thresholds Thresholds) Classification {
	var candidate calendar.Event
	var found bool
	for _, event := range events {
		if !event.Qualifies() || !now.Before(event.End) {
			continue
		}
		if !found || event.Start.Before(candidate.Start) {
			candidate = event
			found = true
		}
	}
	if !found {
		return Classification{State: StateIdle}
	}

	c := Classification{Next: candidate.Start}
	untilStart := candidate.Start.Sub(now)
	switch {
	case untilStart <= 0:
		c.State = StateActive
	case untilStart <= thresholds.Imminent:
		c.State = StateImminent
	case untilStart <= thresholds.Soon:
		c.State = StateSoon
	default:
		c.State = StateIdle
	}
	return c
}
