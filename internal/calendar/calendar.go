// Package calendar retrieves the user's upcoming calendar events and
// normalizes them for meeting-state classification. Two sources are
// supported: the Google Calendar API and a (secret) iCal feed URL.
package calendar

import (
	"context"
	"errors"
	"time"
)

// ErrAuth indicates the calendar rejected our credentials. Retrying won't
// help until the user fixes their configuration.
var ErrAuth = errors.New("calendar authentication failed")

// An Event is an immutable snapshot of one calendar entry, fetched per poll.
type Event struct {
	ID          string
	Summary     string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Cancelled   bool
	Declined    bool
	Transparent bool
}

// Qualifies reports whether the event counts towards the meeting state.
// All-day events, cancelled events, declined invitations and "free"
// (transparent) entries don't light up the lamp.
func (e Event) Qualifies() bool {
	return !e.AllDay && !e.Cancelled && !e.Declined && !e.Transparent
}

// A Source returns the upcoming events on the user's calendar, soonest first.
type Source interface {
	GetUpcomingEvents(ctx context.Context) ([]Event, error)
}
