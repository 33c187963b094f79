package calendar

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/emersion/go-ical"
)

// FeedClient fetches upcoming events from an iCal feed (e.g. a Google
// Calendar "secret address" or an Outlook published calendar).
type FeedClient struct {
	URL        string
	HTTPClient *http.Client
	// Horizon limits how far ahead events are considered (default 24h).
	Horizon time.Duration
}

var _ Source = &FeedClient{}

// GetUpcomingEvents returns the feed's not-yet-ended events within the
// horizon, soonest first. Feeds carry no invitation response for the owner,
// so Declined is never set; cancelled and transparent events are flagged.
func (c *FeedClient) GetUpcomingEvents(ctx context.Context) ([]Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ical feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return nil, fmt.Errorf("ical feed: %s: %w", resp.Status, ErrAuth)
	default:
		return nil, fmt.Errorf("ical feed: %s", resp.Status)
	}

	cal, err := ical.NewDecoder(resp.Body).Decode()
	if err != nil {
		return nil, fmt.Errorf("ical feed: decode: %w", err)
	}

	now := time.Now()
	horizon := c.Horizon
	if horizon == 0 {
		horizon = 24 * time.Hour
	}

	var events []Event
	for _, component := range cal.Children {
		if component.Name != ical.CompEvent {
			continue
		}
		ev, err := parseComponent(component)
		if err != nil {
			continue
		}
		if !now.Before(ev.End) || ev.Start.After(now.Add(horizon)) {
			continue
		}
		events = append(events, ev)
	}

	slices.SortFunc(events, func(a, b Event) int { return a.Start.Compare(b.Start) })
	return events, nil
}

func parseComponent(component *ical.Component) (Event, error) {
	var ev Event
	if prop := component.Props.Get(ical.PropUID); prop != nil {
		ev.ID = prop.Value
	}
	if prop := component.Props.Get(ical.PropSummary); prop != nil {
		ev.Summary = prop.Value
	}
	if prop := component.Props.Get(ical.PropStatus); prop != nil {
		ev.Cancelled = prop.Value == "CANCELLED"
	}
	if prop := component.Props.Get(ical.PropTransparency); prop != nil {
		ev.Transparent = prop.Value == "TRANSPARENT"
	}

	start := component.Props.Get(ical.PropDateTimeStart)
	end := component.Props.Get(ical.PropDateTimeEnd)
	if start == nil || end == nil {
		return Event{}, fmt.Errorf("event %q: missing start or end time", ev.ID)
	}
	ev.AllDay = start.Params.Get(ical.ParamValue) == string(ical.ValueDate)

	var err error
	if ev.Start, err = start.DateTime(time.Local); err != nil {
		return Event{}, fmt.Errorf("event %q: start: %w", ev.ID, err)
	}
	if ev.End, err = end.DateTime(time.Local); err != nil {
		return Event{}, fmt.Errorf("event %q: end: %w", ev.ID, err)
	}
	return ev, nil
}
