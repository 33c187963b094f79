package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/clambin/go-common/set"
)

const googleCalendarURL = "https://www.googleapis.com/calendar/v3"

// GoogleClient fetches upcoming events from the Google Calendar API, using
// an API key for authentication. The calendar must be public or shared with
// the key's project.
type GoogleClient struct {
	APIKey     string
	CalendarID string
	HTTPClient *http.Client
	// BaseURL overrides the Google Calendar API endpoint. Used in tests.
	BaseURL string
	// MaxResults limits the number of returned events (default 10).
	MaxResults int
}

var _ Source = &GoogleClient{}

// GetUpcomingEvents returns the calendar's upcoming events, soonest first.
// Recurring events are expanded server-side (singleEvents); duplicates are
// dropped by event ID.
func (c *GoogleClient) GetUpcomingEvents(ctx context.Context) ([]Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.eventsURL(time.Now()), nil)
	if err != nil {
		return nil, err
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google calendar: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("google calendar: %w", ErrAuth)
	case http.StatusNotFound:
		return nil, fmt.Errorf("google calendar: calendar %q not found: %w", c.CalendarID, ErrAuth)
	default:
		return nil, fmt.Errorf("google calendar: %s", resp.Status)
	}

	var response googleEventList
	if err = json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("google calendar: decode: %w", err)
	}

	events := make([]Event, 0, len(response.Items))
	seen := set.New[string]()
	for _, item := range response.Items {
		if seen.Contains(item.ID) {
			continue
		}
		seen.Add(item.ID)
		events = append(events, item.event(c.CalendarID))
	}
	return events, nil
}

func (c *GoogleClient) eventsURL(now time.Time) string {
	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = googleCalendarURL
	}
	maxResults := c.MaxResults
	if maxResults == 0 {
		maxResults = 10
	}
	values := url.Values{
		"key":          []string{c.APIKey},
		"timeMin":      []string{now.UTC().Format(time.RFC3339)},
		"maxResults":   []string{strconv.Itoa(maxResults)},
		"singleEvents": []string{"true"},
		"orderBy":      []string{"startTime"},
	}
	return baseURL + "/calendars/" + url.PathEscape(c.CalendarID) + "/events?" + values.Encode()
}

type googleEventList struct {
	Items []googleEvent `json:"items"`
}

type googleEvent struct {
	ID           string          `json:"id"`
	Summary      string          `json:"summary"`
	Status       string          `json:"status"`
	Transparency string          `json:"transparency"`
	Start        googleEventTime `json:"start"`
	End          googleEventTime `json:"end"`
	Attendees    []struct {
		Email          string `json:"email"`
		Self           bool   `json:"self"`
		ResponseStatus string `json:"responseStatus"`
	} `json:"attendees"`
}

type googleEventTime struct {
	DateTime time.Time `json:"dateTime"`
	Date     string    `json:"date"`
}

func (e googleEvent) event(calendarID string) Event {
	ev := Event{
		ID:          e.ID,
		Summary:     e.Summary,
		Start:       e.Start.DateTime,
		End:         e.End.DateTime,
		AllDay:      e.Start.DateTime.IsZero(),
		Cancelled:   e.Status == "cancelled",
		Transparent: e.Transparency == "transparent",
	}
	for _, attendee := range e.Attendees {
		if attendee.Self || attendee.Email == calendarID {
			ev.Declined = attendee.ResponseStatus == "declined"
			break
		}
	}
	return ev
}
