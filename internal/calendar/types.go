package calendar

import (
	"time"

	calendar "google.golang.org/api/calendar/v3"
)

// Event is the normalized event shape returned to callers. It is stable
// regardless of the backend's native representation so the chat-formatting
// layer deals with exactly one schema.
type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Status      string    `json:"status,omitempty"`
	HTMLLink    string    `json:"html_link,omitempty"`
}

// EventInput carries the fields for creating or updating an event. Zero
// values mean "leave unset" (create) or "leave unchanged" (update).
type EventInput struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	TimeZone    string // IANA name; defaults to UTC
}

// toEvent converts a Google Calendar event into the normalized shape.
func toEvent(event *calendar.Event) Event {
	if event == nil {
		return Event{}
	}

	e := Event{
		ID:          event.Id,
		Summary:     event.Summary,
		Description: event.Description,
		Location:    event.Location,
		Status:      event.Status,
		HTMLLink:    event.HtmlLink,
	}

	if event.Start != nil {
		e.Start = parseEventTime(event.Start)
	}
	if event.End != nil {
		e.End = parseEventTime(event.End)
	}

	return e
}

// parseEventTime handles both timed and all-day event boundaries.
func parseEventTime(edt *calendar.EventDateTime) time.Time {
	if edt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, edt.DateTime); err == nil {
			return t
		}
	}
	if edt.Date != "" {
		if t, err := time.Parse("2006-01-02", edt.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}
