package calendar

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const (
	// DefaultCalendarID is used when a request does not name a calendar.
	DefaultCalendarID = "primary"

	// DefaultMaxResults bounds list responses when the caller does not ask
	// for a specific count.
	DefaultMaxResults = 10

	// MaxResultsCap is the hard upper bound for list responses.
	MaxResultsCap = 50

	defaultCallTimeout = 15 * time.Second
)

// Backend is the capability interface to the remote calendar service. The
// access token is passed per call: token freshness is the token refresher's
// concern, and calls for the same user may run concurrently once a valid
// token is held.
type Backend interface {
	CreateEvent(ctx context.Context, accessToken, calendarID string, input EventInput) (*Event, error)
	ListEvents(ctx context.Context, accessToken, calendarID string, from, to time.Time, maxResults int64) ([]Event, error)
	UpdateEvent(ctx context.Context, accessToken, calendarID, eventID string, input EventInput) (*Event, error)
	DeleteEvent(ctx context.Context, accessToken, calendarID, eventID string) error
}

// GoogleBackend implements Backend against the Google Calendar v3 API.
type GoogleBackend struct {
	timeout time.Duration
}

// NewGoogleBackend creates a backend with the default per-call timeout.
func NewGoogleBackend() *GoogleBackend {
	return &GoogleBackend{timeout: defaultCallTimeout}
}

// NewGoogleBackendWithTimeout creates a backend with a custom per-call timeout.
func NewGoogleBackendWithTimeout(timeout time.Duration) *GoogleBackend {
	return &GoogleBackend{timeout: timeout}
}

// service builds a Calendar service bound to the given access token. The
// token is static by design; refresh happens before the call, never inside it.
func (b *GoogleBackend) service(ctx context.Context, accessToken string) (*calendar.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	svc, err := calendar.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return svc, nil
}

// CreateEvent inserts a new event.
func (b *GoogleBackend) CreateEvent(ctx context.Context, accessToken, calendarID string, input EventInput) (*Event, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	svc, err := b.service(ctx, accessToken)
	if err != nil {
		return nil, ClassifyError(err)
	}

	tz := input.TimeZone
	if tz == "" {
		tz = "UTC"
	}

	event := &calendar.Event{
		Summary:     input.Summary,
		Description: input.Description,
		Location:    input.Location,
		Start: &calendar.EventDateTime{
			DateTime: input.Start.Format(time.RFC3339),
			TimeZone: tz,
		},
		End: &calendar.EventDateTime{
			DateTime: input.End.Format(time.RFC3339),
			TimeZone: tz,
		},
	}

	created, err := svc.Events.Insert(calendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, ClassifyError(err)
	}

	e := toEvent(created)
	return &e, nil
}

// ListEvents lists events within a time range, expanded to single instances
// and ordered by start time ascending.
func (b *GoogleBackend) ListEvents(ctx context.Context, accessToken, calendarID string, from, to time.Time, maxResults int64) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	svc, err := b.service(ctx, accessToken)
	if err != nil {
		return nil, ClassifyError(err)
	}

	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	result, err := svc.Events.List(calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, ClassifyError(err)
	}

	var events []Event
	for _, item := range result.Items {
		events = append(events, toEvent(item))
	}
	return events, nil
}

// UpdateEvent patches an existing event with the non-zero fields of input.
func (b *GoogleBackend) UpdateEvent(ctx context.Context, accessToken, calendarID, eventID string, input EventInput) (*Event, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	svc, err := b.service(ctx, accessToken)
	if err != nil {
		return nil, ClassifyError(err)
	}

	existing, err := svc.Events.Get(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return nil, ClassifyError(err)
	}

	tz := input.TimeZone
	if tz == "" {
		tz = "UTC"
	}

	if input.Summary != "" {
		existing.Summary = input.Summary
	}
	if input.Description != "" {
		existing.Description = input.Description
	}
	if input.Location != "" {
		existing.Location = input.Location
	}
	if !input.Start.IsZero() {
		existing.Start = &calendar.EventDateTime{
			DateTime: input.Start.Format(time.RFC3339),
			TimeZone: tz,
		}
	}
	if !input.End.IsZero() {
		existing.End = &calendar.EventDateTime{
			DateTime: input.End.Format(time.RFC3339),
			TimeZone: tz,
		}
	}

	updated, err := svc.Events.Update(calendarID, eventID, existing).Context(ctx).Do()
	if err != nil {
		return nil, ClassifyError(err)
	}

	e := toEvent(updated)
	return &e, nil
}

// DeleteEvent removes an event.
func (b *GoogleBackend) DeleteEvent(ctx context.Context, accessToken, calendarID, eventID string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	svc, err := b.service(ctx, accessToken)
	if err != nil {
		return ClassifyError(err)
	}

	if err := svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return ClassifyError(err)
	}
	return nil
}
