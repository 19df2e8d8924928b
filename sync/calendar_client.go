// ABOUTME: Calendar API client for Google Calendar integration
// ABOUTME: Lists calendars and upcoming events, creates and deletes events
package sync

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/busybee-app/busybee/models"
)

// maxUpcomingResults bounds how many upcoming events one source contributes
// per sync.
const maxUpcomingResults = 15

// CalendarAPI is the slice of the external calendar service the
// reconciliation engine consumes.
type CalendarAPI interface {
	// ListCalendars returns the calendars the user can subscribe to.
	ListCalendars(ctx context.Context) ([]models.CalendarSource, error)
	// ListUpcomingEvents returns upcoming events for one calendar, bounded,
	// chronological, with recurring events expanded into instances.
	ListUpcomingEvents(ctx context.Context, calendarID string) ([]models.CalendarEvent, error)
	// CreateEvent creates an event remotely and returns the assigned id.
	CreateEvent(ctx context.Context, calendarID string, event models.CalendarEvent) (string, error)
	// DeleteEvent removes an event by calendar id and event id.
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// GoogleCalendarClient implements CalendarAPI over the Google Calendar v3 API.
type GoogleCalendarClient struct {
	service *calendar.Service
	now     func() time.Time
}

// NewGoogleCalendarClient creates a calendar client whose requests
// authenticate through the given token source.
func NewGoogleCalendarClient(ctx context.Context, source oauth2.TokenSource) (*GoogleCalendarClient, error) {
	service, err := calendar.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &GoogleCalendarClient{service: service, now: time.Now}, nil
}

func (c *GoogleCalendarClient) ListCalendars(ctx context.Context) ([]models.CalendarSource, error) {
	list, err := c.service.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	sources := make([]models.CalendarSource, 0, len(list.Items))
	for _, item := range list.Items {
		name := item.Summary
		if name == "" {
			name = item.Id
		}
		sources = append(sources, models.CalendarSource{
			ID:      item.Id,
			Name:    name,
			Primary: item.Primary,
		})
	}
	return sources, nil
}

func (c *GoogleCalendarClient) ListUpcomingEvents(ctx context.Context, calendarID string) ([]models.CalendarEvent, error) {
	timeMin := c.now().UTC().Format(time.RFC3339)
	list, err := c.service.Events.List(calendarID).
		MaxResults(maxUpcomingResults).
		SingleEvents(true). // Expand recurring events
		OrderBy("startTime").
		TimeMin(timeMin).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list events for %s: %w", calendarID, err)
	}

	return MapGoogleEvents(list.Items, calendarID), nil
}

func (c *GoogleCalendarClient) CreateEvent(ctx context.Context, calendarID string, event models.CalendarEvent) (string, error) {
	created, err := c.service.Events.Insert(calendarID, &calendar.Event{
		Summary:     event.Title,
		Description: event.Description,
		Start:       &calendar.EventDateTime{DateTime: event.Start.UTC().Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: event.End.UTC().Format(time.RFC3339)},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create event: %w", err)
	}
	return created.Id, nil
}

func (c *GoogleCalendarClient) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if err := c.service.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete event %s: %w", eventID, err)
	}
	return nil
}

// MapGoogleEvents converts API items into the local event shape, tagging each
// with its owning calendar. Items without parseable times are dropped.
func MapGoogleEvents(items []*calendar.Event, calendarID string) []models.CalendarEvent {
	events := make([]models.CalendarEvent, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		start, ok := eventStamp(item.Start)
		if !ok {
			continue
		}
		end, ok := eventStamp(item.End)
		if !ok {
			continue
		}
		title := item.Summary
		if title == "" {
			title = models.DefaultEventTitle
		}
		events = append(events, models.CalendarEvent{
			ID:          item.Id,
			Title:       title,
			Description: item.Description,
			Start:       start,
			End:         end,
			Source:      models.SourceGoogle,
			CalendarID:  calendarID,
		})
	}
	return events
}

// eventStamp normalizes the two shapes the API uses: DateTime for timed
// events, Date for all-day events.
func eventStamp(edt *calendar.EventDateTime) (time.Time, bool) {
	if edt == nil {
		return time.Time{}, false
	}
	value := edt.DateTime
	if value == "" {
		value = edt.Date
	}
	t, err := models.ParseStamp(value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
