// ABOUTME: Data models for BusyBee accounts and calendar data
// ABOUTME: Defines CalendarEvent, CalendarSource, UserProfile and dedup keys
package models

import (
	"fmt"
	"strings"
	"time"
)

// Event source constants.
const (
	SourceManual = "manual"
	SourceGoogle = "google"
)

// ManualCalendarID is the pseudo-calendar id for locally entered events.
const ManualCalendarID = "manual"

// DefaultEventTitle is used when an external event arrives without a summary.
const DefaultEventTitle = "BusyBee Event"

// CalendarEvent is a single scheduled event, either entered manually or
// pulled from a linked Google calendar.
type CalendarEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Source      string    `json:"source,omitempty"`
	CalendarID  string    `json:"calendar_id,omitempty"`
}

// DedupKey returns the composite identity used to collapse logically
// identical events arriving from different origins. Identity is not the id
// alone: different sources can mint different ids for the same event.
func (e CalendarEvent) DedupKey() string {
	calendarID := e.CalendarID
	if calendarID == "" {
		calendarID = ManualCalendarID
	}
	title := e.Title
	if title == "" {
		title = "untitled"
	}
	return fmt.Sprintf("%s-%s-%s-%s-%s",
		e.ID, stampKey(e.Start), stampKey(e.End), title, calendarID)
}

// Normalize fills missing source and calendar id with manual defaults.
func (e CalendarEvent) Normalize() CalendarEvent {
	if e.Source == "" {
		e.Source = SourceManual
	}
	if e.CalendarID == "" && e.Source == SourceManual {
		e.CalendarID = ManualCalendarID
	}
	return e
}

func stampKey(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(time.RFC3339)
}

// ParseStamp normalizes the timestamp shapes external sources hand us:
// RFC3339 date-times (with or without sub-second precision) and bare
// yyyy-mm-dd dates for all-day events. The result is always UTC.
func ParseStamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// CalendarSource is one external calendar the user can subscribe to.
// Selected is user-controlled; Primary reflects the external system's
// designation and only seeds Selected the first time a source is seen.
type CalendarSource struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Selected bool   `json:"selected"`
	Primary  bool   `json:"primary"`
}

// UserProfile is the durable document of record for one account.
type UserProfile struct {
	ID             string           `json:"id"`
	Email          string           `json:"email,omitempty"`
	DisplayName    string           `json:"display_name,omitempty"`
	JoinCode       string           `json:"join_code,omitempty"`
	ConnectedWith  []string         `json:"connected_with,omitempty"`
	CalendarEvents []CalendarEvent  `json:"calendar_events,omitempty"`
	Calendars      []CalendarSource `json:"calendars,omitempty"`
	LastSyncedAt   *time.Time       `json:"last_synced_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Label returns the best human-readable name for a profile:
// display name, then email, then the raw account id.
func (p *UserProfile) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Email != "" {
		return p.Email
	}
	return p.ID
}

// ConnectedTo reports whether partnerID is in the profile's partner list.
func (p *UserProfile) ConnectedTo(partnerID string) bool {
	for _, id := range p.ConnectedWith {
		if id == partnerID {
			return true
		}
	}
	return false
}

// Partner status states.
const (
	StatusBusy = "busy"
	StatusFree = "free"
)
