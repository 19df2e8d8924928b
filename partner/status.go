// ABOUTME: Free/busy status classifier and combined schedule construction
// ABOUTME: Derived views recomputed fresh from event lists, never cached
package partner

import (
	"fmt"
	"sort"
	"time"

	"github.com/busybee-app/busybee/models"
	"github.com/busybee-app/busybee/sync"
)

// DefaultCombinedLimit caps the combined view preview.
const DefaultCombinedLimit = 6

// clockFormat renders event boundaries for status messages.
const clockFormat = "3:04 PM"

// Status is the three-state free/busy classification of one partner.
type Status struct {
	State   string // models.StatusBusy or models.StatusFree
	Title   string // the event driving the classification, if any
	Message string
}

// DeriveStatus classifies a partner's schedule at a point in time. An event
// spanning now means busy until that event ends; otherwise the next upcoming
// event bounds the free window; with nothing scheduled the partner is free
// outright. The input list is cleaned first, so stale or duplicated stored
// events cannot skew the result.
func DeriveStatus(events []models.CalendarEvent, now time.Time) Status {
	cleaned := sync.CleanEvents(events, now)

	for _, event := range cleaned {
		if !event.Start.After(now) && event.End.After(now) {
			return Status{
				State:   models.StatusBusy,
				Title:   event.Title,
				Message: fmt.Sprintf("Busy with %s, free at %s", event.Title, event.End.Format(clockFormat)),
			}
		}
	}

	for _, event := range cleaned {
		if event.Start.After(now) {
			return Status{
				State:   models.StatusFree,
				Title:   event.Title,
				Message: fmt.Sprintf("Free, next up %s, busy at %s", event.Title, event.Start.Format(clockFormat)),
			}
		}
	}

	return Status{
		State:   models.StatusFree,
		Message: "Free all day. Enjoy the downtime!",
	}
}

// Event owner tags for the combined view.
const (
	OwnerSelf    = "self"
	OwnerPartner = "partner"
)

// OwnedEvent is a calendar event tagged with whose schedule it came from.
type OwnedEvent struct {
	models.CalendarEvent
	Owner     string
	PartnerID string // set when Owner is OwnerPartner
}

// FilterPartner narrows an aggregated schedule list to one partner, for the
// single-partner view scope. An unknown id yields an empty scope.
func FilterPartner(schedules []PartnerSchedule, partnerID string) []PartnerSchedule {
	for _, schedule := range schedules {
		if schedule.PartnerID == partnerID {
			return []PartnerSchedule{schedule}
		}
	}
	return nil
}

// CombinedSchedule merges the caller's own events with the given partner
// schedules into one preview list: deduplicated across sources by the shared
// composite key (own events win ties), future-or-ongoing only, sorted by
// start ascending, capped. A non-positive limit uses the default cap.
func CombinedSchedule(own []models.CalendarEvent, schedules []PartnerSchedule, now time.Time, limit int) []OwnedEvent {
	if limit <= 0 {
		limit = DefaultCombinedLimit
	}

	seen := make(map[string]struct{})
	combined := make([]OwnedEvent, 0, len(own))

	add := func(event models.CalendarEvent, owner, partnerID string) {
		if event.End.Before(now) {
			return
		}
		key := event.DedupKey()
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		combined = append(combined, OwnedEvent{
			CalendarEvent: event.Normalize(),
			Owner:         owner,
			PartnerID:     partnerID,
		})
	}

	for _, event := range own {
		add(event, OwnerSelf, "")
	}
	for _, schedule := range schedules {
		for _, event := range schedule.Events {
			add(event, OwnerPartner, schedule.PartnerID)
		}
	}

	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].Start.Before(combined[j].Start)
	})

	if len(combined) > limit {
		combined = combined[:limit]
	}
	return combined
}
