// ABOUTME: Event reconciliation primitives shared by load and sync paths
// ABOUTME: Dedup by composite key, end-time pruning, stable sort, source merging
package sync

import (
	"sort"
	"time"

	"github.com/busybee-app/busybee/models"
)

// DedupeEvents collapses events sharing a composite dedup key, keeping the
// first occurrence, and normalizes manual defaults on the survivors.
// Idempotent: applying it twice yields the same list as applying it once.
func DedupeEvents(events []models.CalendarEvent) []models.CalendarEvent {
	seen := make(map[string]struct{}, len(events))
	cleaned := make([]models.CalendarEvent, 0, len(events))
	for _, event := range events {
		key := event.DedupKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, event.Normalize())
	}
	return cleaned
}

// PruneEvents drops events whose window has fully elapsed: anything ending
// before now is gone, anything still running or upcoming stays. This is the
// one pruning policy, applied identically in the load and sync paths.
func PruneEvents(events []models.CalendarEvent, now time.Time) []models.CalendarEvent {
	kept := make([]models.CalendarEvent, 0, len(events))
	for _, event := range events {
		if event.End.Before(now) {
			continue
		}
		kept = append(kept, event)
	}
	return kept
}

// SortEventsByStart orders events chronologically. The sort is stable, so
// events sharing a start time keep their original relative order.
func SortEventsByStart(events []models.CalendarEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
}

// CleanEvents is the shared dedupe-prune-sort pipeline.
func CleanEvents(events []models.CalendarEvent, now time.Time) []models.CalendarEvent {
	cleaned := PruneEvents(DedupeEvents(events), now)
	SortEventsByStart(cleaned)
	return cleaned
}

// PartitionManualEvents keeps the manual entries from a stored list,
// normalized, and discards external ones; the remote system is the source
// of truth for external events and they are always re-fetched fresh.
func PartitionManualEvents(events []models.CalendarEvent) []models.CalendarEvent {
	manual := make([]models.CalendarEvent, 0, len(events))
	for _, event := range events {
		if event.Source == models.SourceGoogle {
			continue
		}
		manual = append(manual, event.Normalize())
	}
	return manual
}

// MergeCalendarSources reconciles the externally available calendars with
// the stored subscription list. A calendar that was already known keeps its
// stored Selected flag; a calendar seen for the first time defaults to its
// Primary designation, so the primary calendar is auto-subscribed on first
// sight while user choices survive every later sync.
func MergeCalendarSources(existing []models.CalendarSource, available []models.CalendarSource) []models.CalendarSource {
	known := make(map[string]models.CalendarSource, len(existing))
	for _, cal := range existing {
		known[cal.ID] = cal
	}

	merged := make([]models.CalendarSource, 0, len(available))
	for _, cal := range available {
		selected := cal.Primary
		if prev, ok := known[cal.ID]; ok {
			selected = prev.Selected
		}
		merged = append(merged, models.CalendarSource{
			ID:       cal.ID,
			Name:     cal.Name,
			Primary:  cal.Primary,
			Selected: selected,
		})
	}
	return merged
}
