// ABOUTME: Event list persistence for user profiles
// ABOUTME: Full-replacement writes that preserve list order across round-trips
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/busybee-app/busybee/models"
)

// GetEvents returns the stored event list in its persisted order.
func (s *ProfileStore) GetEvents(ctx context.Context, userID string) ([]models.CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, title, description, start_time, end_time, source, calendar_id
		FROM user_events
		WHERE user_id = ?
		ORDER BY position
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []models.CalendarEvent
	for rows.Next() {
		var e models.CalendarEvent
		var description, calendarID sql.NullString

		if err := rows.Scan(&e.ID, &e.Title, &description, &e.Start, &e.End, &e.Source, &calendarID); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Description = description.String
		e.CalendarID = calendarID.String
		events = append(events, e)
	}

	return events, rows.Err()
}

// ReplaceEvents overwrites the user's entire event list in one transaction.
// The owning list is only ever mutated by full replacement; the position
// column preserves the caller's ordering so stable sorts survive storage.
func (s *ProfileStore) ReplaceEvents(ctx context.Context, userID string, events []models.CalendarEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // Safe even after commit
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_events WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear events: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO user_events (user_id, position, event_id, title, description, start_time, end_time, source, calendar_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, e := range events {
		e = e.Normalize()
		if _, err := stmt.ExecContext(ctx, userID, i, e.ID, e.Title, nullable(e.Description),
			e.Start.UTC(), e.End.UTC(), e.Source, nullable(e.CalendarID)); err != nil {
			return fmt.Errorf("failed to insert event %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}
