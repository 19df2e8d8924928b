// ABOUTME: Calendar source subscriptions per user
// ABOUTME: Full-replacement writes that preserve the stored source order
package db

import (
	"context"
	"fmt"

	"github.com/busybee-app/busybee/models"
)

// GetCalendars returns the user's calendar sources in stored order.
func (s *ProfileStore) GetCalendars(ctx context.Context, userID string) ([]models.CalendarSource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT calendar_id, name, selected, is_primary
		FROM user_calendars
		WHERE user_id = ?
		ORDER BY position
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendars: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var calendars []models.CalendarSource
	for rows.Next() {
		var c models.CalendarSource
		if err := rows.Scan(&c.ID, &c.Name, &c.Selected, &c.Primary); err != nil {
			return nil, fmt.Errorf("failed to scan calendar: %w", err)
		}
		calendars = append(calendars, c)
	}

	return calendars, rows.Err()
}

// ReplaceCalendars overwrites the user's calendar source list in one transaction.
func (s *ProfileStore) ReplaceCalendars(ctx context.Context, userID string, calendars []models.CalendarSource) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // Safe even after commit
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_calendars WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear calendars: %w", err)
	}

	for i, c := range calendars {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_calendars (user_id, position, calendar_id, name, selected, is_primary)
			VALUES (?, ?, ?, ?, ?, ?)
		`, userID, i, c.ID, c.Name, c.Selected, c.Primary); err != nil {
			return fmt.Errorf("failed to insert calendar %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}
