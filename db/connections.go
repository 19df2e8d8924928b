// ABOUTME: Partner connection rows between accounts
// ABOUTME: Append-only union semantics so concurrent links never clobber each other
package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Connection is one directed link row; the partner's join code is kept so
// a later disconnect can clear both identifiers.
type Connection struct {
	UserID          string
	PartnerID       string
	PartnerJoinCode string
}

// AddConnection appends a partner link. INSERT OR IGNORE gives array-union
// semantics: re-adding an existing partner is a no-op and never overwrites
// the rest of the list.
func (s *ProfileStore) AddConnection(ctx context.Context, userID, partnerID, partnerJoinCode string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO connections (user_id, partner_id, partner_join_code)
		VALUES (?, ?, ?)
	`, userID, partnerID, nullable(partnerJoinCode))
	if err != nil {
		return fmt.Errorf("failed to add connection: %w", err)
	}
	return nil
}

// RemoveConnection deletes the directed link from userID to partnerID.
// Removing a link that does not exist is not an error.
func (s *ProfileStore) RemoveConnection(ctx context.Context, userID, partnerID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM connections WHERE user_id = ? AND partner_id = ?
	`, userID, partnerID)
	if err != nil {
		return fmt.Errorf("failed to remove connection: %w", err)
	}
	return nil
}

// ListConnections returns the partner ids linked from this account, oldest first.
func (s *ProfileStore) ListConnections(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT partner_id FROM connections WHERE user_id = ? ORDER BY created_at, partner_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var partners []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		partners = append(partners, id)
	}

	return partners, rows.Err()
}

// GetConnection returns the stored link row, or nil when none exists.
func (s *ProfileStore) GetConnection(ctx context.Context, userID, partnerID string) (*Connection, error) {
	conn := &Connection{UserID: userID, PartnerID: partnerID}
	var code sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT partner_join_code FROM connections WHERE user_id = ? AND partner_id = ?
	`, userID, partnerID).Scan(&code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	conn.PartnerJoinCode = code.String
	return conn, nil
}
