// ABOUTME: Profile repository over the users table
// ABOUTME: Get-by-id, field merges, join-code lookup, and profile deletion
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/busybee-app/busybee/models"
)

var ErrProfileNotFound = errors.New("profile not found")

// ProfileStore provides document-style access to user profiles: get by id,
// merge-style field updates, delete, and the join-code equality query.
// List-valued fields (events, calendars, connections) live in their own
// tables and are written by full replacement or append, never in place.
type ProfileStore struct {
	db *sql.DB
}

// NewProfileStore creates a profile store over an open database.
func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// CreateProfile inserts a new account. A blank id gets a generated one.
func (s *ProfileStore) CreateProfile(ctx context.Context, profile *models.UserProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, join_code, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, profile.ID, profile.Email, profile.DisplayName, nullable(profile.JoinCode), profile.LastSyncedAt, profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// GetProfile assembles the full profile document: account row, event list,
// calendar sources, and partner connections. Returns nil, nil when the
// account does not exist.
func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	profile := &models.UserProfile{}
	var email, displayName, joinCode sql.NullString
	var lastSyncedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, join_code, last_synced_at, created_at, updated_at
		FROM users WHERE id = ?
	`, userID).Scan(
		&profile.ID,
		&email,
		&displayName,
		&joinCode,
		&lastSyncedAt,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	profile.Email = email.String
	profile.DisplayName = displayName.String
	profile.JoinCode = joinCode.String
	if lastSyncedAt.Valid {
		t := lastSyncedAt.Time
		profile.LastSyncedAt = &t
	}

	if profile.CalendarEvents, err = s.GetEvents(ctx, userID); err != nil {
		return nil, err
	}
	if profile.Calendars, err = s.GetCalendars(ctx, userID); err != nil {
		return nil, err
	}
	if profile.ConnectedWith, err = s.ListConnections(ctx, userID); err != nil {
		return nil, err
	}

	return profile, nil
}

// FindProfileByJoinCode is the query-by-field-equality lookup used to
// resolve a partner account from a shared code. Returns nil, nil on no match.
func (s *ProfileStore) FindProfileByJoinCode(ctx context.Context, code string) (*models.UserProfile, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM users WHERE join_code = ?
	`, code).Scan(&userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query join code: %w", err)
	}
	return s.GetProfile(ctx, userID)
}

// SetJoinCode records the account's shareable code.
func (s *ProfileStore) SetJoinCode(ctx context.Context, userID, code string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET join_code = ?, updated_at = ? WHERE id = ?
	`, nullable(code), time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to set join code: %w", err)
	}
	return mustAffect(res)
}

// SetLastSyncedAt stamps the profile with the time of the last successful sync.
func (s *ProfileStore) SetLastSyncedAt(ctx context.Context, userID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_synced_at = ?, updated_at = ? WHERE id = ?
	`, at.UTC(), time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to set last synced at: %w", err)
	}
	return mustAffect(res)
}

// DeleteProfile removes the account and, via cascading deletes, its events,
// calendars, and connection rows.
func (s *ProfileStore) DeleteProfile(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // Safe even after commit
	}()

	for _, stmt := range []string{
		`DELETE FROM user_events WHERE user_id = ?`,
		`DELETE FROM user_calendars WHERE user_id = ?`,
		`DELETE FROM connections WHERE user_id = ? OR partner_id = ?`,
	} {
		args := []any{userID}
		if stmt == `DELETE FROM connections WHERE user_id = ? OR partner_id = ?` {
			args = append(args, userID)
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("failed to delete profile data: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}

	return tx.Commit()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProfileNotFound
	}
	return nil
}
