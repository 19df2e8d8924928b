// ABOUTME: Partner connection manager linking accounts by join code
// ABOUTME: Connect, disconnect, and partner event aggregation with soft failures
package partner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/busybee-app/busybee/models"
)

// Connection failures surfaced to the user. These read as plain messages
// because they are shown verbatim; the operation is simply not performed and
// no state changes.
var (
	ErrNotSignedIn      = errors.New("please sign in first")
	ErrEmptyCode        = errors.New("enter a join code to connect")
	ErrSelfConnect      = errors.New("you cannot connect to your own join code")
	ErrCodeNotFound     = errors.New("no calendar found for that join code")
	ErrAlreadyConnected = errors.New("you are already connected to this calendar")
)

// Store is the slice of the document store the manager needs: profile
// lookup by id and by join code, code assignment, and link row maintenance.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	FindProfileByJoinCode(ctx context.Context, code string) (*models.UserProfile, error)
	SetJoinCode(ctx context.Context, userID, code string) error
	AddConnection(ctx context.Context, userID, partnerID, partnerJoinCode string) error
	RemoveConnection(ctx context.Context, userID, partnerID string) error
}

// Manager establishes, enumerates, and tears down symmetric links between
// accounts. Links are stored on both sides; the caller's own side must
// succeed, the partner's side is best-effort.
type Manager struct {
	store  Store
	logger *zap.Logger
}

// NewManager creates a connection manager over the given store.
func NewManager(store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, logger: logger}
}

// GenerateJoinCode returns the account's shareable code, minting and
// persisting one if the account has none. Idempotent: an existing code is
// returned as-is unless force is set.
func (m *Manager) GenerateJoinCode(ctx context.Context, userID string, force bool) (string, error) {
	if userID == "" {
		return "", ErrNotSignedIn
	}
	profile, err := m.store.GetProfile(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil {
		return "", ErrNotSignedIn
	}
	if profile.JoinCode != "" && !force {
		return profile.JoinCode, nil
	}

	code, err := GenerateUniqueCode(ctx, func(ctx context.Context, candidate string) (bool, error) {
		existing, err := m.store.FindProfileByJoinCode(ctx, candidate)
		if err != nil {
			return false, err
		}
		return existing != nil, nil
	})
	if err != nil {
		return "", err
	}

	if err := m.store.SetJoinCode(ctx, userID, code); err != nil {
		return "", fmt.Errorf("failed to persist join code: %w", err)
	}
	return code, nil
}

// Connect links the caller to the account owning the given join code. The
// link is written on both sides; a failure writing the partner's side is
// logged, not fatal, since the caller's own link already holds. Returns the
// partner's profile on success.
func (m *Manager) Connect(ctx context.Context, userID, code string) (*models.UserProfile, error) {
	if userID == "" {
		return nil, ErrNotSignedIn
	}
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrEmptyCode
	}

	own, err := m.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if own == nil {
		return nil, ErrNotSignedIn
	}
	if own.JoinCode != "" && own.JoinCode == code {
		return nil, ErrSelfConnect
	}

	target, err := m.store.FindProfileByJoinCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to look up join code: %w", err)
	}
	if target == nil {
		return nil, ErrCodeNotFound
	}
	if target.ID == userID {
		return nil, ErrSelfConnect
	}

	// Both directions are checked so a half-written link from an earlier
	// attempt still counts as connected.
	if own.ConnectedTo(target.ID) || target.ConnectedTo(userID) {
		return nil, ErrAlreadyConnected
	}

	if err := m.store.AddConnection(ctx, userID, target.ID, code); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := m.store.AddConnection(ctx, target.ID, userID, own.JoinCode); err != nil {
		m.logger.Warn("failed to write partner side of connection",
			zap.String("partner", target.ID), zap.Error(err))
	}

	return target, nil
}

// Disconnect removes the link to a partner from both sides. The caller's own
// side must succeed; the partner's side is best-effort logged.
func (m *Manager) Disconnect(ctx context.Context, userID, partnerID string) error {
	if userID == "" {
		return ErrNotSignedIn
	}
	if err := m.store.RemoveConnection(ctx, userID, partnerID); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	if err := m.store.RemoveConnection(ctx, partnerID, userID); err != nil {
		m.logger.Warn("failed to clear partner side of connection",
			zap.String("partner", partnerID), zap.Error(err))
	}
	return nil
}

// PartnerSchedule is one connected partner's profile slice used for display.
type PartnerSchedule struct {
	PartnerID string
	Label     string
	Events    []models.CalendarEvent
}

// AggregatePartnerEvents fetches every connected partner's stored event list.
// A partner whose profile is missing or unreadable is skipped with a log
// line, not an error; one broken link must not blank the whole view.
func (m *Manager) AggregatePartnerEvents(ctx context.Context, userID string) ([]PartnerSchedule, error) {
	if userID == "" {
		return nil, ErrNotSignedIn
	}
	own, err := m.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if own == nil {
		return nil, ErrNotSignedIn
	}

	schedules := make([]PartnerSchedule, 0, len(own.ConnectedWith))
	for _, partnerID := range own.ConnectedWith {
		profile, err := m.store.GetProfile(ctx, partnerID)
		if err != nil {
			m.logger.Warn("failed to load partner profile",
				zap.String("partner", partnerID), zap.Error(err))
			continue
		}
		if profile == nil {
			continue
		}
		schedules = append(schedules, PartnerSchedule{
			PartnerID: partnerID,
			Label:     profile.Label(),
			Events:    profile.CalendarEvents,
		})
	}
	return schedules, nil
}
