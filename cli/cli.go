// ABOUTME: Shared CLI wiring for engine and manager construction
// ABOUTME: Builds the reconciliation engine from the database and token store
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/busybee-app/busybee/db"
	"github.com/busybee-app/busybee/models"
	"github.com/busybee-app/busybee/partner"
	"github.com/busybee-app/busybee/sync"
)

// stampFormat renders event boundaries in command output.
const stampFormat = "2006-01-02 15:04"

func newLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// buildEngine wires a reconciliation engine for one account. When no OAuth
// token has been stored the engine comes up local-only: manual events work,
// external sync is a no-op until `auth init` runs.
func buildEngine(ctx context.Context, database *sql.DB, userID string, logger *zap.Logger) (*sync.Engine, error) {
	store := db.NewProfileStore(database)

	tokens := sync.NewTokenStore(sync.NewOAuthConfig(), sync.TokenPath())
	stored, err := tokens.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to read stored token: %w", err)
	}

	var api sync.CalendarAPI
	if stored != nil {
		client, err := sync.NewGoogleCalendarClient(ctx, tokens.TokenSource(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to create calendar client: %w", err)
		}
		api = client
	}

	return sync.NewEngine(userID, store, api, tokens, logger), nil
}

func newManager(database *sql.DB, logger *zap.Logger) *partner.Manager {
	return partner.NewManager(db.NewProfileStore(database), logger)
}

// requireProfile resolves an account id, failing with a readable message
// when the account does not exist.
func requireProfile(ctx context.Context, database *sql.DB, userID string) (*models.UserProfile, error) {
	if userID == "" {
		return nil, fmt.Errorf("--user is required")
	}
	profile, err := db.NewProfileStore(database).GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("no account found with id %s", userID)
	}
	return profile, nil
}

func formatStamp(t time.Time) string {
	return t.Local().Format(stampFormat)
}
