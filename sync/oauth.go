// ABOUTME: OAuth configuration and token management for the Google Calendar API
// ABOUTME: Handles token storage at XDG paths, expiry-margin checks, and refresh
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	stdsync "sync"
	"time"

	"github.com/adrg/xdg"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// tokenExpiryMargin is the safety window before expiry within which a token
// is no longer considered usable without refreshing first.
const tokenExpiryMargin = 30 * time.Second

// NewOAuthConfig creates the OAuth2 config for the Google Calendar API.
// Client credentials come from the environment (or a .env file loaded by main).
func NewOAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		RedirectURL:  "http://localhost:8080/oauth/callback",
		Scopes: []string{
			"https://www.googleapis.com/auth/calendar.readonly",
			"https://www.googleapis.com/auth/calendar.events",
		},
		Endpoint: google.Endpoint,
	}
}

// TokenPath returns the XDG-compliant path for storing OAuth tokens.
func TokenPath() string {
	return filepath.Join(xdg.DataHome, "busybee", "google-credentials.json")
}

// TokenStore owns the token lifecycle: persistence, the expiry-margin
// validity check, and single-flight refresh. Tokens authenticate the device
// session against the calendar API, independent of the profile identity.
type TokenStore struct {
	path   string
	config *oauth2.Config

	// Serializes refreshes so concurrent callers needing a token don't
	// race duplicate refresh grants against the token endpoint.
	mu stdsync.Mutex
}

// NewTokenStore creates a token store persisting at path.
func NewTokenStore(config *oauth2.Config, path string) *TokenStore {
	return &TokenStore{path: path, config: config}
}

// Save persists the token with restricted permissions. A refresh response
// that omits the refresh token keeps the previously stored one.
func (ts *TokenStore) Save(token *oauth2.Token) error {
	if existing, err := ts.Load(); err == nil && existing != nil && token.RefreshToken == "" {
		token.RefreshToken = existing.RefreshToken
	}

	dir := filepath.Dir(ts.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(ts.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	return nil
}

// Load reads the stored token. Returns nil, nil if no token has been saved.
func (ts *TokenStore) Load() (*oauth2.Token, error) {
	f, err := os.Open(ts.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var token oauth2.Token
	if err := json.NewDecoder(f).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}

	return &token, nil
}

// Clear removes the stored token, e.g. on sign-out.
func (ts *TokenStore) Clear() error {
	if err := os.Remove(ts.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// ValidToken returns a token usable right now: the stored one if it expires
// more than the safety margin from now, otherwise a freshly refreshed one.
// Returns nil, nil when no usable token exists; that is a normal condition
// (never linked, or refresh failed), not an error.
func (ts *TokenStore) ValidToken(ctx context.Context) (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	token, err := ts.Load()
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, nil
	}

	if token.Expiry.IsZero() || time.Until(token.Expiry) > tokenExpiryMargin {
		return token, nil
	}

	if token.RefreshToken == "" {
		return nil, nil
	}

	refreshed, err := ts.config.TokenSource(ctx, token).Token()
	if err != nil {
		// Refresh failure degrades to "no token available".
		return nil, nil
	}

	if err := ts.Save(refreshed); err != nil {
		return nil, err
	}
	return refreshed, nil
}

// TokenSource adapts the store to oauth2.TokenSource for API clients, so
// every outgoing call picks up a currently valid token.
func (ts *TokenStore) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &storeTokenSource{ctx: ctx, store: ts}
}

type storeTokenSource struct {
	ctx   context.Context
	store *TokenStore
}

func (s *storeTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.store.ValidToken(s.ctx)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, fmt.Errorf("no google token available")
	}
	return token, nil
}
