// ABOUTME: Event reconciliation engine merging manual and external events
// ABOUTME: Owns load, add, remove, toggle, and the guarded periodic sync cycle
package sync

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/busybee-app/busybee/models"
)

// DefaultSyncInterval is how often the periodic sync runs while a session
// is active.
const DefaultSyncInterval = 60 * time.Second

// ErrNoSession is returned by mutating operations when the engine has no
// signed-in user bound to it.
var ErrNoSession = errors.New("no signed-in user")

// ProfileStore is the slice of the document store the engine needs.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	ReplaceEvents(ctx context.Context, userID string, events []models.CalendarEvent) error
	ReplaceCalendars(ctx context.Context, userID string, calendars []models.CalendarSource) error
	SetLastSyncedAt(ctx context.Context, userID string, at time.Time) error
}

// TokenProvider supplies a currently valid access token, or nil when the
// session has none; the engine never mutates tokens itself.
type TokenProvider interface {
	ValidToken(ctx context.Context) (*oauth2.Token, error)
}

// EventInput is the caller-supplied shape for a new event.
type EventInput struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	CalendarID  string
}

// Engine produces and maintains the deduplicated, chronologically ordered
// event list for one session, reconciling manual entries with events pulled
// from the subscribed external calendars.
type Engine struct {
	userID string
	store  ProfileStore
	api    CalendarAPI
	tokens TokenProvider
	logger *zap.Logger
	now    func() time.Time

	// mu serializes mutations and guards the working copies; syncing is the
	// in-flight guard for the sync routine (concurrent requests are dropped,
	// not queued).
	mu        stdsync.Mutex
	events    []models.CalendarEvent
	calendars []models.CalendarSource
	syncing   atomic.Bool
}

// NewEngine binds an engine to one session. The session is explicit: it is
// created on sign-in and discarded on sign-out, never read from ambient
// state. tokens and api may be nil for accounts with no external link;
// every remote operation then degrades to local-only behavior.
func NewEngine(userID string, store ProfileStore, api CalendarAPI, tokens TokenProvider, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		userID: userID,
		store:  store,
		api:    api,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

// Events returns a copy of the current working event list.
func (e *Engine) Events() []models.CalendarEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.CalendarEvent, len(e.events))
	copy(out, e.events)
	return out
}

// Calendars returns a copy of the current working source list.
func (e *Engine) Calendars() []models.CalendarSource {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.CalendarSource, len(e.calendars))
	copy(out, e.calendars)
	return out
}

// Load fetches the profile document, cleans the stored events, and writes
// the cleaned list back if it differs from what was stored (self-healing).
// With no session the working state is simply emptied.
func (e *Engine) Load(ctx context.Context) error {
	if e.userID == "" {
		e.setState(nil, nil)
		return nil
	}

	profile, err := e.store.GetProfile(ctx, e.userID)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil {
		e.setState(nil, nil)
		return nil
	}

	cleaned := CleanEvents(profile.CalendarEvents, e.now())
	if len(cleaned) != len(profile.CalendarEvents) {
		if err := e.store.ReplaceEvents(ctx, e.userID, cleaned); err != nil {
			return fmt.Errorf("failed to write back cleaned events: %w", err)
		}
	}

	e.setState(cleaned, profile.Calendars)
	return nil
}

// AddEvent constructs a new event. When the target calendar is a real
// external source and a valid token is available, the event is created
// remotely first so the remote-assigned id becomes the local id; a remote
// failure is logged and the event falls back to a locally minted id as a
// manual entry, so the user's input is never lost. The persisted list is
// then reconciled against server truth by a full resync.
func (e *Engine) AddEvent(ctx context.Context, input EventInput) (models.CalendarEvent, error) {
	if e.userID == "" {
		return models.CalendarEvent{}, ErrNoSession
	}

	event := models.CalendarEvent{
		Title:       input.Title,
		Description: input.Description,
		Start:       input.Start.UTC(),
		End:         input.End.UTC(),
		Source:      models.SourceManual,
		CalendarID:  input.CalendarID,
	}
	if event.CalendarID == "" {
		event.CalendarID = models.ManualCalendarID
	}

	if event.CalendarID != models.ManualCalendarID && e.api != nil {
		if token := e.validToken(ctx); token != nil {
			remoteID, err := e.api.CreateEvent(ctx, event.CalendarID, event)
			if err != nil {
				e.logger.Warn("remote event creation failed, keeping event locally",
					zap.String("calendar", event.CalendarID), zap.Error(err))
				event.CalendarID = models.ManualCalendarID
			} else {
				event.ID = remoteID
				event.Source = models.SourceGoogle
			}
		}
	}
	if event.ID == "" {
		event.ID = newEventID()
	}

	e.mu.Lock()
	merged := CleanEvents(append(append([]models.CalendarEvent{}, e.events...), event), e.now())
	err := e.store.ReplaceEvents(ctx, e.userID, merged)
	if err == nil {
		e.events = merged
	}
	e.mu.Unlock()
	if err != nil {
		return models.CalendarEvent{}, fmt.Errorf("failed to persist events: %w", err)
	}

	// Reconcile optimistic local state against server-side truth.
	if err := e.SyncExternalEvents(ctx, nil); err != nil {
		e.logger.Warn("post-add sync failed", zap.Error(err))
	}
	return event, nil
}

// RemoveEvent removes an event by id from the working list and persists the
// reduced list. Only events that came from an external calendar get a
// best-effort remote delete; its failure is logged, not surfaced, since the
// local removal already succeeded. Finishes with a fresh Load.
func (e *Engine) RemoveEvent(ctx context.Context, event models.CalendarEvent) error {
	if e.userID == "" {
		return ErrNoSession
	}

	e.mu.Lock()
	remaining := make([]models.CalendarEvent, 0, len(e.events))
	for _, existing := range e.events {
		if existing.ID == event.ID {
			continue
		}
		remaining = append(remaining, existing)
	}
	err := e.store.ReplaceEvents(ctx, e.userID, remaining)
	if err == nil {
		e.events = remaining
	}
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to persist events: %w", err)
	}

	if event.Source == models.SourceGoogle && event.CalendarID != "" && event.CalendarID != models.ManualCalendarID && e.api != nil {
		if token := e.validToken(ctx); token != nil {
			if err := e.api.DeleteEvent(ctx, event.CalendarID, event.ID); err != nil {
				e.logger.Warn("remote event deletion failed",
					zap.String("event", event.ID), zap.Error(err))
			}
		}
	}

	return e.Load(ctx)
}

// SyncExternalEvents runs the pull-merge-persist cycle. A request arriving
// while a sync is in flight is dropped, not queued; the next periodic tick
// will pick up whatever it missed. Any failure leaves the previous working
// state untouched.
func (e *Engine) SyncExternalEvents(ctx context.Context, overrideSources []models.CalendarSource) error {
	if e.userID == "" || e.api == nil {
		return nil
	}
	if !e.syncing.CompareAndSwap(false, true) {
		return nil
	}
	defer e.syncing.Store(false)

	// No usable token is a normal condition, not an error: the account may
	// simply have no external calendar linked.
	if token := e.validToken(ctx); token == nil {
		return nil
	}

	available, profile, err := e.fetchRemoteState(ctx)
	if err != nil {
		e.logger.Warn("calendar sync failed", zap.Error(err))
		return err
	}
	if profile == nil {
		return nil
	}

	existingSources := profile.Calendars
	if overrideSources != nil {
		existingSources = overrideSources
	}
	mergedSources := MergeCalendarSources(existingSources, available)

	// Manual entries are kept as-is; stored external events are discarded
	// and re-fetched fresh, since the remote system owns them.
	merged := PartitionManualEvents(profile.CalendarEvents)
	for _, source := range mergedSources {
		if !source.Selected {
			continue
		}
		fetched, err := e.api.ListUpcomingEvents(ctx, source.ID)
		if err != nil {
			e.logger.Warn("calendar sync failed",
				zap.String("calendar", source.ID), zap.Error(err))
			return err
		}
		merged = append(merged, fetched...)
	}

	cleaned := CleanEvents(merged, e.now())

	if err := e.store.ReplaceEvents(ctx, e.userID, cleaned); err != nil {
		e.logger.Warn("calendar sync failed", zap.Error(err))
		return err
	}
	if err := e.store.ReplaceCalendars(ctx, e.userID, mergedSources); err != nil {
		e.logger.Warn("calendar sync failed", zap.Error(err))
		return err
	}
	if err := e.store.SetLastSyncedAt(ctx, e.userID, e.now()); err != nil {
		e.logger.Warn("failed to stamp sync time", zap.Error(err))
	}

	e.setState(cleaned, mergedSources)
	e.logger.Info("calendar sync complete",
		zap.Int("events", len(cleaned)), zap.Int("calendars", len(mergedSources)))
	return nil
}

// ToggleCalendarSource flips one source's subscription flag, persists the
// updated source list immediately, then syncs with the updated selection so
// the merged event list reflects it without waiting for the periodic timer.
// The write payload is re-derived from the store just before writing.
func (e *Engine) ToggleCalendarSource(ctx context.Context, calendarID string) error {
	if e.userID == "" {
		return ErrNoSession
	}

	e.mu.Lock()
	profile, err := e.store.GetProfile(ctx, e.userID)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("failed to load profile: %w", err)
	}
	var updated []models.CalendarSource
	if profile != nil {
		updated = make([]models.CalendarSource, len(profile.Calendars))
		copy(updated, profile.Calendars)
	}
	found := false
	for i := range updated {
		if updated[i].ID == calendarID {
			updated[i].Selected = !updated[i].Selected
			found = true
		}
	}
	if !found {
		e.mu.Unlock()
		return fmt.Errorf("unknown calendar %q", calendarID)
	}
	if err := e.store.ReplaceCalendars(ctx, e.userID, updated); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("failed to persist calendars: %w", err)
	}
	e.calendars = updated
	e.mu.Unlock()

	return e.SyncExternalEvents(ctx, updated)
}

// Run performs one immediate sync and then re-syncs on a fixed interval
// until the context is cancelled. Cancellation stops the schedule
// deterministically; a sync already in flight is allowed to finish.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}

	if err := e.SyncExternalEvents(ctx, nil); err != nil {
		e.logger.Warn("initial sync failed", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.SyncExternalEvents(ctx, nil); err != nil {
				e.logger.Warn("periodic sync failed", zap.Error(err))
			}
		}
	}
}

// fetchRemoteState loads the available calendar list and the profile
// document concurrently.
func (e *Engine) fetchRemoteState(ctx context.Context) ([]models.CalendarSource, *models.UserProfile, error) {
	var (
		wg        stdsync.WaitGroup
		available []models.CalendarSource
		profile   *models.UserProfile
		calErr    error
		profErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		available, calErr = e.api.ListCalendars(ctx)
	}()
	go func() {
		defer wg.Done()
		profile, profErr = e.store.GetProfile(ctx, e.userID)
	}()
	wg.Wait()

	if calErr != nil {
		return nil, nil, calErr
	}
	if profErr != nil {
		return nil, nil, profErr
	}
	return available, profile, nil
}

// validToken asks the provider for a usable token, treating provider errors
// as "no token" (soft).
func (e *Engine) validToken(ctx context.Context) *oauth2.Token {
	if e.tokens == nil {
		return nil
	}
	token, err := e.tokens.ValidToken(ctx)
	if err != nil {
		e.logger.Warn("token lookup failed", zap.Error(err))
		return nil
	}
	return token
}

func (e *Engine) setState(events []models.CalendarEvent, calendars []models.CalendarSource) {
	e.mu.Lock()
	e.events = events
	e.calendars = calendars
	e.mu.Unlock()
}

func newEventID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
