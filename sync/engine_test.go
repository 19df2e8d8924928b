package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/busybee-app/busybee/models"
)

// fakeProfileStore is an in-memory ProfileStore.
type fakeProfileStore struct {
	mu        stdsync.Mutex
	events    map[string][]models.CalendarEvent
	calendars map[string][]models.CalendarSource
	syncedAt  map[string]time.Time

	replaceEventsErr error
	eventWrites      int
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{
		events:    make(map[string][]models.CalendarEvent),
		calendars: make(map[string][]models.CalendarSource),
		syncedAt:  make(map[string]time.Time),
	}
}

func (s *fakeProfileStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &models.UserProfile{
		ID:             userID,
		CalendarEvents: append([]models.CalendarEvent{}, s.events[userID]...),
		Calendars:      append([]models.CalendarSource{}, s.calendars[userID]...),
	}, nil
}

func (s *fakeProfileStore) ReplaceEvents(ctx context.Context, userID string, events []models.CalendarEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceEventsErr != nil {
		return s.replaceEventsErr
	}
	s.eventWrites++
	s.events[userID] = append([]models.CalendarEvent{}, events...)
	return nil
}

func (s *fakeProfileStore) ReplaceCalendars(ctx context.Context, userID string, calendars []models.CalendarSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calendars[userID] = append([]models.CalendarSource{}, calendars...)
	return nil
}

func (s *fakeProfileStore) SetLastSyncedAt(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncedAt[userID] = at
	return nil
}

// fakeCalendarAPI is a scriptable CalendarAPI.
type fakeCalendarAPI struct {
	mu               stdsync.Mutex
	calendars        []models.CalendarSource
	eventsByCalendar map[string][]models.CalendarEvent

	listCalendarsErr error
	listEventsErr    error
	createErr        error
	createdID        string

	listCalendarCalls int
	listEventCalls    []string
	created           []models.CalendarEvent
	deleted           []string

	// When set, ListCalendars signals started and blocks until released.
	started chan struct{}
	release chan struct{}
}

func (a *fakeCalendarAPI) ListCalendars(ctx context.Context) ([]models.CalendarSource, error) {
	a.mu.Lock()
	a.listCalendarCalls++
	started, release := a.started, a.release
	a.mu.Unlock()
	if started != nil {
		started <- struct{}{}
		<-release
	}
	if a.listCalendarsErr != nil {
		return nil, a.listCalendarsErr
	}
	return append([]models.CalendarSource{}, a.calendars...), nil
}

func (a *fakeCalendarAPI) ListUpcomingEvents(ctx context.Context, calendarID string) ([]models.CalendarEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listEventCalls = append(a.listEventCalls, calendarID)
	if a.listEventsErr != nil {
		return nil, a.listEventsErr
	}
	return append([]models.CalendarEvent{}, a.eventsByCalendar[calendarID]...), nil
}

func (a *fakeCalendarAPI) CreateEvent(ctx context.Context, calendarID string, event models.CalendarEvent) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.createErr != nil {
		return "", a.createErr
	}
	a.created = append(a.created, event)
	return a.createdID, nil
}

func (a *fakeCalendarAPI) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, calendarID+"/"+eventID)
	return nil
}

// fakeTokens hands out a static token, or nothing.
type fakeTokens struct {
	token *oauth2.Token
}

func (f *fakeTokens) ValidToken(ctx context.Context) (*oauth2.Token, error) {
	return f.token, nil
}

func linkedTokens() *fakeTokens {
	return &fakeTokens{token: &oauth2.Token{AccessToken: "tok", Expiry: time.Now().Add(time.Hour)}}
}

func testEngine(store ProfileStore, api CalendarAPI, tokens TokenProvider) *Engine {
	e := NewEngine("user-1", store, api, tokens, nil)
	e.now = func() time.Time { return at(8, 0) }
	return e
}

func TestLoadSelfHealing(t *testing.T) {
	ctx := context.Background()
	store := newFakeProfileStore()
	store.events["user-1"] = []models.CalendarEvent{
		{ID: "m1", Title: "Gym", Start: at(10, 0), End: at(11, 0)},
		{ID: "m1", Title: "Gym", Start: at(10, 0), End: at(11, 0)},
		{ID: "old", Title: "Yesterday", Start: at(5, 0), End: at(6, 0)},
	}

	engine := testEngine(store, nil, nil)
	require.NoError(t, engine.Load(ctx))

	events := engine.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "m1", events[0].ID)

	// The cleaned list was written back to the store.
	assert.Equal(t, 1, store.eventWrites)
	assert.Len(t, store.events["user-1"], 1)
}

func TestLoadNoSessionEmptiesState(t *testing.T) {
	engine := NewEngine("", newFakeProfileStore(), nil, nil, nil)
	require.NoError(t, engine.Load(context.Background()))
	assert.Empty(t, engine.Events())
}

func TestSyncMergesManualAndGoogle(t *testing.T) {
	ctx := context.Background()
	store := newFakeProfileStore()
	store.events["user-1"] = []models.CalendarEvent{
		{ID: "m1", Title: "Gym", Start: at(10, 0), End: at(11, 0)},
	}
	api := &fakeCalendarAPI{
		calendars: []models.CalendarSource{{ID: "primary", Name: "Bee", Primary: true}},
		eventsByCalendar: map[string][]models.CalendarEvent{
			"primary": {{ID: "g1", Title: "Standup", Start: at(9, 0), End: at(9, 30), Source: models.SourceGoogle, CalendarID: "primary"}},
		},
	}

	engine := testEngine(store, api, linkedTokens())
	require.NoError(t, engine.SyncExternalEvents(ctx, nil))

	events := engine.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "Standup", events[0].Title)
	assert.Equal(t, "Gym", events[1].Title)

	// Primary calendar auto-subscribed and persisted.
	calendars := engine.Calendars()
	require.Len(t, calendars, 1)
	assert.True(t, calendars[0].Selected)

	// Sync timestamp recorded.
	assert.False(t, store.syncedAt["user-1"].IsZero())
}

func TestSyncWithoutTokenIsSilentNoop(t *testing.T) {
	store := newFakeProfileStore()
	api := &fakeCalendarAPI{}

	engine := testEngine(store, api, &fakeTokens{})
	require.NoError(t, engine.SyncExternalEvents(context.Background(), nil))

	assert.Zero(t, api.listCalendarCalls)
	assert.Zero(t, store.eventWrites)
}

func TestSyncFailureKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	store := newFakeProfileStore()
	store.events["user-1"] = []models.CalendarEvent{
		{ID: "m1", Title: "Gym", Start: at(10, 0), End: at(11, 0)},
	}

	engine := testEngine(store, nil, nil)
	require.NoError(t, engine.Load(ctx))
	require.Len(t, engine.Events(), 1)

	api := &fakeCalendarAPI{
		calendars:     []models.CalendarSource{{ID: "primary", Name: "Bee", Primary: true}},
		listEventsErr: errors.New("boom"),
	}
	engine.api = api
	engine.tokens = linkedTokens()

	err := engine.SyncExternalEvents(ctx, nil)
	assert.Error(t, err)

	// Previous working state untouched.
	events := engine.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "Gym", events[0].Title)
}

func TestSyncConcurrentRequestDropped(t *testing.T) {
	ctx := context.Background()
	store := newFakeProfileStore()
	api := &fakeCalendarAPI{
		calendars: []models.CalendarSource{{ID: "primary", Name: "Bee", Primary: true}},
		started:   make(chan struct{}, 1),
		release:   make(chan struct{}),
	}

	engine := testEngine(store, api, linkedTokens())

	done := make(chan error, 1)
	go func() { done <- engine.SyncExternalEvents(ctx, nil) }()
	<-api.started

	// Second request while the first is in flight returns immediately
	// without touching the API.
	require.NoError(t, engine.SyncExternalEvents(ctx, nil))
	assert.Equal(t, 1, api.listCalendarCalls)

	close(api.release)
	require.NoError(t, <-done)
}

func TestToggleDeselectingOnlyCalendar(t *testing.T) {
	ctx := context.Background()
	store := newFakeProfileStore()
	store.events["user-1"] = []models.CalendarEvent{
		{ID: "m1", Title: "Gym", Start: at(10, 0), End: at(11, 0), Source: models.SourceManual, CalendarID: models.ManualCalendarID},
		{ID: "g1", Title: "Standup", Start: at(9, 0), End: at(9, 30), Source: models.SourceGoogle, CalendarID: "primary"},
	}
	store.calendars["user-1"] = []models.CalendarSource{
		{ID: "primary", Name: "Bee", Selected: true, Primary: true},
	}
	api := &fakeCalendarAPI{
		calendars: []models.CalendarSource{{ID: "primary", Name: "Bee", Primary: true}},
		eventsByCalendar: map[string][]models.CalendarEvent{
			"primary": {{ID: "g1", Title: "Standup", Start: at(9, 0), End: at(9, 30), Source: models.SourceGoogle, CalendarID: "primary"}},
		},
	}

	engine := testEngine(store, api, linkedTokens())
	require.NoError(t, engine.ToggleCalendarSource(ctx, "primary"))

	// The deselected calendar contributes nothing; manual events remain.
	events := engine.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "Gym", events[0].Title)
	assert.Empty(t, api.listEventCalls)

	calendars := engine.Calendars()
	require.Len(t, calendars, 1)
	assert.False(t, calendars[0].Selected)
}

func TestToggleUnknownCalendar(t *testing.T) {
	store := newFakeProfileStore()
	engine := testEngine(store, &fakeCalendarAPI{}, linkedTokens())

	err := engine.ToggleCalendarSource(context.Background(), "nope")
	assert.Error(t, err)
}

func TestAddEventRemoteCreate(t *testing.T) {
	ctx := context.Background()
	store := newFakeProfileStore()
	api := &fakeCalendarAPI{
		createdID: "remote-1",
		calendars: []models.CalendarSource{{ID: "work", Name: "Work"}},
	}

	engine := testEngine(store, api, linkedTokens())
	event, err := engine.AddEvent(ctx, EventInput{
		Title:      "Planning",
		Start:      at(14, 0),
		End:        at(15, 0),
		CalendarID: "work",
	})
	require.NoError(t, err)

	// Remote-assigned id wins; the event is tagged as external.
	assert.Equal(t, "remote-1", event.ID)
	assert.Equal(t, models.SourceGoogle, event.Source)
	require.Len(t, api.created, 1)

	// A full resync was triggered to reconcile against server truth.
	assert.Equal(t, 1, api.listCalendarCalls)
}

func TestAddEventRemoteFailureFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	store := newFakeProfileStore()
	api := &fakeCalendarAPI{createErr: errors.New("quota")}

	engine := testEngine(store, api, linkedTokens())
	event, err := engine.AddEvent(ctx, EventInput{
		Title:      "Planning",
		Start:      at(14, 0),
		End:        at(15, 0),
		CalendarID: "work",
	})
	require.NoError(t, err)

	// The user's input is not lost: a local id is minted and the event is
	// kept as a manual entry.
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, models.SourceManual, event.Source)
	assert.Equal(t, models.ManualCalendarID, event.CalendarID)

	stored := store.events["user-1"]
	require.Len(t, stored, 1)
	assert.Equal(t, "Planning", stored[0].Title)
}

func TestAddEventManualSkipsRemote(t *testing.T) {
	ctx := context.Background()
	store := newFakeProfileStore()
	api := &fakeCalendarAPI{}

	engine := testEngine(store, api, linkedTokens())
	event, err := engine.AddEvent(ctx, EventInput{
		Title: "Gym",
		Start: at(10, 0),
		End:   at(11, 0),
	})
	require.NoError(t, err)

	assert.Equal(t, models.SourceManual, event.Source)
	assert.Empty(t, api.created)
}

func TestRemoveManualEventNoRemoteDelete(t *testing.T) {
	ctx := context.Background()
	store := newFakeProfileStore()
	store.events["user-1"] = []models.CalendarEvent{
		{ID: "m1", Title: "Gym", Start: at(10, 0), End: at(11, 0), Source: models.SourceManual, CalendarID: models.ManualCalendarID},
	}
	api := &fakeCalendarAPI{}

	engine := testEngine(store, api, linkedTokens())
	require.NoError(t, engine.Load(ctx))

	event := engine.Events()[0]
	require.NoError(t, engine.RemoveEvent(ctx, event))

	assert.Empty(t, engine.Events())
	assert.Empty(t, api.deleted)
}

func TestRemoveGoogleEventAttemptsRemoteDelete(t *testing.T) {
	ctx := context.Background()
	store := newFakeProfileStore()
	store.events["user-1"] = []models.CalendarEvent{
		{ID: "g1", Title: "Standup", Start: at(9, 0), End: at(9, 30), Source: models.SourceGoogle, CalendarID: "work"},
	}
	api := &fakeCalendarAPI{}

	engine := testEngine(store, api, linkedTokens())
	require.NoError(t, engine.Load(ctx))

	event := engine.Events()[0]
	require.NoError(t, engine.RemoveEvent(ctx, event))

	assert.Empty(t, engine.Events())
	assert.Equal(t, []string{"work/g1"}, api.deleted)
}

func TestRunStopsOnCancel(t *testing.T) {
	store := newFakeProfileStore()
	engine := testEngine(store, &fakeCalendarAPI{}, &fakeTokens{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine did not stop after cancellation")
	}
}
