package partner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busybee-app/busybee/models"
)

// fakeStore is an in-memory Store with scriptable failures.
type fakeStore struct {
	profiles map[string]*models.UserProfile

	addConnectionErr    map[string]error // keyed by userID whose side fails
	removeConnectionErr map[string]error
	getProfileErr       map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles:            make(map[string]*models.UserProfile),
		addConnectionErr:    make(map[string]error),
		removeConnectionErr: make(map[string]error),
		getProfileErr:       make(map[string]error),
	}
}

func (s *fakeStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	if err := s.getProfileErr[userID]; err != nil {
		return nil, err
	}
	profile, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	clone := *profile
	clone.ConnectedWith = append([]string{}, profile.ConnectedWith...)
	return &clone, nil
}

func (s *fakeStore) FindProfileByJoinCode(ctx context.Context, code string) (*models.UserProfile, error) {
	for id, profile := range s.profiles {
		if profile.JoinCode == code {
			return s.GetProfile(ctx, id)
		}
	}
	return nil, nil
}

func (s *fakeStore) SetJoinCode(ctx context.Context, userID, code string) error {
	profile, ok := s.profiles[userID]
	if !ok {
		return errors.New("no such profile")
	}
	profile.JoinCode = code
	return nil
}

func (s *fakeStore) AddConnection(ctx context.Context, userID, partnerID, partnerJoinCode string) error {
	if err := s.addConnectionErr[userID]; err != nil {
		return err
	}
	profile, ok := s.profiles[userID]
	if !ok {
		return errors.New("no such profile")
	}
	for _, id := range profile.ConnectedWith {
		if id == partnerID {
			return nil
		}
	}
	profile.ConnectedWith = append(profile.ConnectedWith, partnerID)
	return nil
}

func (s *fakeStore) RemoveConnection(ctx context.Context, userID, partnerID string) error {
	if err := s.removeConnectionErr[userID]; err != nil {
		return err
	}
	profile, ok := s.profiles[userID]
	if !ok {
		return nil
	}
	remaining := profile.ConnectedWith[:0]
	for _, id := range profile.ConnectedWith {
		if id != partnerID {
			remaining = append(remaining, id)
		}
	}
	profile.ConnectedWith = remaining
	return nil
}

func twoAccounts() *fakeStore {
	store := newFakeStore()
	store.profiles["alice"] = &models.UserProfile{ID: "alice", DisplayName: "Alice", JoinCode: "AAAAA"}
	store.profiles["bob"] = &models.UserProfile{ID: "bob", DisplayName: "Bob", JoinCode: "BBBBB"}
	return store
}

func TestConnectLinksBothSides(t *testing.T) {
	ctx := context.Background()
	store := twoAccounts()
	manager := NewManager(store, nil)

	target, err := manager.Connect(ctx, "alice", "bbbbb")
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, "bob", target.ID)

	assert.Equal(t, []string{"bob"}, store.profiles["alice"].ConnectedWith)
	assert.Equal(t, []string{"alice"}, store.profiles["bob"].ConnectedWith)
}

func TestConnectToleratesPartnerSideFailure(t *testing.T) {
	ctx := context.Background()
	store := twoAccounts()
	store.addConnectionErr["bob"] = errors.New("write failed")
	manager := NewManager(store, nil)

	// The partner-side write fails, but the caller still ends up connected.
	target, err := manager.Connect(ctx, "alice", "BBBBB")
	require.NoError(t, err)
	assert.Equal(t, "bob", target.ID)
	assert.Equal(t, []string{"bob"}, store.profiles["alice"].ConnectedWith)
	assert.Empty(t, store.profiles["bob"].ConnectedWith)
}

func TestConnectOwnSideFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	store := twoAccounts()
	store.addConnectionErr["alice"] = errors.New("write failed")
	manager := NewManager(store, nil)

	_, err := manager.Connect(ctx, "alice", "BBBBB")
	assert.Error(t, err)
	assert.Empty(t, store.profiles["alice"].ConnectedWith)
}

func TestConnectRejectsSelfCode(t *testing.T) {
	manager := NewManager(twoAccounts(), nil)

	_, err := manager.Connect(context.Background(), "alice", " aaaaa ")
	assert.ErrorIs(t, err, ErrSelfConnect)
}

func TestConnectRejectsUnknownCode(t *testing.T) {
	manager := NewManager(twoAccounts(), nil)

	_, err := manager.Connect(context.Background(), "alice", "ZZZZZ")
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestConnectRejectsEmptyCode(t *testing.T) {
	manager := NewManager(twoAccounts(), nil)

	_, err := manager.Connect(context.Background(), "alice", "   ")
	assert.ErrorIs(t, err, ErrEmptyCode)
}

func TestConnectRejectsWithoutSession(t *testing.T) {
	manager := NewManager(twoAccounts(), nil)

	_, err := manager.Connect(context.Background(), "", "BBBBB")
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestConnectRejectsDuplicateEitherDirection(t *testing.T) {
	ctx := context.Background()

	// Already connected from the caller's side.
	store := twoAccounts()
	store.profiles["alice"].ConnectedWith = []string{"bob"}
	_, err := NewManager(store, nil).Connect(ctx, "alice", "BBBBB")
	assert.ErrorIs(t, err, ErrAlreadyConnected)

	// A half-written link only on the partner's side still counts.
	store = twoAccounts()
	store.profiles["bob"].ConnectedWith = []string{"alice"}
	_, err = NewManager(store, nil).Connect(ctx, "alice", "BBBBB")
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestConnectSupportsMultiplePartners(t *testing.T) {
	ctx := context.Background()
	store := twoAccounts()
	store.profiles["carol"] = &models.UserProfile{ID: "carol", JoinCode: "CCCCC"}
	manager := NewManager(store, nil)

	_, err := manager.Connect(ctx, "alice", "BBBBB")
	require.NoError(t, err)
	_, err = manager.Connect(ctx, "alice", "CCCCC")
	require.NoError(t, err)

	// The second link appends, never clobbering the first.
	assert.Equal(t, []string{"bob", "carol"}, store.profiles["alice"].ConnectedWith)
}

func TestDisconnectClearsBothSides(t *testing.T) {
	ctx := context.Background()
	store := twoAccounts()
	store.profiles["alice"].ConnectedWith = []string{"bob"}
	store.profiles["bob"].ConnectedWith = []string{"alice"}
	manager := NewManager(store, nil)

	require.NoError(t, manager.Disconnect(ctx, "alice", "bob"))
	assert.Empty(t, store.profiles["alice"].ConnectedWith)
	assert.Empty(t, store.profiles["bob"].ConnectedWith)
}

func TestDisconnectToleratesPartnerSideFailure(t *testing.T) {
	ctx := context.Background()
	store := twoAccounts()
	store.profiles["alice"].ConnectedWith = []string{"bob"}
	store.profiles["bob"].ConnectedWith = []string{"alice"}
	store.removeConnectionErr["bob"] = errors.New("write failed")
	manager := NewManager(store, nil)

	require.NoError(t, manager.Disconnect(ctx, "alice", "bob"))
	assert.Empty(t, store.profiles["alice"].ConnectedWith)
}

func TestGenerateJoinCodeIdempotent(t *testing.T) {
	ctx := context.Background()
	store := twoAccounts()
	manager := NewManager(store, nil)

	code, err := manager.GenerateJoinCode(ctx, "alice", false)
	require.NoError(t, err)
	assert.Equal(t, "AAAAA", code)

	// Forced regeneration mints a fresh code.
	regenerated, err := manager.GenerateJoinCode(ctx, "alice", true)
	require.NoError(t, err)
	assert.NotEqual(t, "AAAAA", regenerated)
	assert.Len(t, regenerated, 5)
	assert.Equal(t, regenerated, store.profiles["alice"].JoinCode)
}

func TestGenerateJoinCodeMintsForNewAccount(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.profiles["dana"] = &models.UserProfile{ID: "dana"}
	manager := NewManager(store, nil)

	code, err := manager.GenerateJoinCode(ctx, "dana", false)
	require.NoError(t, err)
	assert.Len(t, code, 5)
	for _, r := range code {
		assert.Contains(t, codeAlphabet, string(r))
	}
}

func TestGenerateUniqueCodeExhaustion(t *testing.T) {
	alwaysTaken := func(ctx context.Context, code string) (bool, error) {
		return true, nil
	}

	_, err := GenerateUniqueCode(context.Background(), alwaysTaken)
	assert.Error(t, err)
}

func TestAggregatePartnerEventsSkipsMissingProfiles(t *testing.T) {
	ctx := context.Background()
	store := twoAccounts()
	store.profiles["alice"].ConnectedWith = []string{"bob", "ghost", "carol"}
	store.profiles["bob"].CalendarEvents = []models.CalendarEvent{
		{ID: "b1", Title: "Standup", Start: at(9, 0), End: at(9, 30)},
	}
	store.profiles["carol"] = &models.UserProfile{ID: "carol", Email: "carol@example.com"}
	store.getProfileErr["carol"] = errors.New("read failed")
	manager := NewManager(store, nil)

	schedules, err := manager.AggregatePartnerEvents(ctx, "alice")
	require.NoError(t, err)

	// Missing and unreadable partners are skipped, not fatal.
	require.Len(t, schedules, 1)
	assert.Equal(t, "bob", schedules[0].PartnerID)
	assert.Equal(t, "Bob", schedules[0].Label)
	require.Len(t, schedules[0].Events, 1)
}
