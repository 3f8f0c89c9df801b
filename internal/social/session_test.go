package social

import (
	"bitbucket.org/sotavant/cloudcord-client/internal/api"
	"bitbucket.org/sotavant/cloudcord-client/internal/api/mock"
	"bitbucket.org/sotavant/cloudcord-client/internal/models"
	"context"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRoster = []models.User{
	{ID: 1, Auth0ID: "auth0|alice", Username: "Alice"},
	{ID: 2, Auth0ID: "auth0|bob", Username: "Bob"},
	{ID: 3, Auth0ID: "auth0|charlie", Username: "Charlie"},
}

func newTestSession(t *testing.T) (*mock.MockGateway, *Session) {
	t.Helper()

	ctrl := gomock.NewController(t)
	gw := mock.NewMockGateway(ctrl)

	return gw, NewSession(gw, "auth0|alice", 4)
}

func expectRefresh(gw *mock.MockGateway, friends map[uint64]bool) {
	gw.EXPECT().ListUsers(gomock.Any()).Return(testRoster, nil)
	for peer, areFriends := range friends {
		gw.EXPECT().IsFriend(gomock.Any(), uint64(1), peer).Return(areFriends, nil)
	}
}

func TestRefreshResolvesStatuses(t *testing.T) {
	gw, s := newTestSession(t)

	gw.EXPECT().ResolveIdentity(gomock.Any(), "auth0|alice").Return(uint64(1), nil)
	expectRefresh(gw, map[uint64]bool{2: true, 3: false})

	require.NoError(t, s.Refresh(context.Background()))

	users, statuses, ok := s.Roster()
	require.True(t, ok)
	assert.Len(t, users, 3)

	// self is excluded, every peer is resolved past unknown
	assert.NotContains(t, statuses, uint64(1))
	assert.Equal(t, models.StatusFriend, statuses[2])
	assert.Equal(t, models.StatusNotFriend, statuses[3])
}

func TestRefreshResolvesIdentityOnce(t *testing.T) {
	gw, s := newTestSession(t)

	gw.EXPECT().ResolveIdentity(gomock.Any(), "auth0|alice").Return(uint64(1), nil).Times(1)
	expectRefresh(gw, map[uint64]bool{2: false, 3: false})
	expectRefresh(gw, map[uint64]bool{2: false, 3: false})

	require.NoError(t, s.Refresh(context.Background()))
	require.NoError(t, s.Refresh(context.Background()))
}

func TestRefreshPeerCheckFailureDegrades(t *testing.T) {
	gw, s := newTestSession(t)

	roster := []models.User{
		{ID: 1, Username: "Alice"},
		{ID: 2, Username: "Bob"},
	}

	gw.EXPECT().ResolveIdentity(gomock.Any(), "auth0|alice").Return(uint64(1), nil)
	gw.EXPECT().ListUsers(gomock.Any()).Return(roster, nil)
	gw.EXPECT().IsFriend(gomock.Any(), uint64(1), uint64(2)).Return(false, api.ErrUnavailable)

	require.NoError(t, s.Refresh(context.Background()), "per-peer failure must not fail the batch")

	_, statuses, ok := s.Roster()
	require.True(t, ok)
	assert.Equal(t, models.StatusNotFriend, statuses[2], "failed check degrades to not_friend, never unknown")
}

func TestRefreshRosterUnavailable(t *testing.T) {
	gw, s := newTestSession(t)

	gw.EXPECT().ResolveIdentity(gomock.Any(), "auth0|alice").Return(uint64(1), nil)
	gw.EXPECT().ListUsers(gomock.Any()).Return(nil, api.ErrUnavailable)

	err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, api.ErrUnavailable)

	_, _, ok := s.Roster()
	assert.False(t, ok, "an unavailable roster must not read as an empty roster")
}

func TestFriendStatusMonotonic(t *testing.T) {
	gw, s := newTestSession(t)

	gw.EXPECT().ResolveIdentity(gomock.Any(), "auth0|alice").Return(uint64(1), nil)
	expectRefresh(gw, map[uint64]bool{2: true, 3: false})
	require.NoError(t, s.Refresh(context.Background()))

	// a later run reporting not_friend (stale read, failed check) must not win
	gw.EXPECT().ListUsers(gomock.Any()).Return(testRoster, nil)
	gw.EXPECT().IsFriend(gomock.Any(), uint64(1), uint64(2)).Return(false, nil)
	gw.EXPECT().IsFriend(gomock.Any(), uint64(1), uint64(3)).Return(false, nil)
	require.NoError(t, s.Refresh(context.Background()))

	assert.Equal(t, models.StatusFriend, s.Status(2))
}

func TestStaleRefreshDiscarded(t *testing.T) {
	gw, s := newTestSession(t)

	gw.EXPECT().ResolveIdentity(gomock.Any(), "auth0|alice").Return(uint64(1), nil)
	gw.EXPECT().ListUsers(gomock.Any()).DoAndReturn(func(_ context.Context) ([]models.User, error) {
		s.Invalidate() // logout while the refresh is in flight
		return testRoster, nil
	})
	gw.EXPECT().IsFriend(gomock.Any(), uint64(1), gomock.Any()).Return(false, nil).AnyTimes()

	err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrStaleSession)

	_, _, ok := s.Roster()
	assert.False(t, ok, "results issued for an ended session must be discarded")
}

func TestAddFriendReconciles(t *testing.T) {
	gw, s := newTestSession(t)

	gw.EXPECT().ResolveIdentity(gomock.Any(), "auth0|alice").Return(uint64(1), nil)
	expectRefresh(gw, map[uint64]bool{2: false, 3: false})
	require.NoError(t, s.Refresh(context.Background()))

	recs := []models.Candidate{{ID: 2, Username: "Bob"}, {ID: 4, Username: "Dave"}}
	gw.EXPECT().Recommendations(gomock.Any(), uint64(1)).Return(recs, nil)
	require.NoError(t, s.SetView(context.Background(), models.ViewRecommendations))

	gw.EXPECT().AddFriend(gomock.Any(), uint64(1), uint64(2)).Return(nil)
	gw.EXPECT().NotifyFriendAdded(gomock.Any(), uint64(1), uint64(2)).Return(api.ErrUnavailable)

	require.NoError(t, s.AddFriend(context.Background(), 2), "notification failure must not surface")

	assert.Equal(t, models.StatusFriend, s.Status(2))

	got, _ := s.Recommendations()
	require.Len(t, got, 1, "a committed friend leaves the recommendation list")
	assert.Equal(t, uint64(4), got[0].ID)
}

func TestAddFriendConflictConverges(t *testing.T) {
	gw, s := newTestSession(t)

	gw.EXPECT().ResolveIdentity(gomock.Any(), "auth0|alice").Return(uint64(1), nil)
	expectRefresh(gw, map[uint64]bool{2: false, 3: false})
	require.NoError(t, s.Refresh(context.Background()))

	gw.EXPECT().AddFriend(gomock.Any(), uint64(1), uint64(2)).Return(api.ErrConflict)

	require.NoError(t, s.AddFriend(context.Background(), 2), "conflict means the desired state already holds")
	assert.Equal(t, models.StatusFriend, s.Status(2))
}

func TestAddFriendUnavailableKeepsCaches(t *testing.T) {
	gw, s := newTestSession(t)

	gw.EXPECT().ResolveIdentity(gomock.Any(), "auth0|alice").Return(uint64(1), nil)
	expectRefresh(gw, map[uint64]bool{2: false, 3: false})
	require.NoError(t, s.Refresh(context.Background()))

	gw.EXPECT().AddFriend(gomock.Any(), uint64(1), uint64(2)).Return(api.ErrUnavailable)

	err := s.AddFriend(context.Background(), 2)
	assert.ErrorIs(t, err, api.ErrUnavailable)
	assert.Equal(t, models.StatusNotFriend, s.Status(2))
}

func TestAddFriendDeduplicated(t *testing.T) {
	gw, s := newTestSession(t)

	gw.EXPECT().ResolveIdentity(gomock.Any(), "auth0|alice").Return(uint64(1), nil)
	expectRefresh(gw, map[uint64]bool{2: false, 3: false})
	require.NoError(t, s.Refresh(context.Background()))

	gw.EXPECT().AddFriend(gomock.Any(), uint64(1), uint64(2)).Return(nil).Times(1)
	gw.EXPECT().NotifyFriendAdded(gomock.Any(), uint64(1), uint64(2)).Return(nil).Times(1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.AddFriend(context.Background(), 2)
		}()
	}
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, models.StatusFriend, s.Status(2), "both callers observe friend")
}

func TestAddFriendValidation(t *testing.T) {
	gw, s := newTestSession(t)

	err := s.AddFriend(context.Background(), 2)
	assert.ErrorIs(t, err, ErrNotReady)

	gw.EXPECT().ResolveIdentity(gomock.Any(), "auth0|alice").Return(uint64(1), nil)
	expectRefresh(gw, map[uint64]bool{2: false, 3: false})
	require.NoError(t, s.Refresh(context.Background()))

	assert.ErrorIs(t, s.AddFriend(context.Background(), 1), ErrSelfPeer)
	assert.ErrorIs(t, s.AddFriend(context.Background(), 99), ErrUnknownPeer)
}

func TestRecommendationsFetchedLazily(t *testing.T) {
	gw, s := newTestSession(t)

	gw.EXPECT().ResolveIdentity(gomock.Any(), "auth0|alice").Return(uint64(1), nil)
	expectRefresh(gw, map[uint64]bool{2: false, 3: false})
	require.NoError(t, s.Refresh(context.Background()))

	recs := []models.Candidate{{ID: 4, Username: "Dave"}, {ID: 5, Username: "Eve"}}
	gw.EXPECT().Recommendations(gomock.Any(), uint64(1)).Return(recs, nil).Times(1)

	require.NoError(t, s.SetView(context.Background(), models.ViewRecommendations))
	require.NoError(t, s.SetView(context.Background(), models.ViewAll))
	require.NoError(t, s.SetView(context.Background(), models.ViewRecommendations))

	got, stale := s.Recommendations()
	assert.False(t, stale)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(4), got[0].ID, "server ranking order is preserved")
	assert.Equal(t, uint64(5), got[1].ID)
}

func TestRecommendationsDropKnownFriends(t *testing.T) {
	gw, s := newTestSession(t)

	gw.EXPECT().ResolveIdentity(gomock.Any(), "auth0|alice").Return(uint64(1), nil)
	expectRefresh(gw, map[uint64]bool{2: true, 3: false})
	require.NoError(t, s.Refresh(context.Background()))

	recs := []models.Candidate{{ID: 2, Username: "Bob"}, {ID: 4, Username: "Dave"}}
	gw.EXPECT().Recommendations(gomock.Any(), uint64(1)).Return(recs, nil)
	require.NoError(t, s.SetView(context.Background(), models.ViewRecommendations))

	got, _ := s.Recommendations()
	require.Len(t, got, 1, "a candidate already marked friend is a contradiction")
	assert.Equal(t, uint64(4), got[0].ID)
}

func TestRecommendationsUnavailableKeepsLastGood(t *testing.T) {
	gw, s := newTestSession(t)

	gw.EXPECT().ResolveIdentity(gomock.Any(), "auth0|alice").Return(uint64(1), nil)
	expectRefresh(gw, map[uint64]bool{2: false, 3: false})
	require.NoError(t, s.Refresh(context.Background()))

	gomock.InOrder(
		gw.EXPECT().Recommendations(gomock.Any(), uint64(1)).Return(nil, api.ErrUnavailable),
		gw.EXPECT().Recommendations(gomock.Any(), uint64(1)).
			Return([]models.Candidate{{ID: 4, Username: "Dave"}}, nil),
	)

	err := s.SetView(context.Background(), models.ViewRecommendations)
	assert.ErrorIs(t, err, api.ErrUnavailable)

	_, stale := s.Recommendations()
	assert.True(t, stale, "a failed fetch marks the cache stale instead of clearing it")

	// empty cache on reactivation triggers a refetch
	require.NoError(t, s.SetView(context.Background(), models.ViewRecommendations))

	got, stale := s.Recommendations()
	assert.False(t, stale)
	require.Len(t, got, 1)
}

func TestDeleteAccountInvalidates(t *testing.T) {
	gw, s := newTestSession(t)

	gw.EXPECT().ResolveIdentity(gomock.Any(), "auth0|alice").Return(uint64(1), nil)
	expectRefresh(gw, map[uint64]bool{2: false, 3: false})
	require.NoError(t, s.Refresh(context.Background()))

	gw.EXPECT().DeleteAccount(gomock.Any(), "auth0|alice").Return(nil)
	require.NoError(t, s.DeleteAccount(context.Background()))

	_, _, ok := s.Roster()
	assert.False(t, ok)

	_, resolved := s.SelfID()
	assert.False(t, resolved)
}

func TestDeleteAccountFailureKeepsSession(t *testing.T) {
	gw, s := newTestSession(t)

	gw.EXPECT().ResolveIdentity(gomock.Any(), "auth0|alice").Return(uint64(1), nil)
	expectRefresh(gw, map[uint64]bool{2: false, 3: false})
	require.NoError(t, s.Refresh(context.Background()))

	gw.EXPECT().DeleteAccount(gomock.Any(), "auth0|alice").Return(api.ErrUnavailable)

	err := s.DeleteAccount(context.Background())
	assert.ErrorIs(t, err, api.ErrUnavailable)

	_, _, ok := s.Roster()
	assert.True(t, ok)
}

func TestUnknownPeerStatusIsUnknown(t *testing.T) {
	_, s := newTestSession(t)

	assert.Equal(t, models.StatusUnknown, s.Status(7))
}
