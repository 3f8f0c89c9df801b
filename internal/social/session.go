package social

import (
	"bitbucket.org/sotavant/cloudcord-client/internal/api"
	"bitbucket.org/sotavant/cloudcord-client/internal/logger"
	"bitbucket.org/sotavant/cloudcord-client/internal/models"
	"context"
	"errors"
	"fmt"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"sync"
)

var (
	ErrNotReady     = errors.New("session_not_ready")
	ErrUnknownPeer  = errors.New("unknown_peer")
	ErrSelfPeer     = errors.New("self_peer")
	ErrStaleSession = errors.New("stale_session")
)

const defaultCheckConcurrency = 8

// Session owns the social caches for one authenticated user: the
// roster, the per-peer friendship statuses and the recommendation
// list. The backend is the source of truth; everything here is a
// reconciled view of it.
type Session struct {
	gw      api.Gateway
	auth0ID string
	limit   int

	mu          sync.Mutex
	gen         uint64
	selfID      uint64
	resolved    bool
	roster      []models.User
	rosterReady bool
	statuses    map[uint64]models.FriendshipStatus
	recs        []models.Candidate
	recsLoaded  bool
	recsStale   bool
	view        models.ViewMode
	inflight    map[uint64]bool
}

func NewSession(gw api.Gateway, auth0ID string, checkConcurrency int) *Session {
	if checkConcurrency <= 0 {
		checkConcurrency = defaultCheckConcurrency
	}

	return &Session{
		gw:       gw,
		auth0ID:  auth0ID,
		limit:    checkConcurrency,
		statuses: make(map[uint64]models.FriendshipStatus),
		inflight: make(map[uint64]bool),
		view:     models.ViewAll,
	}
}

// Refresh resolves the caller's identity (once per session), fetches
// the roster and re-resolves every peer's friendship status. Roster and
// statuses are published together, and only if the session generation
// has not moved while the requests were in flight.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	gen := s.gen
	selfID := s.selfID
	resolved := s.resolved
	s.mu.Unlock()

	if !resolved {
		id, err := s.gw.ResolveIdentity(ctx, s.auth0ID)
		if err != nil {
			return err
		}

		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return ErrStaleSession
		}
		s.selfID = id
		s.resolved = true
		s.mu.Unlock()
		selfID = id
	}

	users, err := s.gw.ListUsers(ctx)
	if err != nil {
		// кэш не трогаем: пустой ростер и недоступный бекенд — разные состояния
		return fmt.Errorf("refreshing roster: %w", err)
	}

	peers := make([]uint64, 0, len(users))
	for _, u := range users {
		if u.ID == selfID {
			continue
		}
		peers = append(peers, u.ID)
	}

	checked := s.resolveStatuses(ctx, selfID, peers)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return ErrStaleSession
	}

	merged := make(map[uint64]models.FriendshipStatus, len(checked))
	for id, st := range checked {
		// once a peer is a friend it stays a friend for the session
		if s.statuses[id] == models.StatusFriend {
			st = models.StatusFriend
		}
		merged[id] = st
	}

	s.roster = users
	s.statuses = merged
	s.rosterReady = true

	return nil
}

// resolveStatuses fans out one is-friend check per peer, at most
// s.limit at a time, and joins before returning. A failed check
// degrades that peer to not_friend instead of failing the batch:
// showing "Add Friend" for an actual friend is recoverable, the
// opposite is not.
func (s *Session) resolveStatuses(ctx context.Context, selfID uint64, peers []uint64) map[uint64]models.FriendshipStatus {
	out := make(map[uint64]models.FriendshipStatus, len(peers))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.limit)

	for _, peer := range peers {
		peer := peer
		g.Go(func() error {
			areFriends, err := s.gw.IsFriend(ctx, selfID, peer)
			if err != nil {
				logger.Log.Warn("friendship check failed, assuming not friends",
					zap.Uint64("peer", peer), zap.Error(err))
				areFriends = false
			}

			st := models.StatusNotFriend
			if areFriends {
				st = models.StatusFriend
			}

			mu.Lock()
			out[peer] = st
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return out
}

// AddFriend commits the friendship server-side, then reconciles the
// caches: the peer's status goes to friend and the peer leaves the
// recommendation list. A Conflict from the backend means the edge
// already exists, which is the state the caller wanted; it is treated
// as success.
func (s *Session) AddFriend(ctx context.Context, peerID uint64) error {
	s.mu.Lock()
	if !s.resolved {
		s.mu.Unlock()
		return ErrNotReady
	}
	if peerID == s.selfID {
		s.mu.Unlock()
		return ErrSelfPeer
	}
	if s.statuses[peerID] == models.StatusFriend || s.inflight[peerID] {
		// already a friend, or a request for this peer is in flight
		s.mu.Unlock()
		return nil
	}
	if !s.knownPeerLocked(peerID) {
		s.mu.Unlock()
		return ErrUnknownPeer
	}

	gen := s.gen
	selfID := s.selfID
	s.inflight[peerID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inflight, peerID)
		s.mu.Unlock()
	}()

	err := s.gw.AddFriend(ctx, selfID, peerID)
	if err != nil && !errors.Is(err, api.ErrConflict) {
		return err
	}

	s.mu.Lock()
	if s.gen == gen {
		s.statuses[peerID] = models.StatusFriend
		s.dropRecommendationLocked(peerID)
	}
	s.mu.Unlock()

	if err == nil {
		// best effort: the friendship is already committed server-side
		if nerr := s.gw.NotifyFriendAdded(ctx, selfID, peerID); nerr != nil {
			logger.Log.Debug("friend notification failed", zap.Uint64("peer", peerID), zap.Error(nerr))
		}
	}

	return nil
}

// SetView switches between the roster and recommendations views. The
// recommendation list is fetched lazily, on the first activation or
// when the cached list is empty; a failed fetch keeps the last known
// good list and marks it stale.
func (s *Session) SetView(ctx context.Context, mode models.ViewMode) error {
	s.mu.Lock()
	s.view = mode
	if mode != models.ViewRecommendations {
		s.mu.Unlock()
		return nil
	}
	if s.recsLoaded && len(s.recs) > 0 {
		s.mu.Unlock()
		return nil
	}
	if !s.resolved {
		s.mu.Unlock()
		return ErrNotReady
	}
	gen := s.gen
	selfID := s.selfID
	s.mu.Unlock()

	recs, err := s.gw.Recommendations(ctx, selfID)
	if err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.recsStale = true
		}
		s.mu.Unlock()
		return fmt.Errorf("refreshing recommendations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return ErrStaleSession
	}

	// кандидат, который уже друг — противоречие, убираем сразу
	kept := recs[:0]
	for _, c := range recs {
		if s.statuses[c.ID] == models.StatusFriend {
			continue
		}
		kept = append(kept, c)
	}

	s.recs = kept
	s.recsLoaded = true
	s.recsStale = false

	return nil
}

// DeleteAccount removes the user from the backend and invalidates the
// session.
func (s *Session) DeleteAccount(ctx context.Context) error {
	if err := s.gw.DeleteAccount(ctx, s.auth0ID); err != nil {
		return err
	}

	s.Invalidate()
	return nil
}

// Invalidate ends the session: the generation moves so in-flight
// results get discarded on arrival, and all caches are cleared.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	s.resolved = false
	s.selfID = 0
	s.roster = nil
	s.rosterReady = false
	s.statuses = make(map[uint64]models.FriendshipStatus)
	s.recs = nil
	s.recsLoaded = false
	s.recsStale = false
	s.view = models.ViewAll
}

func (s *Session) SelfID() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selfID, s.resolved
}

// Roster returns the cached roster and status map. ok is false until
// the first successful Refresh: an unloaded roster must not read as an
// empty one.
func (s *Session) Roster() (users []models.User, statuses map[uint64]models.FriendshipStatus, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.rosterReady {
		return nil, nil, false
	}

	users = append([]models.User(nil), s.roster...)
	statuses = make(map[uint64]models.FriendshipStatus, len(s.statuses))
	for id, st := range s.statuses {
		statuses[id] = st
	}

	return users, statuses, true
}

func (s *Session) Status(peerID uint64) models.FriendshipStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[peerID]
}

// Recommendations returns the cached list in server order. stale means
// the last fetch failed and the list is the previous known good one.
func (s *Session) Recommendations() (recs []models.Candidate, stale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Candidate(nil), s.recs...), s.recsStale
}

func (s *Session) View() models.ViewMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func (s *Session) knownPeerLocked(peerID uint64) bool {
	for _, u := range s.roster {
		if u.ID == peerID {
			return true
		}
	}
	for _, c := range s.recs {
		if c.ID == peerID {
			return true
		}
	}
	return false
}

func (s *Session) dropRecommendationLocked(peerID uint64) {
	for i, c := range s.recs {
		if c.ID == peerID {
			s.recs = append(s.recs[:i], s.recs[i+1:]...)
			return
		}
	}
}
