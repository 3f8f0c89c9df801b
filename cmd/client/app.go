package main

import (
	"bitbucket.org/sotavant/cloudcord-client/internal/api"
	"bitbucket.org/sotavant/cloudcord-client/internal/chat"
	"bitbucket.org/sotavant/cloudcord-client/internal/logger"
	"bitbucket.org/sotavant/cloudcord-client/internal/models"
	"bitbucket.org/sotavant/cloudcord-client/internal/social"
	"encoding/json"
	"errors"
	"go.uber.org/zap"
	"net/http"
	"strconv"
	"sync"
)

// app exposes the session engine to a UI process as a local JSON API.
type app struct {
	gw      api.Gateway
	session *social.Session

	mu       sync.Mutex
	channels map[uint64]*chat.Channel
}

func newApp(gw api.Gateway, session *social.Session) *app {
	return &app{
		gw:       gw,
		session:  session,
		channels: make(map[uint64]*chat.Channel),
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, api.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, api.ErrConflict), errors.Is(err, social.ErrStaleSession), errors.Is(err, social.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, api.ErrUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, social.ErrUnknownPeer), errors.Is(err, social.ErrSelfPeer), errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	if err := enc.Encode(v); err != nil {
		logger.Log.Debug("error encoding response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	enc := json.NewEncoder(w)
	if encErr := enc.Encode(map[string]string{"error": err.Error()}); encErr != nil {
		logger.Log.Debug("error encoding response", zap.Error(encErr))
	}
}

func (a *app) refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		logger.Log.Debug("got request with bad method", zap.String("method", r.Method))
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := a.session.Refresh(r.Context()); err != nil {
		logger.Log.Debug("session refresh failed", zap.Error(err))
		writeError(w, err)
		return
	}

	selfID, _ := a.session.SelfID()
	writeJSON(w, map[string]uint64{"user_id": selfID})
}

func (a *app) roster(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		logger.Log.Debug("got request with bad method", zap.String("method", r.Method))
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	users, statuses, ok := a.session.Roster()
	if !ok {
		// ростер ещё не загружен — это не пустой ростер
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{"state": "loading"})
		return
	}

	writeJSON(w, map[string]any{
		"users":    users,
		"statuses": statuses,
	})
}

func (a *app) view(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		logger.Log.Debug("got request with bad method", zap.String("method", r.Method))
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Mode models.ViewMode `json:"mode"`
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		logger.Log.Debug("cannot decode request JSON body", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if req.Mode != models.ViewAll && req.Mode != models.ViewRecommendations {
		logger.Log.Debug("unsupported view mode", zap.String("mode", string(req.Mode)))
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}

	if err := a.session.SetView(r.Context(), req.Mode); err != nil {
		logger.Log.Debug("view switch failed", zap.Error(err))
		// при недоступных рекомендациях отдаём последний удачный список
		recs, stale := a.session.Recommendations()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusFor(err))
		writeJSON(w, map[string]any{
			"mode":            a.session.View(),
			"recommendations": recs,
			"stale":           stale,
		})
		return
	}

	recs, stale := a.session.Recommendations()
	writeJSON(w, map[string]any{
		"mode":            a.session.View(),
		"recommendations": recs,
		"stale":           stale,
	})
}

func (a *app) addFriend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		logger.Log.Debug("got request with bad method", zap.String("method", r.Method))
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		FriendID uint64 `json:"friend_id"`
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		logger.Log.Debug("cannot decode request JSON body", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := a.session.AddFriend(r.Context(), req.FriendID); err != nil {
		logger.Log.Debug("add friend failed", zap.Uint64("peer", req.FriendID), zap.Error(err))
		writeError(w, err)
		return
	}

	writeJSON(w, map[string]any{
		"friend_id": req.FriendID,
		"status":    a.session.Status(req.FriendID),
	})
}

func (a *app) deleteAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		logger.Log.Debug("got request with bad method", zap.String("method", r.Method))
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := a.session.DeleteAccount(r.Context()); err != nil {
		logger.Log.Debug("account deletion failed", zap.Error(err))
		writeError(w, err)
		return
	}

	writeJSON(w, map[string]string{"message": "account deleted"})
}

func (a *app) channel(peerID uint64) (*chat.Channel, error) {
	selfID, ok := a.session.SelfID()
	if !ok {
		return nil, social.ErrNotReady
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ch, ok := a.channels[peerID]
	if !ok {
		ch = chat.NewChannel(a.gw, selfID, peerID)
		a.channels[peerID] = ch
	}

	return ch, nil
}

func peerParam(r *http.Request) (uint64, bool) {
	peer, err := strconv.ParseUint(r.URL.Query().Get("peer"), 10, 64)
	return peer, err == nil && peer != 0
}

var chatStates = map[chat.State]string{
	chat.StateLoading: "loading",
	chat.StateFailed:  "failed",
	chat.StateEmpty:   "empty",
	chat.StateReady:   "ready",
}

func (a *app) conversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		logger.Log.Debug("got request with bad method", zap.String("method", r.Method))
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	peerID, ok := peerParam(r)
	if !ok {
		logger.Log.Debug("missing or invalid peer parameter")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ch, err := a.channel(peerID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err = ch.Fetch(r.Context()); err != nil {
		logger.Log.Debug("conversation fetch failed", zap.Uint64("peer", peerID), zap.Error(err))
	}

	writeJSON(w, map[string]any{
		"state":    chatStates[ch.State()],
		"messages": ch.Messages(),
	})
}

func (a *app) sendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		logger.Log.Debug("got request with bad method", zap.String("method", r.Method))
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Receiver uint64 `json:"receiver"`
		Content  string `json:"content"`
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		logger.Log.Debug("cannot decode request JSON body", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if req.Receiver == 0 {
		logger.Log.Debug("missing receiver")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ch, err := a.channel(req.Receiver)
	if err != nil {
		writeError(w, err)
		return
	}

	msg, err := ch.Send(r.Context(), req.Content)
	if err != nil {
		logger.Log.Debug("message send failed", zap.Uint64("peer", req.Receiver), zap.Error(err))
		writeError(w, err)
		return
	}

	writeJSON(w, map[string]models.Message{"message": msg})
}
