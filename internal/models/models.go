package models

import "time"

// FriendshipStatus is deliberately tri-state: an unresolved peer is
// Unknown, never NotFriend, so a caller can tell "not checked yet"
// from "confirmed not a friend".
type FriendshipStatus int

const (
	StatusUnknown FriendshipStatus = iota
	StatusNotFriend
	StatusFriend
)

func (s FriendshipStatus) String() string {
	switch s {
	case StatusNotFriend:
		return "not_friend"
	case StatusFriend:
		return "friend"
	default:
		return "unknown"
	}
}

func (s FriendshipStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

type ViewMode string

const (
	ViewAll             ViewMode = "all"
	ViewRecommendations ViewMode = "recommendations"
)

type User struct {
	ID       uint64 `json:"user_id"`
	Auth0ID  string `json:"auth0_id"`
	Username string `json:"username"`
}

// Candidate is one entry of the ranked recommendation list. The backend
// is inconsistent about the id key ("ID" vs "id"); encoding/json matches
// keys case-insensitively, so one tag covers both.
type Candidate struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
}

type Message struct {
	SentByUser string    `json:"sent_by_user"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

type Conversation struct {
	Messages []Message `json:"messages"`
}
