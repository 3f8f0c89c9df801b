package chat

import (
	"bitbucket.org/sotavant/cloudcord-client/internal/api"
	"bitbucket.org/sotavant/cloudcord-client/internal/models"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrEmptyMessage = errors.New("empty_message")

// State distinguishes "not fetched yet", "fetched and empty" and
// "fetch failed". Only StateEmpty may render as "Start the
// conversation!"; a failed fetch must not look like an empty one.
type State int

const (
	StateLoading State = iota
	StateFailed
	StateEmpty
	StateReady
)

// Channel is the message history between the session user and one
// peer. Ordering is server-assigned: the channel never fabricates a
// local message, it only stores what the backend returned.
type Channel struct {
	gw     api.Gateway
	selfID uint64
	peerID uint64

	mu       sync.Mutex
	messages []models.Message
	loaded   bool
	lastErr  error
}

func NewChannel(gw api.Gateway, selfID, peerID uint64) *Channel {
	return &Channel{gw: gw, selfID: selfID, peerID: peerID}
}

func (c *Channel) Fetch(ctx context.Context) error {
	msgs, err := c.gw.GetChat(ctx, c.selfID, c.peerID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.lastErr = err
		return fmt.Errorf("fetching conversation: %w", err)
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})

	c.messages = msgs
	c.loaded = true
	c.lastErr = nil

	return nil
}

// Send rejects blank content before any network round trip. On success
// the server-returned message is merged into the local view, so
// timestamps and order always match the authoritative history.
func (c *Channel) Send(ctx context.Context, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, ErrEmptyMessage
	}

	msg, err := c.gw.SendMessage(ctx, c.selfID, c.peerID, content)
	if err != nil {
		return models.Message{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// сохраняем именно ответ сервера, без локальной копии
	c.messages = append(c.messages, msg)
	sort.SliceStable(c.messages, func(i, j int) bool {
		return c.messages[i].Timestamp.Before(c.messages[j].Timestamp)
	})
	c.loaded = true
	c.lastErr = nil

	return msg, nil
}

func (c *Channel) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.messages...)
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.lastErr != nil:
		return StateFailed
	case !c.loaded:
		return StateLoading
	case len(c.messages) == 0:
		return StateEmpty
	default:
		return StateReady
	}
}
