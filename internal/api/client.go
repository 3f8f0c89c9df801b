package api

import (
	"bitbucket.org/sotavant/cloudcord-client/internal/logger"
	"bitbucket.org/sotavant/cloudcord-client/internal/models"
	"context"
	"fmt"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"net/http"
	"strconv"
	"time"
)

// Gateway is the client's view of the CloudCord backend. The engine
// depends on this interface, never on Client directly.
type Gateway interface {
	ResolveIdentity(ctx context.Context, auth0ID string) (uint64, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	IsFriend(ctx context.Context, userID, otherID uint64) (bool, error)
	AddFriend(ctx context.Context, userID, friendID uint64) error
	Recommendations(ctx context.Context, userID uint64) ([]models.Candidate, error)
	DeleteAccount(ctx context.Context, auth0ID string) error
	GetChat(ctx context.Context, user1, user2 uint64) ([]models.Message, error)
	SendMessage(ctx context.Context, sender, receiver uint64, content string) (models.Message, error)
	NotifyFriendAdded(ctx context.Context, userID, friendID uint64) error
}

// TokenSource supplies the bearer credential for backend calls.
// Refresh is invoked once after an Unauthorized response before the
// request is retried.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for a fixed credential; Refresh returns
// the same value, so an expired static token surfaces as Unauthorized.
type StaticToken string

func (t StaticToken) Token(_ context.Context) (string, error)   { return string(t), nil }
func (t StaticToken) Refresh(_ context.Context) (string, error) { return string(t), nil }

type Client struct {
	http      *resty.Client
	notifyURL string
	tokens    TokenSource
}

func NewClient(baseURL, notifyURL string, tokens TokenSource, timeout time.Duration) *Client {
	return &Client{
		http:      resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
		notifyURL: notifyURL,
		tokens:    tokens,
	}
}

// do sends one authenticated request. A transport-level failure maps to
// Unavailable; an Unauthorized response triggers one token refresh and
// a single retry.
func (c *Client) do(ctx context.Context, send func(r *resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: getting token: %v", ErrUnauthorized, err)
	}

	resp, err := send(c.request(ctx, token))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		logger.Log.Debug("got 401, refreshing token")

		token, err = c.tokens.Refresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: refreshing token: %v", ErrUnauthorized, err)
		}

		resp, err = send(c.request(ctx, token))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return resp, classify(resp)
}

func (c *Client) request(ctx context.Context, token string) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("X-Request-ID", uuid.NewString())
}

func classify(resp *resty.Response) error {
	code := resp.StatusCode()
	switch {
	case resp.IsSuccess():
		return nil
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusConflict:
		return ErrConflict
	case code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: backend returned %d", ErrUnavailable, code)
	default:
		return fmt.Errorf("backend returned %d: %s", code, resp.String())
	}
}

func (c *Client) ResolveIdentity(ctx context.Context, auth0ID string) (uint64, error) {
	var body struct {
		UserID uint64 `json:"userID"`
	}

	_, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParam("auth0_id", auth0ID).
			SetResult(&body).
			Get("/user/auth-user")
	})
	if err != nil {
		return 0, fmt.Errorf("resolving identity: %w", err)
	}

	return body.UserID, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User

	_, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetResult(&users).Get("/user/users")
	})
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	return users, nil
}

func (c *Client) IsFriend(ctx context.Context, userID, otherID uint64) (bool, error) {
	var body struct {
		AreFriends bool `json:"are_friends"`
	}

	_, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParams(map[string]string{
			"user_id":  strconv.FormatUint(userID, 10),
			"other_id": strconv.FormatUint(otherID, 10),
		}).
			SetResult(&body).
			Get("/user/is-friend")
	})
	if err != nil {
		return false, fmt.Errorf("checking friendship: %w", err)
	}

	return body.AreFriends, nil
}

func (c *Client) AddFriend(ctx context.Context, userID, friendID uint64) error {
	_, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(map[string]uint64{
			"user_id":   userID,
			"friend_id": friendID,
		}).
			Post("/user/add-friend")
	})
	if err != nil {
		return fmt.Errorf("adding friend: %w", err)
	}

	return nil
}

func (c *Client) Recommendations(ctx context.Context, userID uint64) ([]models.Candidate, error) {
	var candidates []models.Candidate

	_, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParam("user_id", strconv.FormatUint(userID, 10)).
			SetResult(&candidates).
			Get("/user/recommendations")
	})
	if err != nil {
		return nil, fmt.Errorf("fetching recommendations: %w", err)
	}

	return candidates, nil
}

func (c *Client) DeleteAccount(ctx context.Context, auth0ID string) error {
	_, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParam("auth0_id", auth0ID).Delete("/user/delete")
	})
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}

	return nil
}

func (c *Client) GetChat(ctx context.Context, user1, user2 uint64) ([]models.Message, error) {
	var body models.Conversation

	_, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParams(map[string]string{
			"user1": strconv.FormatUint(user1, 10),
			"user2": strconv.FormatUint(user2, 10),
		}).
			SetResult(&body).
			Get("/message/chat")
	})
	if err != nil {
		return nil, fmt.Errorf("fetching chat: %w", err)
	}

	return body.Messages, nil
}

func (c *Client) SendMessage(ctx context.Context, sender, receiver uint64, content string) (models.Message, error) {
	var body struct {
		Message models.Message `json:"message"`
	}

	_, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(map[string]string{
			"sender":   strconv.FormatUint(sender, 10),
			"receiver": strconv.FormatUint(receiver, 10),
			"content":  content,
		}).
			SetResult(&body).
			Post("/message/send")
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("sending message: %w", err)
	}

	return body.Message, nil
}

// NotifyFriendAdded hits the external notification collaborator. Callers
// treat it as fire-and-forget; the friendship is already committed when
// this runs.
func (c *Client) NotifyFriendAdded(ctx context.Context, userID, friendID uint64) error {
	var body struct {
		Notification string `json:"notification"`
	}

	_, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(map[string]uint64{
			"user_id":   userID,
			"friend_id": friendID,
		}).
			SetResult(&body).
			Post(c.notifyURL)
	})
	if err != nil {
		return fmt.Errorf("notifying friend added: %w", err)
	}

	logger.Log.Debug("notification sent", zap.String("notification", body.Notification))
	return nil
}
