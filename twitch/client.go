// Package twitch is a minimal Twitch Helix client covering identity lookup
// and EventSub webhook subscriptions for stream.online topics.
package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/carlmjohnson/requests"
	"go.uber.org/zap"

	"github.com/snipebot/streamwatch/config"
)

const (
	helixBaseURL = "https://api.twitch.tv/helix"
	tokenURL     = "https://id.twitch.tv/oauth2/token"
)

// ErrUnknownIdentity reports that a batched identity lookup contained at
// least one id or login that Twitch does not know about.
var ErrUnknownIdentity = errors.New("twitch: unknown user id or login")

type User struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	ProfileImageURL string `json:"profile_image_url"`
}

// StreamOnlineEvent is the payload of an EventSub stream.online notification.
type StreamOnlineEvent struct {
	BroadcasterUserID    string    `json:"broadcaster_user_id"`
	BroadcasterUserLogin string    `json:"broadcaster_user_login"`
	BroadcasterUserName  string    `json:"broadcaster_user_name"`
	StartedAt            time.Time `json:"started_at"`
}

// tokenSource caches an app access (client credentials) token.
type tokenSource struct {
	clientID     string
	clientSecret string
	transport    http.RoundTripper

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func (ts *tokenSource) get(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token != "" && time.Until(ts.expiresAt) > time.Minute {
		return ts.token, nil
	}

	form := url.Values{}
	form.Set("client_id", ts.clientID)
	form.Set("client_secret", ts.clientSecret)
	form.Set("grant_type", "client_credentials")

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	err := requests.URL(tokenURL).
		Transport(ts.transport).
		BodyForm(form).
		ToJSON(&body).
		Fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("twitch token request: %w", err)
	}
	if body.AccessToken == "" {
		return "", errors.New("twitch token response had empty access_token")
	}

	ts.token = body.AccessToken
	ts.expiresAt = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return ts.token, nil
}

type Client struct {
	log       *zap.Logger
	clientID  string
	transport http.RoundTripper
	tokens    *tokenSource

	baseURL string
}

func NewClient(cfg *config.Config, log *zap.Logger, transport http.RoundTripper) *Client {
	return &Client{
		log:       log,
		clientID:  cfg.Twitch.ClientID,
		transport: transport,
		tokens: &tokenSource{
			clientID:     cfg.Twitch.ClientID,
			clientSecret: cfg.Twitch.ClientSecret,
			transport:    transport,
		},
		baseURL: helixBaseURL,
	}
}

// UsersByID validates a batch of user ids. Returns ErrUnknownIdentity if any
// id in the batch does not resolve.
func (c *Client) UsersByID(ctx context.Context, ids []string) ([]User, error) {
	return c.getUsers(ctx, "id", ids)
}

// UsersByLogin resolves a batch of login names. Returns ErrUnknownIdentity if
// any login in the batch does not resolve.
func (c *Client) UsersByLogin(ctx context.Context, logins []string) ([]User, error) {
	return c.getUsers(ctx, "login", logins)
}

func (c *Client) getUsers(ctx context.Context, param string, values []string) ([]User, error) {
	if len(values) == 0 {
		return nil, nil
	}

	tok, err := c.tokens.get(ctx)
	if err != nil {
		return nil, err
	}

	var body struct {
		Data []User `json:"data"`
	}
	err = requests.URL(c.baseURL+"/users").
		Transport(c.transport).
		Param(param, values...).
		Header("Client-Id", c.clientID).
		Header("Authorization", "Bearer "+tok).
		ToJSON(&body).
		Fetch(ctx)
	if err != nil {
		if requests.HasStatusErr(err, http.StatusBadRequest) {
			// Helix rejects the whole request when an id is malformed.
			return nil, fmt.Errorf("%w: %v", ErrUnknownIdentity, err)
		}
		return nil, fmt.Errorf("twitch get users: %w", err)
	}
	if len(body.Data) != len(values) {
		return nil, fmt.Errorf("%w: requested %d, resolved %d", ErrUnknownIdentity, len(values), len(body.Data))
	}
	return body.Data, nil
}
