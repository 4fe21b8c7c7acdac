// Package slack is a minimal client for the handful of Slack Web API
// methods the mirror needs: users.info, conversations.info, emoji.list
// and auth.test.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const defaultBaseURL = "https://slack.com/api"

// APIError is a Slack {ok:false, error:<code>} response.
type APIError struct {
	Code string
}

func (e *APIError) Error() string {
	return "slack: " + e.Code
}

// ErrorCode extracts the Slack error code from err, or "" when err is
// not an API-level failure.
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

type User struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Profile Profile `json:"profile"`
}

type Profile struct {
	DisplayName string `json:"display_name"`
	Image48     string `json:"image_48"`
}

type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Identity struct {
	URL    string `json:"url"`
	Team   string `json:"team"`
	User   string `json:"user"`
	TeamID string `json:"team_id"`
	UserID string `json:"user_id"`
}

type Client struct {
	BaseURL string
	HTTP    *http.Client

	mu    sync.RWMutex
	token string
}

func NewClient(token string) *Client {
	return &Client{
		HTTP:  &http.Client{Timeout: 10 * time.Second},
		token: strings.TrimSpace(token),
	}
}

// SetToken swaps the bot token at runtime (used by token-file reload).
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// UserInfo looks up a user by platform ID via users.info.
func (c *Client) UserInfo(ctx context.Context, id string) (User, error) {
	var parsed struct {
		apiEnvelope
		User User `json:"user"`
	}
	params := url.Values{"user": {id}}
	if err := c.call(ctx, "users.info", params, &parsed); err != nil {
		return User{}, err
	}
	if err := parsed.err(); err != nil {
		return User{}, err
	}
	return parsed.User, nil
}

// ChannelInfo looks up a channel by platform ID via conversations.info.
func (c *Client) ChannelInfo(ctx context.Context, id string) (Channel, error) {
	var parsed struct {
		apiEnvelope
		Channel Channel `json:"channel"`
	}
	params := url.Values{"channel": {id}}
	if err := c.call(ctx, "conversations.info", params, &parsed); err != nil {
		return Channel{}, err
	}
	if err := parsed.err(); err != nil {
		return Channel{}, err
	}
	return parsed.Channel, nil
}

// EmojiList fetches the workspace custom emoji registry. Values are
// image URLs or alias:<target> references.
func (c *Client) EmojiList(ctx context.Context) (map[string]string, error) {
	var parsed struct {
		apiEnvelope
		Emoji map[string]string `json:"emoji"`
	}
	if err := c.call(ctx, "emoji.list", nil, &parsed); err != nil {
		return nil, err
	}
	if err := parsed.err(); err != nil {
		return nil, err
	}
	return parsed.Emoji, nil
}

// AuthTest validates the configured token.
func (c *Client) AuthTest(ctx context.Context) (Identity, error) {
	var parsed struct {
		apiEnvelope
		Identity
	}
	if err := c.call(ctx, "auth.test", nil, &parsed); err != nil {
		return Identity{}, err
	}
	if err := parsed.err(); err != nil {
		return Identity{}, err
	}
	return parsed.Identity, nil
}

type apiEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (e apiEnvelope) err() error {
	if e.OK {
		return nil
	}
	code := e.Error
	if code == "" {
		code = "unknown_error"
	}
	return &APIError{Code: code}
}

func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	base := c.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	endpoint := strings.TrimSuffix(base, "/") + "/" + method
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrapf(err, "build %s request", method)
	}
	req.Header.Set("Authorization", "Bearer "+c.currentToken())

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return errors.Wrapf(err, "call %s", method)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%s: status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s response", method)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}
