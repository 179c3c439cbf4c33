package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Message is an outbound text message payload.
type Message struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func TextMessage(text string) Message {
	return Message{Type: "text", Text: text}
}

// Profile is the subset of a platform user profile the bot cares about.
type Profile struct {
	DisplayName string `json:"displayName"`
	PictureURL  string `json:"pictureUrl,omitempty"`
}

// Client talks to the platform Messaging API over HTTP.
type Client struct {
	http         *http.Client
	baseURL      string
	channelToken string
}

// NewClient builds a client for the given channel access token. A nil
// httpClient gets a 10s timeout default; an empty baseURL targets the public
// API host.
func NewClient(httpClient *http.Client, baseURL, channelToken string) (*Client, error) {
	if strings.TrimSpace(channelToken) == "" {
		return nil, fmt.Errorf("missing channel access token")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	baseURL = strings.TrimSpace(strings.TrimRight(baseURL, "/"))
	if baseURL == "" {
		baseURL = "https://api.line.me"
	}
	return &Client{
		http:         httpClient,
		baseURL:      baseURL,
		channelToken: strings.TrimSpace(channelToken),
	}, nil
}

// GetProfile fetches the display name and avatar for a platform user id.
// Failures are expected (blocked bot, group-only users) and callers treat
// them as non-fatal.
func (c *Client) GetProfile(ctx context.Context, userID string) (Profile, error) {
	if c == nil {
		return Profile{}, fmt.Errorf("line client is not initialized")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Profile{}, fmt.Errorf("user id is required")
	}
	body, status, err := c.do(ctx, http.MethodGet, "/v2/bot/profile/"+url.PathEscape(userID), nil)
	if err != nil {
		return Profile{}, err
	}
	if status < 200 || status >= 300 {
		return Profile{}, fmt.Errorf("line get profile http %d: %s", status, bodySnippet(body))
	}
	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Reply sends messages in response to a webhook event using its reply token.
func (c *Client) Reply(ctx context.Context, replyToken string, msgs []Message) error {
	if c == nil {
		return fmt.Errorf("line client is not initialized")
	}
	replyToken = strings.TrimSpace(replyToken)
	if replyToken == "" {
		return fmt.Errorf("reply token is required")
	}
	if len(msgs) == 0 {
		return fmt.Errorf("at least one message is required")
	}
	payload := map[string]any{
		"replyToken": replyToken,
		"messages":   msgs,
	}
	body, status, err := c.do(ctx, http.MethodPost, "/v2/bot/message/reply", payload)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("line reply http %d: %s", status, bodySnippet(body))
	}
	return nil
}

// Push sends messages to a user outside the reply window.
func (c *Client) Push(ctx context.Context, to string, msgs []Message) error {
	if c == nil {
		return fmt.Errorf("line client is not initialized")
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("push target is required")
	}
	if len(msgs) == 0 {
		return fmt.Errorf("at least one message is required")
	}
	payload := map[string]any{
		"to":       to,
		"messages": msgs,
	}
	body, status, err := c.do(ctx, http.MethodPost, "/v2/bot/message/push", payload)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("line push http %d: %s", status, bodySnippet(body))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.channelToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func bodySnippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
