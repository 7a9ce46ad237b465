package api

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

	"VibeMelody/model"
)

// UserHeader carries the caller's user id to the relay server.
const UserHeader = "X-User-ID"

// Client REST 客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建新的API客户端
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetTimeout 设置请求超时时间
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// FetchUsers lists the chat peers of userID.
func (c *Client) FetchUsers(ctx context.Context, userID string) ([]model.User, error) {
	var users []model.User
	if err := c.do(ctx, http.MethodGet, "/api/chat/users", userID, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// FetchMessages loads the conversation between userID and peerID, oldest first.
func (c *Client) FetchMessages(ctx context.Context, userID, peerID string) ([]model.Message, error) {
	var msgs []model.Message
	path := "/api/chat/messages/" + url.PathEscape(peerID)
	if err := c.do(ctx, http.MethodGet, path, userID, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// FetchNotifications loads the notifications of userID, newest first.
func (c *Client) FetchNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	var items []model.Notification
	if err := c.do(ctx, http.MethodGet, "/api/notifications", userID, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// AskAssistant posts a prompt to the assistant endpoint and returns the reply.
func (c *Client) AskAssistant(ctx context.Context, prompt string) (string, error) {
	var resp model.AssistantResponse
	if err := c.do(ctx, http.MethodPost, "/api/ai/chat", "", model.AssistantRequest{Message: prompt}, &resp); err != nil {
		return "", err
	}
	return resp.Reply, nil
}

func (c *Client) do(ctx context.Context, method, path, userID string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(UserHeader, userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}
