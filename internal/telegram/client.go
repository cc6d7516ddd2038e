package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultAPIBase = "https://api.telegram.org"

	// DefaultPollTimeout is the long-poll hold time requested from the API.
	DefaultPollTimeout = 30 * time.Second
)

// Client talks to the Telegram Bot API for a single bot token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Bot API client. The token must already be issued by
// BotFather.
func NewClient(token string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("bot token cannot be empty")
	}
	return &Client{
		baseURL: defaultAPIBase,
		token:   token,
		// The HTTP timeout must exceed the long-poll hold time.
		httpClient: &http.Client{Timeout: DefaultPollTimeout + 15*time.Second},
	}, nil
}

// NewClientWithBaseURL creates a client against a custom API host. Used by
// tests to point at a local server.
func NewClientWithBaseURL(token, baseURL string) (*Client, error) {
	c, err := NewClient(token)
	if err != nil {
		return nil, err
	}
	c.baseURL = baseURL
	return c, nil
}

// GetUpdates long-polls for updates with update_id greater than or equal to
// offset. An empty slice means the poll timed out without traffic.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(DefaultPollTimeout.Seconds()),
		"allowed_updates": []string{"message"},
	}

	raw, err := c.call(ctx, "getUpdates", payload)
	if err != nil {
		return nil, err
	}

	var updates []Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, fmt.Errorf("telegram getUpdates: decode result: %w", err)
	}
	return updates, nil
}

// SendMessage sends a text message to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	if text == "" {
		return fmt.Errorf("message text cannot be empty")
	}

	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}

	_, err := c.call(ctx, "sendMessage", payload)
	return err
}

// call posts one Bot API method and unwraps the response envelope.
func (c *Client) call(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("telegram %s: marshal payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("telegram %s: create request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("telegram %s: read response: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("telegram %s: decode envelope: %w", method, err)
	}
	if !envelope.OK {
		return nil, &APIError{Op: method, Code: envelope.ErrorCode, Description: envelope.Description}
	}

	return envelope.Result, nil
}
