// Package hook is the client side of promptstudio: it posts prompts from
// an editor hook to a running server and sends the one-time system
// snapshot on a session's first message.
package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxReplyBytes = 1 << 20

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Message string
	Details string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server returned %d", e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

// Client talks to the promptstudio HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// IngestReply is the server's answer to an ingest.
type IngestReply struct {
	OK             bool   `json:"ok"`
	ConversationID string `json:"conversationId"`
	ExchangeID     string `json:"exchangeId"`
}

// Ingest posts a raw ingest body.
func (c *Client) Ingest(ctx context.Context, body []byte) (*IngestReply, error) {
	var reply IngestReply
	if err := c.do(ctx, http.MethodPost, "/api/ingest", body, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// FirstMessage reports whether the session still needs its system snapshot.
func (c *Client) FirstMessage(ctx context.Context, sessionID string) (bool, error) {
	var reply struct {
		FirstMessage bool `json:"firstMessage"`
	}
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/first-message"
	if err := c.do(ctx, http.MethodGet, path, nil, &reply); err != nil {
		return false, err
	}
	return reply.FirstMessage, nil
}

// SystemInfoReply is the server's answer to a system-info post.
type SystemInfoReply struct {
	OK             bool   `json:"ok"`
	ConversationID string `json:"conversationId"`
	Forwarded      bool   `json:"forwarded"`
	WebhookError   string `json:"webhookError"`
}

// PostSystemInfo stores a system snapshot for the session.
func (c *Client) PostSystemInfo(ctx context.Context, sessionID string, data json.RawMessage) (*SystemInfoReply, error) {
	body, err := json.Marshal(map[string]interface{}{
		"session_id":  sessionID,
		"system_data": data,
		"timestamp":   time.Now().UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode system info: %w", err)
	}
	var reply SystemInfoReply
	if err := c.do(ctx, http.MethodPost, "/api/system-info", body, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		if json.Unmarshal(data, &eb) == nil {
			apiErr.Message = eb.Error
			apiErr.Details = eb.Details
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

// IsUnreachable reports whether err means no server answered.
func IsUnreachable(err error) bool {
	var apiErr *APIError
	return err != nil && !errors.As(err, &apiErr) && !errors.Is(err, context.Canceled)
}
