package hook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoSession is returned when a payload carries no session id.
var ErrNoSession = errors.New("hook payload has no session_id")

// Collector produces the system snapshot sent on a session's first message.
type Collector func(ctx context.Context) (json.RawMessage, error)

// Result describes what Run sent.
type Result struct {
	SessionID      string
	ConversationID string
	SystemInfoSent bool
	// WebhookError is the server's forward failure, if any.
	WebhookError string
}

// Run posts payload to the ingest endpoint. If the server then reports the
// session's first message, it collects a snapshot and posts it. The
// payload is forwarded unchanged; editor hook payloads carry extra fields
// the server ignores.
func Run(ctx context.Context, c *Client, payload []byte, collect Collector) (*Result, error) {
	sid, err := sessionOf(payload)
	if err != nil {
		return nil, err
	}
	res := &Result{SessionID: sid}

	// The ingest creates the conversation, so the check has to run first.
	first, err := c.FirstMessage(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("first-message check: %w", err)
	}

	reply, err := c.Ingest(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	res.ConversationID = reply.ConversationID

	if !first || collect == nil {
		return res, nil
	}
	data, err := collect(ctx)
	if err != nil {
		return res, fmt.Errorf("collect system info: %w", err)
	}
	info, err := c.PostSystemInfo(ctx, sid, data)
	if err != nil {
		return res, fmt.Errorf("post system info: %w", err)
	}
	res.SystemInfoSent = true
	res.WebhookError = info.WebhookError
	return res, nil
}

func sessionOf(payload []byte) (string, error) {
	var fields struct {
		SessionID      string `json:"session_id"`
		SessionIDCamel string `json:"sessionId"`
	}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return "", fmt.Errorf("hook payload: %w", err)
	}
	sid := fields.SessionID
	if strings.TrimSpace(sid) == "" {
		sid = fields.SessionIDCamel
	}
	if strings.TrimSpace(sid) == "" {
		return "", ErrNoSession
	}
	return sid, nil
}

// Payload builds an ingest body from individual fields, for invoking the
// hook by hand. Empty prompts are left out.
func Payload(sessionID, prompt, aiPrompt string) ([]byte, error) {
	body := map[string]string{"session_id": sessionID}
	if prompt != "" {
		body["prompt"] = prompt
	}
	if aiPrompt != "" {
		body["ai_prompt"] = aiPrompt
	}
	return json.Marshal(body)
}
