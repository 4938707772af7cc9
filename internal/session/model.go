// Package session records prompt exchanges per client session and turns the
// two prompt logs of a conversation back into displayable rows.
package session

import (
	"context"
	"encoding/json"
)

// Kind selects one of the two prompt logs of a conversation.
type Kind string

const (
	KindOriginal  Kind = "original"
	KindRewritten Kind = "ai_rewritten"
)

// Conversation is the per-session record. SystemInfoCollected is nil until
// the one-time enrichment has run.
type Conversation struct {
	ID                  string `json:"id"`
	SessionID           string `json:"session_id"`
	SystemInfoCollected *bool  `json:"system_info_collected,omitempty"`
	CreatedAt           int64  `json:"created_at"`
}

// Collected reports whether the enrichment flag is set.
func (c *Conversation) Collected() bool {
	return c.SystemInfoCollected != nil && *c.SystemInfoCollected
}

// PromptEvent is one immutable entry of a prompt log. Timestamp is in
// milliseconds since the epoch and is supplied by the caller, so it may
// repeat or arrive out of order. ExchangeID is empty for imported rows.
type PromptEvent struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
	Timestamp      int64  `json:"timestamp"`
	ExchangeID     string `json:"exchange_id,omitempty"`
}

// Usage is the latest token accounting reported for a conversation.
type Usage struct {
	CacheCreationInputTokens            int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens                int64 `json:"cache_read_input_tokens"`
	OutputTokens                        int64 `json:"output_tokens"`
	Ephemeral1hInputTokens              int64 `json:"ephemeral_1h_input_tokens"`
	CacheCreationEphemeral5mInputTokens int64 `json:"cache_creation_ephemeral_5m_input_tokens"`
	CacheCreationEphemeral1hInputTokens int64 `json:"cache_creation_ephemeral_1h_input_tokens"`
}

// SystemInfo is the latest system snapshot of a session. SystemData and
// WebhookResponse are opaque JSON documents.
type SystemInfo struct {
	SessionID       string          `json:"session_id"       validate:"required,max=512"`
	SystemData      json.RawMessage `json:"system_data"      validate:"required"`
	WebhookResponse json.RawMessage `json:"webhook_response,omitempty"`
	Timestamp       int64           `json:"timestamp"        validate:"gte=0"`
}

// Store is the persistence boundary of the package. Find* methods return
// (nil, nil) when nothing matches. Insert* methods never overwrite: they
// report false when a row for the key already exists.
type Store interface {
	FindConversationBySession(ctx context.Context, sessionID string) (*Conversation, error)
	// InsertConversation returns the row that owns the session after the
	// insert, which is an existing row if another writer got there first.
	InsertConversation(ctx context.Context, c Conversation) (*Conversation, error)
	SetSystemInfoCollected(ctx context.Context, conversationID string) error
	AppendPrompt(ctx context.Context, kind Kind, e PromptEvent) error
	// ListPrompts returns the log ordered by timestamp, stable on ties.
	ListPrompts(ctx context.Context, conversationID string, kind Kind) ([]PromptEvent, error)

	FindUsage(ctx context.Context, conversationID string) (*Usage, error)
	InsertUsage(ctx context.Context, conversationID string, u Usage) (bool, error)
	PatchUsage(ctx context.Context, conversationID string, u Usage) error

	FindSystemInfo(ctx context.Context, sessionID string) (*SystemInfo, error)
	InsertSystemInfo(ctx context.Context, info SystemInfo) (bool, error)
	PatchSystemInfo(ctx context.Context, info SystemInfo) error

	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, limit, offset int) ([]Conversation, error)
	ListSystemInfo(ctx context.Context, limit int) ([]SystemInfo, error)
	TotalOutputTokens(ctx context.Context) (int64, error)
}
