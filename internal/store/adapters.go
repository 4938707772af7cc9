package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allaspectsdev/promptstudio/internal/cache"
	"github.com/allaspectsdev/promptstudio/internal/session"
	"github.com/allaspectsdev/promptstudio/internal/tracing"
)

// SessionAdapter adapts Store to the session.Store interface. Every call
// runs inside a store span.
type SessionAdapter struct {
	store *Store
}

var _ session.Store = (*SessionAdapter)(nil)

// NewSessionAdapter creates a new SessionAdapter wrapping the given Store.
func NewSessionAdapter(s *Store) *SessionAdapter {
	return &SessionAdapter{store: s}
}

func toSessionConversation(c *Conversation) *session.Conversation {
	out := &session.Conversation{
		ID:        c.ID,
		SessionID: c.SessionID,
		CreatedAt: c.CreatedAt,
	}
	if c.SystemInfoCollected.Valid {
		v := c.SystemInfoCollected.Bool
		out.SystemInfoCollected = &v
	}
	return out
}

func logFor(kind session.Kind) (PromptLog, error) {
	switch kind {
	case session.KindOriginal:
		return LogOriginal, nil
	case session.KindRewritten:
		return LogRewritten, nil
	default:
		return "", fmt.Errorf("store: unknown prompt kind %q", string(kind))
	}
}

// absent maps ErrNotFound to a nil error so Find* can return (nil, nil).
func absent(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// FindConversationBySession returns the session's conversation or nil.
func (a *SessionAdapter) FindConversationBySession(ctx context.Context, sessionID string) (_ *session.Conversation, err error) {
	ctx, span := tracing.StartStoreSpan(ctx, "find_conversation")
	defer func() { tracing.End(span, err) }()

	c, err := a.store.GetConversationBySession(ctx, sessionID)
	if err != nil {
		return nil, absent(err)
	}
	return toSessionConversation(c), nil
}

// GetConversation returns the conversation with the given id or nil.
func (a *SessionAdapter) GetConversation(ctx context.Context, id string) (_ *session.Conversation, err error) {
	ctx, span := tracing.StartStoreSpan(ctx, "get_conversation")
	defer func() { tracing.End(span, err) }()

	c, err := a.store.GetConversation(ctx, id)
	if err != nil {
		return nil, absent(err)
	}
	return toSessionConversation(c), nil
}

// InsertConversation creates the conversation unless the session already
// owns one, returning the owning row either way.
func (a *SessionAdapter) InsertConversation(ctx context.Context, c session.Conversation) (_ *session.Conversation, err error) {
	ctx, span := tracing.StartStoreSpan(ctx, "insert_conversation")
	defer func() { tracing.End(span, err) }()

	row := &Conversation{ID: c.ID, SessionID: c.SessionID, CreatedAt: c.CreatedAt}
	if c.SystemInfoCollected != nil {
		row.SystemInfoCollected = sql.NullBool{Bool: *c.SystemInfoCollected, Valid: true}
	}
	got, err := a.store.InsertConversation(ctx, row)
	if err != nil {
		return nil, err
	}
	return toSessionConversation(got), nil
}

// SetSystemInfoCollected sets the enrichment flag.
func (a *SessionAdapter) SetSystemInfoCollected(ctx context.Context, conversationID string) (err error) {
	ctx, span := tracing.StartStoreSpan(ctx, "set_system_info_collected")
	defer func() { tracing.End(span, err) }()

	_, err = a.store.SetSystemInfoCollected(ctx, conversationID)
	return err
}

// ListConversations returns conversations newest first.
func (a *SessionAdapter) ListConversations(ctx context.Context, limit, offset int) (_ []session.Conversation, err error) {
	ctx, span := tracing.StartStoreSpan(ctx, "list_conversations")
	defer func() { tracing.End(span, err) }()

	rows, err := a.store.ListConversations(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]session.Conversation, 0, len(rows))
	for i := range rows {
		out = append(out, *toSessionConversation(&rows[i]))
	}
	return out, nil
}

// AppendPrompt appends an entry to the log selected by kind.
func (a *SessionAdapter) AppendPrompt(ctx context.Context, kind session.Kind, e session.PromptEvent) (err error) {
	ctx, span := tracing.StartStoreSpan(ctx, "append_prompt")
	defer func() { tracing.End(span, err) }()

	log, err := logFor(kind)
	if err != nil {
		return err
	}
	return a.store.InsertPrompt(ctx, log, &Prompt{
		ConversationID: e.ConversationID,
		Text:           e.Text,
		Timestamp:      e.Timestamp,
		ExchangeID:     e.ExchangeID,
	})
}

// ListPrompts returns a log ordered by timestamp.
func (a *SessionAdapter) ListPrompts(ctx context.Context, conversationID string, kind session.Kind) (_ []session.PromptEvent, err error) {
	ctx, span := tracing.StartStoreSpan(ctx, "list_prompts")
	defer func() { tracing.End(span, err) }()

	log, err := logFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := a.store.ListPrompts(ctx, log, conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]session.PromptEvent, 0, len(rows))
	for _, p := range rows {
		out = append(out, session.PromptEvent{
			ConversationID: p.ConversationID,
			Text:           p.Text,
			Timestamp:      p.Timestamp,
			ExchangeID:     p.ExchangeID,
		})
	}
	return out, nil
}

func toStoreUsage(conversationID string, u session.Usage) *Usage {
	return &Usage{
		ConversationID:                      conversationID,
		CacheCreationInputTokens:            u.CacheCreationInputTokens,
		CacheReadInputTokens:                u.CacheReadInputTokens,
		OutputTokens:                        u.OutputTokens,
		Ephemeral1hInputTokens:              u.Ephemeral1hInputTokens,
		CacheCreationEphemeral5mInputTokens: u.CacheCreationEphemeral5mInputTokens,
		CacheCreationEphemeral1hInputTokens: u.CacheCreationEphemeral1hInputTokens,
	}
}

// FindUsage returns the conversation's usage snapshot or nil.
func (a *SessionAdapter) FindUsage(ctx context.Context, conversationID string) (_ *session.Usage, err error) {
	ctx, span := tracing.StartStoreSpan(ctx, "find_usage")
	defer func() { tracing.End(span, err) }()

	u, err := a.store.GetUsage(ctx, conversationID)
	if err != nil {
		return nil, absent(err)
	}
	return &session.Usage{
		CacheCreationInputTokens:            u.CacheCreationInputTokens,
		CacheReadInputTokens:                u.CacheReadInputTokens,
		OutputTokens:                        u.OutputTokens,
		Ephemeral1hInputTokens:              u.Ephemeral1hInputTokens,
		CacheCreationEphemeral5mInputTokens: u.CacheCreationEphemeral5mInputTokens,
		CacheCreationEphemeral1hInputTokens: u.CacheCreationEphemeral1hInputTokens,
	}, nil
}

// InsertUsage stores a first snapshot.
func (a *SessionAdapter) InsertUsage(ctx context.Context, conversationID string, u session.Usage) (_ bool, err error) {
	ctx, span := tracing.StartStoreSpan(ctx, "insert_usage")
	defer func() { tracing.End(span, err) }()

	return a.store.InsertUsage(ctx, toStoreUsage(conversationID, u))
}

// PatchUsage overwrites an existing snapshot.
func (a *SessionAdapter) PatchUsage(ctx context.Context, conversationID string, u session.Usage) (err error) {
	ctx, span := tracing.StartStoreSpan(ctx, "patch_usage")
	defer func() { tracing.End(span, err) }()

	return a.store.PatchUsage(ctx, toStoreUsage(conversationID, u))
}

// TotalOutputTokens sums output tokens over all snapshots.
func (a *SessionAdapter) TotalOutputTokens(ctx context.Context) (int64, error) {
	return a.store.TotalOutputTokens(ctx)
}

func toStoreSystemInfo(info session.SystemInfo) *SystemInfo {
	row := &SystemInfo{
		SessionID:  info.SessionID,
		SystemData: string(info.SystemData),
		Timestamp:  info.Timestamp,
	}
	if len(info.WebhookResponse) > 0 {
		row.WebhookResponse = sql.NullString{String: string(info.WebhookResponse), Valid: true}
	}
	return row
}

func toSessionSystemInfo(row *SystemInfo) session.SystemInfo {
	info := session.SystemInfo{
		SessionID:  row.SessionID,
		SystemData: json.RawMessage(row.SystemData),
		Timestamp:  row.Timestamp,
	}
	if row.WebhookResponse.Valid {
		info.WebhookResponse = json.RawMessage(row.WebhookResponse.String)
	}
	return info
}

// FindSystemInfo returns the session's snapshot or nil.
func (a *SessionAdapter) FindSystemInfo(ctx context.Context, sessionID string) (_ *session.SystemInfo, err error) {
	ctx, span := tracing.StartStoreSpan(ctx, "find_system_info")
	defer func() { tracing.End(span, err) }()

	row, err := a.store.GetSystemInfo(ctx, sessionID)
	if err != nil {
		return nil, absent(err)
	}
	info := toSessionSystemInfo(row)
	return &info, nil
}

// InsertSystemInfo stores a first snapshot.
func (a *SessionAdapter) InsertSystemInfo(ctx context.Context, info session.SystemInfo) (_ bool, err error) {
	ctx, span := tracing.StartStoreSpan(ctx, "insert_system_info")
	defer func() { tracing.End(span, err) }()

	return a.store.InsertSystemInfo(ctx, toStoreSystemInfo(info))
}

// PatchSystemInfo overwrites an existing snapshot.
func (a *SessionAdapter) PatchSystemInfo(ctx context.Context, info session.SystemInfo) (err error) {
	ctx, span := tracing.StartStoreSpan(ctx, "patch_system_info")
	defer func() { tracing.End(span, err) }()

	return a.store.PatchSystemInfo(ctx, toStoreSystemInfo(info))
}

// ListSystemInfo returns snapshots newest first.
func (a *SessionAdapter) ListSystemInfo(ctx context.Context, limit int) ([]session.SystemInfo, error) {
	rows, err := a.store.ListSystemInfo(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]session.SystemInfo, 0, len(rows))
	for i := range rows {
		out = append(out, toSessionSystemInfo(&rows[i]))
	}
	return out, nil
}

// CacheAdapter adapts Store to cache.Store for the advice cache.
type CacheAdapter struct {
	store *Store
}

var _ cache.Store = (*CacheAdapter)(nil)

// NewCacheAdapter creates a new CacheAdapter wrapping the given Store.
func NewCacheAdapter(s *Store) *CacheAdapter {
	return &CacheAdapter{store: s}
}

// GetEntry retrieves an advice entry by key.
func (a *CacheAdapter) GetEntry(ctx context.Context, key string) (*cache.Entry, error) {
	e, err := a.store.GetAdvice(ctx, key)
	if err != nil {
		return nil, err
	}
	var advice []string
	if err := json.Unmarshal(e.Body, &advice); err != nil {
		return nil, fmt.Errorf("store: decode advice %s: %w", key, err)
	}
	// Hit accounting is best effort.
	_ = a.store.IncrementAdviceHits(ctx, key)
	return &cache.Entry{
		ConversationID: e.ConversationID,
		Advice:         advice,
		CreatedAt:      time.UnixMilli(e.CreatedAt),
		ExpiresAt:      time.UnixMilli(e.ExpiresAt),
	}, nil
}

// SetEntry stores an advice entry.
func (a *CacheAdapter) SetEntry(ctx context.Context, key string, entry *cache.Entry) error {
	body, err := json.Marshal(entry.Advice)
	if err != nil {
		return fmt.Errorf("store: encode advice: %w", err)
	}
	return a.store.SetAdvice(ctx, &AdviceEntry{
		Key:            key,
		ConversationID: entry.ConversationID,
		Body:           body,
		CreatedAt:      entry.CreatedAt.UnixMilli(),
		ExpiresAt:      entry.ExpiresAt.UnixMilli(),
	})
}

// DeleteExpired removes all expired advice entries.
func (a *CacheAdapter) DeleteExpired(ctx context.Context) error {
	_, err := a.store.DeleteExpiredAdvice(ctx)
	return err
}
