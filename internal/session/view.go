package session

import (
	"context"
	"errors"
	"fmt"
)

// ConversationSummary is a list entry for the dashboard.
type ConversationSummary struct {
	Conversation
	Stats Stats `json:"stats"`
}

// ConversationDetail is a conversation with both logs paired for display.
type ConversationDetail struct {
	Conversation Conversation `json:"conversation"`
	Stats        Stats        `json:"stats"`
	Strategy     Strategy     `json:"strategy"`
	Rows         []PairedRow  `json:"rows"`
	Usage        *Usage       `json:"usage,omitempty"`
}

// ListConversations returns conversations newest first with their stats.
func (s *Service) ListConversations(ctx context.Context, limit, offset int) ([]ConversationSummary, error) {
	convs, err := s.store.ListConversations(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		originals, rewrites, err := s.logs(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ConversationSummary{Conversation: c, Stats: ComputeStats(originals, rewrites)})
	}
	return out, nil
}

// Detail loads one conversation and pairs its logs with strategy.
// Returns ErrNotFound if the id is unknown.
func (s *Service) Detail(ctx context.Context, conversationID string, strategy Strategy) (*ConversationDetail, error) {
	c, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}

	originals, rewrites, err := s.logs(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	usage, err := s.store.FindUsage(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	return &ConversationDetail{
		Conversation: *c,
		Stats:        ComputeStats(originals, rewrites),
		Strategy:     strategy,
		Rows:         Reconcile(strategy, originals, rewrites),
		Usage:        usage,
	}, nil
}

// Logs returns both prompt logs of a conversation ordered by timestamp.
func (s *Service) Logs(ctx context.Context, conversationID string) (originals, rewrites []PromptEvent, err error) {
	return s.logs(ctx, conversationID)
}

func (s *Service) logs(ctx context.Context, conversationID string) ([]PromptEvent, []PromptEvent, error) {
	originals, err := s.store.ListPrompts(ctx, conversationID, KindOriginal)
	if err != nil {
		return nil, nil, err
	}
	rewrites, err := s.store.ListPrompts(ctx, conversationID, KindRewritten)
	if err != nil {
		return nil, nil, err
	}
	return originals, rewrites, nil
}

// TotalOutputTokens sums output tokens over every usage snapshot.
func (s *Service) TotalOutputTokens(ctx context.Context) (int64, error) {
	return s.store.TotalOutputTokens(ctx)
}

// UsageFor returns the usage snapshot of a conversation, or nil.
func (s *Service) UsageFor(ctx context.Context, conversationID string) (*Usage, error) {
	return s.store.FindUsage(ctx, conversationID)
}

// SystemInfoFor returns the session's snapshot. Returns ErrNotFound if
// none was stored.
func (s *Service) SystemInfoFor(ctx context.Context, sessionID string) (*SystemInfo, error) {
	info, err := s.store.FindSystemInfo(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("system info for %s: %w", sessionID, ErrNotFound)
	}
	return info, nil
}

// HasSystemInfo reports whether a snapshot exists for the session.
func (s *Service) HasSystemInfo(ctx context.Context, sessionID string) (bool, error) {
	_, err := s.SystemInfoFor(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ListSystemInfo returns up to limit snapshots, newest first.
func (s *Service) ListSystemInfo(ctx context.Context, limit int) ([]SystemInfo, error) {
	return s.store.ListSystemInfo(ctx, limit)
}
