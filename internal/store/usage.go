package store

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/sqlscan"
)

// Usage is the latest token-usage snapshot of a conversation.
type Usage struct {
	ConversationID                      string `db:"conversation_id"`
	CacheCreationInputTokens            int64  `db:"cache_creation_input_tokens"`
	CacheReadInputTokens                int64  `db:"cache_read_input_tokens"`
	OutputTokens                        int64  `db:"output_tokens"`
	Ephemeral1hInputTokens              int64  `db:"ephemeral_1h_input_tokens"`
	CacheCreationEphemeral5mInputTokens int64  `db:"cache_creation_ephemeral_5m_input_tokens"`
	CacheCreationEphemeral1hInputTokens int64  `db:"cache_creation_ephemeral_1h_input_tokens"`
	UpdatedAt                           int64  `db:"updated_at"`
}

// GetUsage returns the usage snapshot of a conversation.
// Returns ErrNotFound (wrapped) if none was recorded.
func (s *Store) GetUsage(ctx context.Context, conversationID string) (*Usage, error) {
	var u Usage
	err := sqlscan.Get(ctx, s.reader, &u, `
		SELECT conversation_id, cache_creation_input_tokens, cache_read_input_tokens,
		       output_tokens, ephemeral_1h_input_tokens,
		       cache_creation_ephemeral_5m_input_tokens, cache_creation_ephemeral_1h_input_tokens,
		       updated_at
		FROM usage WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return nil, lookupErr("get usage", err)
	}
	return &u, nil
}

// InsertUsage stores a new snapshot. It reports false without error when a
// snapshot for the conversation already exists.
func (s *Store) InsertUsage(ctx context.Context, u *Usage) (bool, error) {
	if u.UpdatedAt == 0 {
		u.UpdatedAt = nowMillis()
	}
	result, err := s.writer.ExecContext(ctx, `
		INSERT INTO usage (
			conversation_id, cache_creation_input_tokens, cache_read_input_tokens,
			output_tokens, ephemeral_1h_input_tokens,
			cache_creation_ephemeral_5m_input_tokens, cache_creation_ephemeral_1h_input_tokens,
			updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO NOTHING`,
		u.ConversationID, u.CacheCreationInputTokens, u.CacheReadInputTokens,
		u.OutputTokens, u.Ephemeral1hInputTokens,
		u.CacheCreationEphemeral5mInputTokens, u.CacheCreationEphemeral1hInputTokens,
		u.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("store: insert usage: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: insert usage rows affected: %w", err)
	}
	return n > 0, nil
}

// PatchUsage overwrites all six counters of an existing snapshot.
// Returns ErrNotFound (wrapped) if there is nothing to patch.
func (s *Store) PatchUsage(ctx context.Context, u *Usage) error {
	if u.UpdatedAt == 0 {
		u.UpdatedAt = nowMillis()
	}
	result, err := s.writer.ExecContext(ctx, `
		UPDATE usage SET
			cache_creation_input_tokens = ?,
			cache_read_input_tokens = ?,
			output_tokens = ?,
			ephemeral_1h_input_tokens = ?,
			cache_creation_ephemeral_5m_input_tokens = ?,
			cache_creation_ephemeral_1h_input_tokens = ?,
			updated_at = ?
		WHERE conversation_id = ?`,
		u.CacheCreationInputTokens, u.CacheReadInputTokens,
		u.OutputTokens, u.Ephemeral1hInputTokens,
		u.CacheCreationEphemeral5mInputTokens, u.CacheCreationEphemeral1hInputTokens,
		u.UpdatedAt, u.ConversationID,
	)
	if err != nil {
		return fmt.Errorf("store: patch usage: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: patch usage rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: patch usage %s: %w", u.ConversationID, ErrNotFound)
	}
	return nil
}

// TotalOutputTokens sums output_tokens across every usage snapshot.
func (s *Store) TotalOutputTokens(ctx context.Context) (int64, error) {
	var total int64
	err := s.reader.QueryRowContext(ctx, `SELECT COALESCE(SUM(output_tokens), 0) FROM usage`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("store: total output tokens: %w", err)
	}
	return total, nil
}
