package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/georgysavva/scany/v2/sqlscan"
)

// Conversation is one row of the conversations table. SystemInfoCollected
// stays NULL until the session's one-time enrichment has run.
type Conversation struct {
	ID                  string       `db:"id"`
	SessionID           string       `db:"session_id"`
	SystemInfoCollected sql.NullBool `db:"system_info_collected"`
	CreatedAt           int64        `db:"created_at"`
}

const conversationColumns = `id, session_id, system_info_collected, created_at`

// GetConversationBySession looks up the conversation owned by sessionID.
// Returns ErrNotFound (wrapped) if the session has never written.
func (s *Store) GetConversationBySession(ctx context.Context, sessionID string) (*Conversation, error) {
	return s.getConversationBySession(ctx, s.reader, sessionID)
}

func (s *Store) getConversationBySession(ctx context.Context, db sqlscan.Querier, sessionID string) (*Conversation, error) {
	var c Conversation
	err := sqlscan.Get(ctx, db, &c, `SELECT `+conversationColumns+` FROM conversations WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, lookupErr("get conversation for session "+sessionID, err)
	}
	return &c, nil
}

// GetConversation retrieves a conversation by its id.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	err := sqlscan.Get(ctx, s.reader, &c, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	if err != nil {
		return nil, lookupErr("get conversation "+id, err)
	}
	return &c, nil
}

// InsertConversation creates the conversation for c.SessionID unless one
// already exists, and returns whichever row owns the session afterwards.
// Concurrent first writes for the same session therefore converge on a
// single id.
func (s *Store) InsertConversation(ctx context.Context, c *Conversation) (*Conversation, error) {
	_, err := s.writer.ExecContext(ctx, `
		INSERT INTO conversations (id, session_id, system_info_collected, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING`,
		c.ID, c.SessionID, c.SystemInfoCollected, c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("store: insert conversation: %w", err)
	}
	return s.getConversationBySession(ctx, s.writer, c.SessionID)
}

// SetSystemInfoCollected flips the enrichment flag of a conversation from
// unset to set. It reports whether this call changed the row.
func (s *Store) SetSystemInfoCollected(ctx context.Context, conversationID string) (bool, error) {
	result, err := s.writer.ExecContext(ctx, `
		UPDATE conversations SET system_info_collected = 1
		WHERE id = ? AND (system_info_collected IS NULL OR system_info_collected = 0)`,
		conversationID,
	)
	if err != nil {
		return false, fmt.Errorf("store: set system info collected: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: set system info collected rows affected: %w", err)
	}
	return n > 0, nil
}

// ListConversations returns conversations newest first.
func (s *Store) ListConversations(ctx context.Context, limit, offset int) ([]Conversation, error) {
	var out []Conversation
	err := sqlscan.Select(ctx, s.reader, &out, `
		SELECT `+conversationColumns+` FROM conversations
		ORDER BY created_at DESC, id ASC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	return out, nil
}

// CountConversations returns the number of conversations.
func (s *Store) CountConversations(ctx context.Context) (int64, error) {
	var n int64
	if err := s.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count conversations: %w", err)
	}
	return n, nil
}
