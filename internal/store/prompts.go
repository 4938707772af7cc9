package store

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/sqlscan"
)

// PromptLog names one of the two append-only prompt logs.
type PromptLog string

const (
	// LogOriginal holds the prompts exactly as the user typed them.
	LogOriginal PromptLog = "prompts"
	// LogRewritten holds the AI-rewritten counterparts.
	LogRewritten PromptLog = "ai_prompts"
)

func (l PromptLog) table() (string, error) {
	switch l {
	case LogOriginal, LogRewritten:
		return string(l), nil
	default:
		return "", fmt.Errorf("store: unknown prompt log %q", string(l))
	}
}

// Prompt is one immutable entry of a prompt log.
type Prompt struct {
	ID             int64  `db:"id"`
	ConversationID string `db:"conversation_id"`
	Text           string `db:"text"`
	Timestamp      int64  `db:"timestamp"`
	ExchangeID     string `db:"exchange_id"`
}

// InsertPrompt appends p to the given log.
func (s *Store) InsertPrompt(ctx context.Context, log PromptLog, p *Prompt) error {
	table, err := log.table()
	if err != nil {
		return err
	}
	result, err := s.writer.ExecContext(ctx,
		`INSERT INTO `+table+` (conversation_id, text, timestamp, exchange_id) VALUES (?, ?, ?, ?)`,
		p.ConversationID, p.Text, p.Timestamp, p.ExchangeID,
	)
	if err != nil {
		return fmt.Errorf("store: insert into %s: %w", table, err)
	}
	if id, err := result.LastInsertId(); err == nil {
		p.ID = id
	}
	return nil
}

// ListPrompts returns every entry of a conversation's log ordered by
// timestamp, with insertion order breaking ties.
func (s *Store) ListPrompts(ctx context.Context, log PromptLog, conversationID string) ([]Prompt, error) {
	table, err := log.table()
	if err != nil {
		return nil, err
	}
	var out []Prompt
	err = sqlscan.Select(ctx, s.reader, &out, `
		SELECT id, conversation_id, text, timestamp, exchange_id FROM `+table+`
		WHERE conversation_id = ?
		ORDER BY timestamp ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", table, err)
	}
	return out, nil
}

// CountPrompts returns the number of entries in a log. An empty
// conversationID counts across all conversations.
func (s *Store) CountPrompts(ctx context.Context, log PromptLog, conversationID string) (int64, error) {
	table, err := log.table()
	if err != nil {
		return 0, err
	}
	q := `SELECT COUNT(*) FROM ` + table
	var args []interface{}
	if conversationID != "" {
		q += ` WHERE conversation_id = ?`
		args = append(args, conversationID)
	}
	var n int64
	if err := s.reader.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count %s: %w", table, err)
	}
	return n, nil
}
