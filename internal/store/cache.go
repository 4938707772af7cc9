package store

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/sqlscan"
)

// AdviceEntry is a persisted advice response keyed by the content hash of
// the prompt pairs it was computed from.
type AdviceEntry struct {
	Key            string `db:"key"`
	ConversationID string `db:"conversation_id"`
	Body           []byte `db:"body"`
	CreatedAt      int64  `db:"created_at"`
	ExpiresAt      int64  `db:"expires_at"`
	HitCount       int64  `db:"hit_count"`
}

// GetAdvice retrieves a cached advice entry by key.
// Returns ErrNotFound (wrapped) if the key does not exist.
func (s *Store) GetAdvice(ctx context.Context, key string) (*AdviceEntry, error) {
	var e AdviceEntry
	err := sqlscan.Get(ctx, s.reader, &e, `
		SELECT key, conversation_id, body, created_at, expires_at, hit_count
		FROM advice_cache WHERE key = ?`, key)
	if err != nil {
		return nil, lookupErr("get advice "+key, err)
	}
	return &e, nil
}

// SetAdvice inserts or replaces an advice entry.
func (s *Store) SetAdvice(ctx context.Context, e *AdviceEntry) error {
	_, err := s.writer.ExecContext(ctx, `
		INSERT OR REPLACE INTO advice_cache (key, conversation_id, body, created_at, expires_at, hit_count)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Key, e.ConversationID, e.Body, e.CreatedAt, e.ExpiresAt, e.HitCount,
	)
	if err != nil {
		return fmt.Errorf("store: set advice: %w", err)
	}
	return nil
}

// IncrementAdviceHits bumps the hit counter of an entry.
func (s *Store) IncrementAdviceHits(ctx context.Context, key string) error {
	result, err := s.writer.ExecContext(ctx, `UPDATE advice_cache SET hit_count = hit_count + 1 WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("store: increment advice hits: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: increment advice hits rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: increment advice hits %s: %w", key, ErrNotFound)
	}
	return nil
}

// DeleteExpiredAdvice removes entries whose expiry is in the past and
// returns how many were deleted.
func (s *Store) DeleteExpiredAdvice(ctx context.Context) (int64, error) {
	result, err := s.writer.ExecContext(ctx, `DELETE FROM advice_cache WHERE expires_at < ?`, nowMillis())
	if err != nil {
		return 0, fmt.Errorf("store: delete expired advice: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: delete expired advice rows affected: %w", err)
	}
	return n, nil
}
