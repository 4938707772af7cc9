package store

import (
	"context"
	"fmt"
)

// Totals holds row counts across the whole database.
type Totals struct {
	Conversations     int64 `json:"conversations"`
	Prompts           int64 `json:"prompts"`
	AIPrompts         int64 `json:"ai_prompts"`
	UsageSnapshots    int64 `json:"usage_snapshots"`
	SystemInfo        int64 `json:"system_info"`
	Enriched          int64 `json:"enriched_conversations"`
	TotalOutputTokens int64 `json:"total_output_tokens"`
}

// Stats computes Totals in a single query.
func (s *Store) Stats(ctx context.Context) (*Totals, error) {
	t := &Totals{}
	err := s.reader.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM conversations),
			(SELECT COUNT(*) FROM prompts),
			(SELECT COUNT(*) FROM ai_prompts),
			(SELECT COUNT(*) FROM usage),
			(SELECT COUNT(*) FROM system_info),
			(SELECT COUNT(*) FROM conversations WHERE system_info_collected = 1),
			(SELECT COALESCE(SUM(output_tokens), 0) FROM usage)`,
	).Scan(
		&t.Conversations, &t.Prompts, &t.AIPrompts,
		&t.UsageSnapshots, &t.SystemInfo, &t.Enriched, &t.TotalOutputTokens,
	)
	if err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	return t, nil
}
