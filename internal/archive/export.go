package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/allaspectsdev/promptstudio/internal/session"
)

// Record is one exported conversation, written as a single JSONL line.
type Record struct {
	Conversation session.Conversation  `json:"conversation"`
	Stats        session.Stats         `json:"stats"`
	Original     []session.PromptEvent `json:"original"`
	Rewritten    []session.PromptEvent `json:"rewritten"`
	Usage        *session.Usage        `json:"usage,omitempty"`
	SystemInfo   *session.SystemInfo   `json:"system_info,omitempty"`
}

// Source is the read side of session.Service used by Export.
type Source interface {
	ListConversations(ctx context.Context, limit, offset int) ([]session.ConversationSummary, error)
	Logs(ctx context.Context, conversationID string) ([]session.PromptEvent, []session.PromptEvent, error)
	UsageFor(ctx context.Context, conversationID string) (*session.Usage, error)
	SystemInfoFor(ctx context.Context, sessionID string) (*session.SystemInfo, error)
}

const exportPage = 200

// Export writes every conversation to w, newest first, and returns how
// many were written.
func Export(ctx context.Context, src Source, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	n := 0
	for offset := 0; ; offset += exportPage {
		page, err := src.ListConversations(ctx, exportPage, offset)
		if err != nil {
			return n, fmt.Errorf("archive: list conversations: %w", err)
		}
		for _, c := range page {
			rec, err := buildRecord(ctx, src, c)
			if err != nil {
				return n, err
			}
			if err := enc.Encode(rec); err != nil {
				return n, fmt.Errorf("archive: write record: %w", err)
			}
			n++
		}
		if len(page) < exportPage {
			return n, nil
		}
	}
}

func buildRecord(ctx context.Context, src Source, c session.ConversationSummary) (*Record, error) {
	originals, rewrites, err := src.Logs(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("archive: logs of %s: %w", c.ID, err)
	}
	usage, err := src.UsageFor(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("archive: usage of %s: %w", c.ID, err)
	}
	info, err := src.SystemInfoFor(ctx, c.SessionID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return nil, fmt.Errorf("archive: system info of %s: %w", c.SessionID, err)
	}
	if originals == nil {
		originals = []session.PromptEvent{}
	}
	if rewrites == nil {
		rewrites = []session.PromptEvent{}
	}
	return &Record{
		Conversation: c.Conversation,
		Stats:        c.Stats,
		Original:     originals,
		Rewritten:    rewrites,
		Usage:        usage,
		SystemInfo:   info,
	}, nil
}
