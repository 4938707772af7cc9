package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/allaspectsdev/promptstudio/internal/session"
)

// TranscriptPrompt is one user turn read from a transcript.
type TranscriptPrompt struct {
	Text      string
	Timestamp int64
}

type transcriptEvent struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
	Message   *struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

// maxLine bounds one transcript line; tool results can be large.
const maxLine = 16 << 20

// ReadTranscript reads a JSONL transcript and returns its user turns in
// file order. Lines that are not JSON, not user events, or have no text
// are skipped. now stamps events without a usable timestamp.
func ReadTranscript(r io.Reader, now func() time.Time) ([]TranscriptPrompt, int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)

	var (
		out     []TranscriptPrompt
		skipped int
	)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var evt transcriptEvent
		if err := json.Unmarshal([]byte(line), &evt); err != nil || evt.Type != "user" {
			skipped++
			continue
		}
		var content json.RawMessage
		if evt.Message != nil {
			content = evt.Message.Content
		}
		text := extractText(content)
		if strings.TrimSpace(text) == "" {
			skipped++
			continue
		}
		out = append(out, TranscriptPrompt{Text: text, Timestamp: parseTimestamp(evt.Timestamp, now)})
	}
	if err := sc.Err(); err != nil {
		return out, skipped, fmt.Errorf("archive: reading transcript: %w", err)
	}
	return out, skipped, nil
}

// extractText accepts a string, an array of parts with text fields joined
// by spaces, or an object with a text field.
func extractText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(content, &parts); err == nil {
		texts := make([]string, len(parts))
		for i, p := range parts {
			texts[i] = textField(p)
		}
		return strings.Join(texts, " ")
	}
	return textField(content)
}

func textField(raw json.RawMessage) string {
	var obj struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.Text == nil {
		return ""
	}
	return *obj.Text
}

// parseTimestamp reads an ISO 8601 string or epoch milliseconds.
func parseTimestamp(raw json.RawMessage, now func() time.Time) int64 {
	if len(raw) == 0 || string(raw) == "null" {
		return now().UnixMilli()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UnixMilli()
			}
		}
		return now().UnixMilli()
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0 {
		return int64(f)
	}
	return now().UnixMilli()
}

// Appender is the write side of session.Service used by Seed.
type Appender interface {
	UpsertAndAppend(ctx context.Context, sessionID string, prompt, aiPrompt *string, ts int64) (string, error)
}

// SeedResult counts what Seed wrote.
type SeedResult struct {
	ConversationID string
	Imported       int
	Failed         int
}

// Seed appends each prompt to the session's original log. A failed append
// is counted and the import continues.
func Seed(ctx context.Context, dst Appender, sessionID string, prompts []TranscriptPrompt) (*SeedResult, error) {
	if err := session.CheckSessionID(sessionID); err != nil {
		return nil, err
	}
	res := &SeedResult{}
	for _, p := range prompts {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		text := p.Text
		id, err := dst.UpsertAndAppend(ctx, sessionID, &text, nil, p.Timestamp)
		if err != nil {
			res.Failed++
			continue
		}
		res.ConversationID = id
		res.Imported++
	}
	return res, nil
}
