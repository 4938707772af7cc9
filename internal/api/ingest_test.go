package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/allaspectsdev/promptstudio/internal/config"
	"github.com/allaspectsdev/promptstudio/internal/session"
	"github.com/allaspectsdev/promptstudio/internal/store"
	"github.com/allaspectsdev/promptstudio/internal/testutil"
)

type ingestReply struct {
	OK             bool   `json:"ok"`
	ConversationID string `json:"conversationId"`
	ExchangeID     string `json:"exchangeId"`
}

type errorReply struct {
	Error          string          `json:"error"`
	Details        string          `json:"details"`
	Operation      string          `json:"operation"`
	SessionID      string          `json:"sessionId"`
	ConversationID string          `json:"conversationId"`
	UsageData      json.RawMessage `json:"usageData"`
}

func TestIngest_PromptPair(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(t, http.MethodPost, "/api/ingest", testutil.IngestBody("s-1", "make it faster", "Optimise the hot loop."))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (%s)", w.Code, http.StatusOK, w.Body.String())
	}
	var first ingestReply
	decode(t, w, &first)
	if !first.OK || first.ConversationID == "" || first.ExchangeID == "" {
		t.Fatalf("reply: got %+v", first)
	}

	w = ts.do(t, http.MethodPost, "/api/update-convex", testutil.IngestBody("s-1", "again", ""))
	var second ingestReply
	decode(t, w, &second)
	if second.ConversationID != first.ConversationID {
		t.Errorf("conversationId: got %q, want %q", second.ConversationID, first.ConversationID)
	}
	if second.ExchangeID == first.ExchangeID {
		t.Error("each request should get its own exchange id")
	}

	originals, rewrites, err := ts.svc.Logs(context.Background(), first.ConversationID)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if len(originals) != 2 || len(rewrites) != 1 {
		t.Errorf("logs: got %d originals and %d rewrites, want 2 and 1", len(originals), len(rewrites))
	}
}

func TestIngest_SameSessionTwice(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(t, http.MethodPost, "/api/ingest", []byte(`{"session_id":"s1","prompt":"hello"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("first status: got %d, want %d (%s)", w.Code, http.StatusOK, w.Body.String())
	}
	var first ingestReply
	decode(t, w, &first)

	w = ts.do(t, http.MethodPost, "/api/ingest", []byte(`{"session_id":"s1","prompt":"world"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("second status: got %d, want %d (%s)", w.Code, http.StatusOK, w.Body.String())
	}
	var second ingestReply
	decode(t, w, &second)
	if second.ConversationID != first.ConversationID {
		t.Errorf("conversationId: got %q, want %q", second.ConversationID, first.ConversationID)
	}

	originals, _, err := ts.svc.Logs(context.Background(), first.ConversationID)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if len(originals) != 2 || originals[0].Text != "hello" || originals[1].Text != "world" {
		t.Errorf("originals: got %+v", originals)
	}
}

func TestIngest_Touch(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(t, http.MethodPost, "/api/ingest", []byte(`{"sessionId":"s-touch","prompt":"   "}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (%s)", w.Code, http.StatusOK, w.Body.String())
	}
	var reply ingestReply
	decode(t, w, &reply)
	if reply.ExchangeID != "" {
		t.Errorf("exchangeId: got %q, want empty for a touch", reply.ExchangeID)
	}
	n, err := ts.store.CountPrompts(context.Background(), store.LogOriginal, reply.ConversationID)
	if err != nil {
		t.Fatalf("CountPrompts: %v", err)
	}
	if n != 0 {
		t.Errorf("prompts: got %d, want 0", n)
	}
	if got := ts.collector.Stats().Touches; got != 1 {
		t.Errorf("Touches: got %d, want 1", got)
	}
}

func TestIngest_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantError string
	}{
		{"not json", `{"session_id":`, "Invalid JSON body"},
		{"array body", `[1,2]`, "Invalid JSON body"},
		{"null body", `null`, "Invalid JSON body"},
		{"no session", `{"prompt":"hi"}`, "session_id is required"},
		{"empty session", `{"session_id":"","prompt":"hi"}`, "session_id is required"},
		{"numeric session", `{"session_id":42,"prompt":"hi"}`, "session_id is required"},
	}

	ts := setupServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/ingest", []byte(tt.body))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want %d", w.Code, http.StatusBadRequest)
			}
			var reply errorReply
			decode(t, w, &reply)
			if reply.Error != tt.wantError {
				t.Errorf("error: got %q, want %q", reply.Error, tt.wantError)
			}
			if reply.Details == "" {
				t.Error("details: got empty")
			}
		})
	}

	if got := ts.collector.Stats().Errors["malformed_body"]; got != 3 {
		t.Errorf("Errors[malformed_body]: got %d, want 3", got)
	}
}

func TestIngest_RequireContent(t *testing.T) {
	ts := setupServer(t, func(c *config.Config, _ *Deps) {
		c.Ingest.RequireContent = true
	})

	w := ts.do(t, http.MethodPost, "/api/ingest", []byte(`{"session_id":"s-strict"}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusBadRequest)
	}
	var reply errorReply
	decode(t, w, &reply)
	if reply.Error != session.ErrMissingContent.Error() {
		t.Errorf("error: got %q, want %q", reply.Error, session.ErrMissingContent.Error())
	}
}

func TestIngest_BodyTooLarge(t *testing.T) {
	ts := setupServer(t, func(c *config.Config, _ *Deps) {
		c.Server.MaxBodySize = 32
	})

	body := testutil.IngestBody("s-big", strings.Repeat("x", 200), "")
	w := ts.do(t, http.MethodPost, "/api/ingest", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusBadRequest)
	}
	var reply errorReply
	decode(t, w, &reply)
	if !strings.Contains(reply.Details, "32 bytes") {
		t.Errorf("details: got %q", reply.Details)
	}
}

func TestIngest_Usage(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(t, http.MethodPost, "/api/ingest", testutil.IngestBodyWithUsage("s-usage", "count me", 90))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (%s)", w.Code, http.StatusOK, w.Body.String())
	}
	var reply ingestReply
	decode(t, w, &reply)

	u, err := ts.svc.UsageFor(context.Background(), reply.ConversationID)
	if err != nil || u == nil {
		t.Fatalf("UsageFor: %v, %v", u, err)
	}
	if u.OutputTokens != 90 || u.CacheReadInputTokens != 40 || u.CacheCreationEphemeral5mInputTokens != 7 {
		t.Errorf("usage: got %+v", *u)
	}

	ts.do(t, http.MethodPost, "/api/ingest", testutil.IngestBodyWithUsage("s-other", "me too", 10))

	w = ts.do(t, http.MethodGet, "/api/usage/total", nil)
	var total map[string]int64
	decode(t, w, &total)
	if total["totalOutputTokens"] != 100 {
		t.Errorf("totalOutputTokens: got %d, want 100", total["totalOutputTokens"])
	}
}

// failingUsage is a session store whose usage writes always fail.
type failingUsage struct {
	*store.SessionAdapter
}

func (failingUsage) FindUsage(context.Context, string) (*session.Usage, error) {
	return nil, errors.New("disk full")
}

func TestIngest_UsageFailure(t *testing.T) {
	st := testutil.NewTestStore(t)
	broken := session.NewService(failingUsage{store.NewSessionAdapter(st)})
	ts := setupServer(t, func(_ *config.Config, d *Deps) {
		d.Store = st
		d.Service = broken
	})

	w := ts.do(t, http.MethodPost, "/api/ingest", testutil.IngestBodyWithUsage("s-fail", "kept", 5))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var reply errorReply
	decode(t, w, &reply)
	if reply.Error != "Failed to save usage data" {
		t.Errorf("error: got %q", reply.Error)
	}
	if reply.Operation != "usage" {
		t.Errorf("operation: got %q, want usage", reply.Operation)
	}
	if reply.ConversationID == "" {
		t.Error("conversationId: got empty")
	}
	var usage map[string]interface{}
	if err := json.Unmarshal(reply.UsageData, &usage); err != nil {
		t.Fatalf("usageData: %v (%s)", err, reply.UsageData)
	}
	if usage["cache_read_input_tokens"] != "40" {
		t.Errorf("usageData should echo the raw object, got %v", usage)
	}

	// The prompt write is not rolled back.
	n, err := st.CountPrompts(context.Background(), store.LogOriginal, reply.ConversationID)
	if err != nil {
		t.Fatalf("CountPrompts: %v", err)
	}
	if n != 1 {
		t.Errorf("prompts: got %d, want 1", n)
	}
}

func TestReload_RequireContent(t *testing.T) {
	ts := setupServer(t)

	body := []byte(`{"session_id":"s-reload"}`)
	if w := ts.do(t, http.MethodPost, "/api/ingest", body); w.Code != http.StatusOK {
		t.Fatalf("before reload: got %d, want %d", w.Code, http.StatusOK)
	}

	cfg := testutil.NewTestConfig(t)
	cfg.Ingest.RequireContent = true
	cfg.Ingest.PairingStrategy = "timestamp"
	ts.srv.Reload(cfg)

	if w := ts.do(t, http.MethodPost, "/api/ingest", body); w.Code != http.StatusBadRequest {
		t.Errorf("after reload: got %d, want %d", w.Code, http.StatusBadRequest)
	}
	w := ts.do(t, http.MethodGet, "/api/dashboard-config", nil)
	var dc struct {
		Strategy string `json:"strategy"`
	}
	decode(t, w, &dc)
	if dc.Strategy != "timestamp" {
		t.Errorf("strategy after reload: got %q, want timestamp", dc.Strategy)
	}
}
