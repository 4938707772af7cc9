package hook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/allaspectsdev/promptstudio/internal/api"
	"github.com/allaspectsdev/promptstudio/internal/metrics"
	"github.com/allaspectsdev/promptstudio/internal/testutil"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := testutil.NewTestConfig(t)
	svc, st := testutil.NewTestService(t)
	srv := api.New(api.Deps{
		Config:    cfg,
		Store:     st,
		Service:   svc,
		Collector: metrics.NewCollector(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestRun_FirstMessageSendsSystemInfo(t *testing.T) {
	ts := newServer(t)
	c := NewClient(ts.URL, 5*time.Second)
	ctx := context.Background()

	var collected atomic.Int32
	collect := func(context.Context) (json.RawMessage, error) {
		collected.Add(1)
		return json.RawMessage(`{"os":"linux"}`), nil
	}

	payload := []byte(`{"session_id":"hook-1","prompt":"first","hook_event_name":"UserPromptSubmit"}`)
	res, err := Run(ctx, c, payload, collect)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.SystemInfoSent {
		t.Error("expected system info on the first message")
	}
	if res.ConversationID == "" {
		t.Error("expected a conversation id")
	}

	payload = []byte(`{"session_id":"hook-1","prompt":"second"}`)
	res, err = Run(ctx, c, payload, collect)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.SystemInfoSent {
		t.Error("system info sent twice")
	}
	if got := collected.Load(); got != 1 {
		t.Errorf("collector called %d times, want 1", got)
	}

	first, err := c.FirstMessage(ctx, "hook-1")
	if err != nil {
		t.Fatalf("FirstMessage: %v", err)
	}
	if first {
		t.Error("session should no longer be on its first message")
	}
}

func TestRun_CollectorFailureKeepsIngest(t *testing.T) {
	ts := newServer(t)
	c := NewClient(ts.URL, 5*time.Second)

	collect := func(context.Context) (json.RawMessage, error) {
		return nil, errors.New("probe failed")
	}
	res, err := Run(context.Background(), c, []byte(`{"sessionId":"hook-2","prompt":"hi"}`), collect)
	if err == nil {
		t.Fatal("expected collector error")
	}
	if res == nil || res.ConversationID == "" {
		t.Fatalf("ingest result should survive collector failure, got %+v", res)
	}
}

func TestRun_NoSession(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second)
	_, err := Run(context.Background(), c, []byte(`{"prompt":"x"}`), nil)
	if !errors.Is(err, ErrNoSession) {
		t.Errorf("got %v, want ErrNoSession", err)
	}
	_, err = Run(context.Background(), c, []byte(`{"session_id":"   ","prompt":"x"}`), nil)
	if !errors.Is(err, ErrNoSession) {
		t.Errorf("blank session: got %v, want ErrNoSession", err)
	}
	if _, err := Run(context.Background(), c, []byte(`not json`), nil); err == nil {
		t.Error("expected error for invalid payload")
	}
}

func TestClient_APIError(t *testing.T) {
	ts := newServer(t)
	c := NewClient(ts.URL+"/", 5*time.Second)

	_, err := c.Ingest(context.Background(), []byte(`{"prompt":"x"}`))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", apiErr.Status)
	}
	if apiErr.Message != "session_id is required" {
		t.Errorf("message = %q", apiErr.Message)
	}
	if IsUnreachable(err) {
		t.Error("an API error is not unreachable")
	}
}

func TestClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := NewClient(url, time.Second)
	_, err := c.FirstMessage(context.Background(), "s")
	if !IsUnreachable(err) {
		t.Errorf("got %v, want unreachable", err)
	}
}

func TestPayload(t *testing.T) {
	body, err := Payload("s1", "hello", "")
	if err != nil {
		t.Fatalf("Payload: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["session_id"] != "s1" || got["prompt"] != "hello" {
		t.Errorf("got %v", got)
	}
	if _, ok := got["ai_prompt"]; ok {
		t.Error("empty ai_prompt should be omitted")
	}
}
