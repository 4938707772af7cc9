package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/allaspectsdev/promptstudio/internal/cache"
	"github.com/allaspectsdev/promptstudio/internal/session"
)

func TestSessionAdapter_FindReturnsNilWhenAbsent(t *testing.T) {
	a := NewSessionAdapter(openTestStore(t))
	ctx := context.Background()

	c, err := a.FindConversationBySession(ctx, "nobody")
	if err != nil || c != nil {
		t.Errorf("FindConversationBySession: got (%v, %v), want (nil, nil)", c, err)
	}
	u, err := a.FindUsage(ctx, "none")
	if err != nil || u != nil {
		t.Errorf("FindUsage: got (%v, %v), want (nil, nil)", u, err)
	}
	si, err := a.FindSystemInfo(ctx, "nobody")
	if err != nil || si != nil {
		t.Errorf("FindSystemInfo: got (%v, %v), want (nil, nil)", si, err)
	}
}

func TestSessionAdapter_ConversationFlag(t *testing.T) {
	a := NewSessionAdapter(openTestStore(t))
	ctx := context.Background()

	c, err := a.InsertConversation(ctx, session.Conversation{ID: "c1", SessionID: "s1", CreatedAt: 5})
	if err != nil {
		t.Fatalf("InsertConversation: %v", err)
	}
	if c.SystemInfoCollected != nil {
		t.Errorf("flag: got %v, want nil", *c.SystemInfoCollected)
	}
	if err := a.SetSystemInfoCollected(ctx, "c1"); err != nil {
		t.Fatalf("SetSystemInfoCollected: %v", err)
	}
	c, err = a.FindConversationBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("FindConversationBySession: %v", err)
	}
	if !c.Collected() {
		t.Error("expected flag to be set")
	}
}

func TestSessionAdapter_PromptKinds(t *testing.T) {
	a := NewSessionAdapter(openTestStore(t))
	ctx := context.Background()
	if _, err := a.InsertConversation(ctx, session.Conversation{ID: "c1", SessionID: "s1", CreatedAt: 1}); err != nil {
		t.Fatalf("InsertConversation: %v", err)
	}

	if err := a.AppendPrompt(ctx, session.KindOriginal, session.PromptEvent{ConversationID: "c1", Text: "hi", Timestamp: 10, ExchangeID: "ex"}); err != nil {
		t.Fatalf("AppendPrompt original: %v", err)
	}
	if err := a.AppendPrompt(ctx, session.KindRewritten, session.PromptEvent{ConversationID: "c1", Text: "Hello.", Timestamp: 10, ExchangeID: "ex"}); err != nil {
		t.Fatalf("AppendPrompt rewritten: %v", err)
	}
	if err := a.AppendPrompt(ctx, session.Kind("bogus"), session.PromptEvent{ConversationID: "c1"}); err == nil {
		t.Error("expected error for unknown kind")
	}

	rewrites, err := a.ListPrompts(ctx, "c1", session.KindRewritten)
	if err != nil {
		t.Fatalf("ListPrompts: %v", err)
	}
	want := session.PromptEvent{ConversationID: "c1", Text: "Hello.", Timestamp: 10, ExchangeID: "ex"}
	if len(rewrites) != 1 || rewrites[0] != want {
		t.Errorf("ListPrompts: got %+v, want [%+v]", rewrites, want)
	}
}

func TestSessionAdapter_UsageRoundTrip(t *testing.T) {
	a := NewSessionAdapter(openTestStore(t))
	ctx := context.Background()
	if _, err := a.InsertConversation(ctx, session.Conversation{ID: "c1", SessionID: "s1", CreatedAt: 1}); err != nil {
		t.Fatalf("InsertConversation: %v", err)
	}

	in := session.Usage{
		CacheCreationInputTokens:            1,
		CacheReadInputTokens:                2,
		OutputTokens:                        3,
		Ephemeral1hInputTokens:              4,
		CacheCreationEphemeral5mInputTokens: 5,
		CacheCreationEphemeral1hInputTokens: 6,
	}
	if ok, err := a.InsertUsage(ctx, "c1", in); err != nil || !ok {
		t.Fatalf("InsertUsage: got (%v, %v)", ok, err)
	}
	got, err := a.FindUsage(ctx, "c1")
	if err != nil {
		t.Fatalf("FindUsage: %v", err)
	}
	if *got != in {
		t.Errorf("FindUsage: got %+v, want %+v", *got, in)
	}
	total, err := a.TotalOutputTokens(ctx)
	if err != nil {
		t.Fatalf("TotalOutputTokens: %v", err)
	}
	if total != 3 {
		t.Errorf("TotalOutputTokens: got %d, want 3", total)
	}
}

func TestSessionAdapter_SystemInfoRoundTrip(t *testing.T) {
	a := NewSessionAdapter(openTestStore(t))
	ctx := context.Background()

	in := session.SystemInfo{SessionID: "s1", SystemData: json.RawMessage(`{"os":"linux"}`), Timestamp: 9}
	if ok, err := a.InsertSystemInfo(ctx, in); err != nil || !ok {
		t.Fatalf("InsertSystemInfo: got (%v, %v)", ok, err)
	}
	in.WebhookResponse = json.RawMessage(`{"received":true}`)
	if err := a.PatchSystemInfo(ctx, in); err != nil {
		t.Fatalf("PatchSystemInfo: %v", err)
	}

	got, err := a.FindSystemInfo(ctx, "s1")
	if err != nil {
		t.Fatalf("FindSystemInfo: %v", err)
	}
	if string(got.SystemData) != `{"os":"linux"}` || string(got.WebhookResponse) != `{"received":true}` {
		t.Errorf("FindSystemInfo: got %+v", got)
	}

	list, err := a.ListSystemInfo(ctx, 5)
	if err != nil {
		t.Fatalf("ListSystemInfo: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListSystemInfo len: got %d, want 1", len(list))
	}
}

func TestCacheAdapter(t *testing.T) {
	st := openTestStore(t)
	a := NewCacheAdapter(st)
	ctx := context.Background()

	now := time.Now()
	entry := &cache.Entry{
		ConversationID: "c1",
		Advice:         []string{"be specific", "add context"},
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Hour),
	}
	if err := a.SetEntry(ctx, "k1", entry); err != nil {
		t.Fatalf("SetEntry: %v", err)
	}

	got, err := a.GetEntry(ctx, "k1")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if len(got.Advice) != 2 || got.Advice[1] != "add context" {
		t.Errorf("Advice: got %v", got.Advice)
	}
	if got.ExpiresAt.UnixMilli() != entry.ExpiresAt.UnixMilli() {
		t.Errorf("ExpiresAt: got %v, want %v", got.ExpiresAt, entry.ExpiresAt)
	}

	row, err := st.GetAdvice(ctx, "k1")
	if err != nil {
		t.Fatalf("GetAdvice: %v", err)
	}
	if row.HitCount != 1 {
		t.Errorf("HitCount: got %d, want 1", row.HitCount)
	}

	if err := a.DeleteExpired(ctx); err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if _, err := a.GetEntry(ctx, "k1"); err != nil {
		t.Errorf("live entry should survive DeleteExpired: %v", err)
	}
}
