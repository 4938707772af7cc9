package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"
)

func TestUsage_InsertThenPatch(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	mustConversation(t, st, "c1", "s1", 1)

	inserted, err := st.InsertUsage(ctx, &Usage{ConversationID: "c1", OutputTokens: 10, CacheReadInputTokens: 4})
	if err != nil {
		t.Fatalf("InsertUsage: %v", err)
	}
	if !inserted {
		t.Fatal("first InsertUsage should insert")
	}

	inserted, err = st.InsertUsage(ctx, &Usage{ConversationID: "c1", OutputTokens: 99})
	if err != nil {
		t.Fatalf("second InsertUsage: %v", err)
	}
	if inserted {
		t.Error("second InsertUsage must not overwrite")
	}

	u, err := st.GetUsage(ctx, "c1")
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if u.OutputTokens != 10 {
		t.Errorf("OutputTokens after conflicting insert: got %d, want 10", u.OutputTokens)
	}

	err = st.PatchUsage(ctx, &Usage{ConversationID: "c1", OutputTokens: 7, CacheCreationEphemeral1hInputTokens: 2})
	if err != nil {
		t.Fatalf("PatchUsage: %v", err)
	}
	u, err = st.GetUsage(ctx, "c1")
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if u.OutputTokens != 7 || u.CacheCreationEphemeral1hInputTokens != 2 {
		t.Errorf("patched: got %+v", u)
	}
	if u.CacheReadInputTokens != 0 {
		t.Errorf("patch must replace every counter, CacheReadInputTokens: got %d, want 0", u.CacheReadInputTokens)
	}
}

func TestUsage_NotFound(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, err := st.GetUsage(ctx, "none"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUsage: got %v, want ErrNotFound", err)
	}
	if err := st.PatchUsage(ctx, &Usage{ConversationID: "none"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("PatchUsage: got %v, want ErrNotFound", err)
	}
}

func TestTotalOutputTokens(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	total, err := st.TotalOutputTokens(ctx)
	if err != nil {
		t.Fatalf("TotalOutputTokens on empty db: %v", err)
	}
	if total != 0 {
		t.Errorf("empty total: got %d, want 0", total)
	}

	for i, id := range []string{"c1", "c2", "c3"} {
		mustConversation(t, st, id, "s-"+id, int64(i))
		if _, err := st.InsertUsage(ctx, &Usage{ConversationID: id, OutputTokens: int64(100 * (i + 1))}); err != nil {
			t.Fatalf("InsertUsage: %v", err)
		}
	}
	total, err = st.TotalOutputTokens(ctx)
	if err != nil {
		t.Fatalf("TotalOutputTokens: %v", err)
	}
	if total != 600 {
		t.Errorf("total: got %d, want 600", total)
	}
}

func TestSystemInfo_InsertPatchList(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	inserted, err := st.InsertSystemInfo(ctx, &SystemInfo{SessionID: "s1", SystemData: `{"os":"linux"}`, Timestamp: 100})
	if err != nil {
		t.Fatalf("InsertSystemInfo: %v", err)
	}
	if !inserted {
		t.Fatal("first insert should insert")
	}
	inserted, err = st.InsertSystemInfo(ctx, &SystemInfo{SessionID: "s1", SystemData: `{}`, Timestamp: 200})
	if err != nil {
		t.Fatalf("second InsertSystemInfo: %v", err)
	}
	if inserted {
		t.Error("second insert must not overwrite")
	}

	err = st.PatchSystemInfo(ctx, &SystemInfo{
		SessionID:       "s1",
		SystemData:      `{"os":"darwin"}`,
		WebhookResponse: sql.NullString{String: `{"ok":true}`, Valid: true},
		Timestamp:       300,
	})
	if err != nil {
		t.Fatalf("PatchSystemInfo: %v", err)
	}
	si, err := st.GetSystemInfo(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSystemInfo: %v", err)
	}
	if si.SystemData != `{"os":"darwin"}` || si.Timestamp != 300 || si.WebhookResponse.String != `{"ok":true}` {
		t.Errorf("patched: got %+v", si)
	}

	if _, err := st.InsertSystemInfo(ctx, &SystemInfo{SessionID: "s2", SystemData: `{}`, Timestamp: 400}); err != nil {
		t.Fatalf("InsertSystemInfo s2: %v", err)
	}
	list, err := st.ListSystemInfo(ctx, 10)
	if err != nil {
		t.Fatalf("ListSystemInfo: %v", err)
	}
	if len(list) != 2 || list[0].SessionID != "s2" || list[1].SessionID != "s1" {
		t.Errorf("ListSystemInfo order: got %+v", list)
	}
	if list[0].WebhookResponse.Valid {
		t.Error("s2 webhook response should be NULL")
	}
}

func TestSystemInfo_NotFound(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	if _, err := st.GetSystemInfo(ctx, "none"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSystemInfo: got %v, want ErrNotFound", err)
	}
	if err := st.PatchSystemInfo(ctx, &SystemInfo{SessionID: "none", SystemData: `{}`}); !errors.Is(err, ErrNotFound) {
		t.Errorf("PatchSystemInfo: got %v, want ErrNotFound", err)
	}
}

func TestAdvice_SetGetExpire(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	live := &AdviceEntry{Key: "live", ConversationID: "c1", Body: []byte(`["a"]`), CreatedAt: now, ExpiresAt: now + 60_000}
	dead := &AdviceEntry{Key: "dead", ConversationID: "c1", Body: []byte(`["b"]`), CreatedAt: now - 2000, ExpiresAt: now - 1000}
	for _, e := range []*AdviceEntry{live, dead} {
		if err := st.SetAdvice(ctx, e); err != nil {
			t.Fatalf("SetAdvice(%s): %v", e.Key, err)
		}
	}

	if err := st.IncrementAdviceHits(ctx, "live"); err != nil {
		t.Fatalf("IncrementAdviceHits: %v", err)
	}
	got, err := st.GetAdvice(ctx, "live")
	if err != nil {
		t.Fatalf("GetAdvice: %v", err)
	}
	if string(got.Body) != `["a"]` || got.HitCount != 1 {
		t.Errorf("GetAdvice: got body %s hits %d", got.Body, got.HitCount)
	}

	n, err := st.DeleteExpiredAdvice(ctx)
	if err != nil {
		t.Fatalf("DeleteExpiredAdvice: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted: got %d, want 1", n)
	}
	if _, err := st.GetAdvice(ctx, "dead"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired entry: got %v, want ErrNotFound", err)
	}
	if err := st.IncrementAdviceHits(ctx, "dead"); !errors.Is(err, ErrNotFound) {
		t.Errorf("IncrementAdviceHits on missing: got %v, want ErrNotFound", err)
	}
}
