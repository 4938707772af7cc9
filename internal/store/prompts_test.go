package store

import (
	"context"
	"testing"
)

func TestInsertPrompt_ListOrdered(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	mustConversation(t, st, "c1", "s1", 1)

	entries := []Prompt{
		{ConversationID: "c1", Text: "third", Timestamp: 300, ExchangeID: "x3"},
		{ConversationID: "c1", Text: "first", Timestamp: 100, ExchangeID: "x1"},
		{ConversationID: "c1", Text: "second-a", Timestamp: 200},
		{ConversationID: "c1", Text: "second-b", Timestamp: 200},
	}
	for i := range entries {
		if err := st.InsertPrompt(ctx, LogOriginal, &entries[i]); err != nil {
			t.Fatalf("InsertPrompt: %v", err)
		}
		if entries[i].ID == 0 {
			t.Errorf("entry %d: ID not set", i)
		}
	}

	got, err := st.ListPrompts(ctx, LogOriginal, "c1")
	if err != nil {
		t.Fatalf("ListPrompts: %v", err)
	}
	want := []string{"first", "second-a", "second-b", "third"}
	if len(got) != len(want) {
		t.Fatalf("len: got %d, want %d", len(got), len(want))
	}
	for i, p := range got {
		if p.Text != want[i] {
			t.Errorf("[%d]: got %q, want %q", i, p.Text, want[i])
		}
	}
	if got[0].ExchangeID != "x1" {
		t.Errorf("ExchangeID: got %q, want %q", got[0].ExchangeID, "x1")
	}
	if got[1].ExchangeID != "" {
		t.Errorf("legacy ExchangeID: got %q, want empty", got[1].ExchangeID)
	}
}

func TestPromptLogs_AreSeparate(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	mustConversation(t, st, "c1", "s1", 1)
	mustConversation(t, st, "c2", "s2", 1)

	if err := st.InsertPrompt(ctx, LogOriginal, &Prompt{ConversationID: "c1", Text: "o", Timestamp: 1}); err != nil {
		t.Fatalf("InsertPrompt: %v", err)
	}
	if err := st.InsertPrompt(ctx, LogRewritten, &Prompt{ConversationID: "c1", Text: "r", Timestamp: 1}); err != nil {
		t.Fatalf("InsertPrompt: %v", err)
	}
	if err := st.InsertPrompt(ctx, LogRewritten, &Prompt{ConversationID: "c2", Text: "r2", Timestamp: 1}); err != nil {
		t.Fatalf("InsertPrompt: %v", err)
	}

	tests := []struct {
		log  PromptLog
		conv string
		want int64
	}{
		{LogOriginal, "c1", 1},
		{LogRewritten, "c1", 1},
		{LogOriginal, "c2", 0},
		{LogRewritten, "", 2},
	}
	for _, tt := range tests {
		n, err := st.CountPrompts(ctx, tt.log, tt.conv)
		if err != nil {
			t.Fatalf("CountPrompts(%s, %q): %v", tt.log, tt.conv, err)
		}
		if n != tt.want {
			t.Errorf("CountPrompts(%s, %q): got %d, want %d", tt.log, tt.conv, n, tt.want)
		}
	}
}

func TestInsertPrompt_UnknownLog(t *testing.T) {
	st := openTestStore(t)
	err := st.InsertPrompt(context.Background(), PromptLog("users; DROP TABLE prompts"), &Prompt{ConversationID: "c1"})
	if err == nil {
		t.Fatal("expected error for unknown log")
	}
}

func TestInsertPrompt_RequiresConversation(t *testing.T) {
	st := openTestStore(t)
	err := st.InsertPrompt(context.Background(), LogOriginal, &Prompt{ConversationID: "missing", Text: "x", Timestamp: 1})
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
}
