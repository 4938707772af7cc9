package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func mustConversation(t *testing.T, st *Store, id, sessionID string, createdAt int64) *Conversation {
	t.Helper()
	c, err := st.InsertConversation(context.Background(), &Conversation{ID: id, SessionID: sessionID, CreatedAt: createdAt})
	if err != nil {
		t.Fatalf("InsertConversation(%s): %v", sessionID, err)
	}
	return c
}

func TestOpen_Close(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st.Path() != path {
		t.Errorf("Path: got %q, want %q", st.Path(), path)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open with nested dir: %v", err)
	}
	st.Close()
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustConversation(t, st, "c1", "s1", 1)
	st.Close()

	st, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()

	c, err := st.GetConversationBySession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetConversationBySession after reopen: %v", err)
	}
	if c.ID != "c1" {
		t.Errorf("ID: got %q, want %q", c.ID, "c1")
	}
}

func TestMigrate_Version(t *testing.T) {
	st := openTestStore(t)
	v, err := st.currentVersion(context.Background())
	if err != nil {
		t.Fatalf("currentVersion: %v", err)
	}
	if want := migrations[len(migrations)-1].Version; v != want {
		t.Errorf("version: got %d, want %d", v, want)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	again, err := st.currentVersion(context.Background())
	if err != nil {
		t.Fatalf("currentVersion: %v", err)
	}
	if again != v {
		t.Errorf("version after second Migrate: got %d, want %d", again, v)
	}
}

func TestPendingSteps(t *testing.T) {
	last := migrations[len(migrations)-1].Version
	tests := []struct {
		current int
		want    int
	}{
		{0, len(migrations)},
		{1, len(migrations) - 1},
		{last, 0},
		{last + 5, 0},
	}
	for _, tt := range tests {
		if got := len(pendingSteps(tt.current)); got != tt.want {
			t.Errorf("pendingSteps(%d): got %d steps, want %d", tt.current, got, tt.want)
		}
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version <= migrations[i-1].Version {
			t.Errorf("migrations not sorted at index %d", i)
		}
	}
}

func TestPing(t *testing.T) {
	st := openTestStore(t)
	if err := st.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestReaderIsQueryOnly(t *testing.T) {
	st := openTestStore(t)
	_, err := st.reader.Exec(`INSERT INTO conversations (id, session_id, created_at) VALUES ('x', 'y', 1)`)
	if err == nil {
		t.Fatal("expected write through reader to fail")
	}
}

func TestLookupErr(t *testing.T) {
	err := lookupErr("get thing", sql.ErrNoRows)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("sql.ErrNoRows: got %v, want ErrNotFound", err)
	}
	other := errors.New("disk I/O error")
	err = lookupErr("get thing", other)
	if errors.Is(err, ErrNotFound) {
		t.Error("other errors must not map to ErrNotFound")
	}
	if !errors.Is(err, other) {
		t.Error("expected original error to be wrapped")
	}
}

func TestStats(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	mustConversation(t, st, "c1", "s1", 1)
	mustConversation(t, st, "c2", "s2", 2)
	if _, err := st.SetSystemInfoCollected(ctx, "c1"); err != nil {
		t.Fatalf("SetSystemInfoCollected: %v", err)
	}
	for i, log := range []PromptLog{LogOriginal, LogOriginal, LogRewritten} {
		if err := st.InsertPrompt(ctx, log, &Prompt{ConversationID: "c1", Text: "p", Timestamp: int64(i)}); err != nil {
			t.Fatalf("InsertPrompt: %v", err)
		}
	}
	if _, err := st.InsertUsage(ctx, &Usage{ConversationID: "c1", OutputTokens: 10}); err != nil {
		t.Fatalf("InsertUsage: %v", err)
	}
	if _, err := st.InsertUsage(ctx, &Usage{ConversationID: "c2", OutputTokens: 5}); err != nil {
		t.Fatalf("InsertUsage: %v", err)
	}
	if _, err := st.InsertSystemInfo(ctx, &SystemInfo{SessionID: "s1", SystemData: `{}`, Timestamp: 1}); err != nil {
		t.Fatalf("InsertSystemInfo: %v", err)
	}

	got, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := Totals{
		Conversations:     2,
		Prompts:           2,
		AIPrompts:         1,
		UsageSnapshots:    2,
		SystemInfo:        1,
		Enriched:          1,
		TotalOutputTokens: 15,
	}
	if *got != want {
		t.Errorf("Stats: got %+v, want %+v", *got, want)
	}
}

func TestConcurrentWrites(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	mustConversation(t, st, "c1", "s1", 1)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- st.InsertPrompt(ctx, LogOriginal, &Prompt{ConversationID: "c1", Text: "p", Timestamp: int64(i)})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent InsertPrompt: %v", err)
		}
	}

	n, err := st.CountPrompts(ctx, LogOriginal, "c1")
	if err != nil {
		t.Fatalf("CountPrompts: %v", err)
	}
	if n != 20 {
		t.Errorf("count: got %d, want 20", n)
	}
}
