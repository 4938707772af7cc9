package session

import (
	"context"
	"errors"
	"testing"
)

// fakeStore is an in-memory Store whose Insert* calls can be made to lose
// a race, as if another writer inserted first.
type fakeStore struct {
	convs     map[string]*Conversation
	usage     map[string]Usage
	sysinfo   map[string]SystemInfo
	prompts   map[Kind][]PromptEvent
	loseRace  bool
	appendErr error
	patches   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		convs:   make(map[string]*Conversation),
		usage:   make(map[string]Usage),
		sysinfo: make(map[string]SystemInfo),
		prompts: make(map[Kind][]PromptEvent),
	}
}

func (f *fakeStore) FindConversationBySession(_ context.Context, sid string) (*Conversation, error) {
	return f.convs[sid], nil
}

func (f *fakeStore) InsertConversation(_ context.Context, c Conversation) (*Conversation, error) {
	if existing, ok := f.convs[c.SessionID]; ok {
		return existing, nil
	}
	if f.loseRace {
		winner := &Conversation{ID: "winner", SessionID: c.SessionID}
		f.convs[c.SessionID] = winner
		return winner, nil
	}
	f.convs[c.SessionID] = &c
	return &c, nil
}

func (f *fakeStore) SetSystemInfoCollected(_ context.Context, id string) error {
	for _, c := range f.convs {
		if c.ID == id {
			v := true
			c.SystemInfoCollected = &v
		}
	}
	return nil
}

func (f *fakeStore) AppendPrompt(_ context.Context, kind Kind, e PromptEvent) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.prompts[kind] = append(f.prompts[kind], e)
	return nil
}

func (f *fakeStore) ListPrompts(_ context.Context, _ string, kind Kind) ([]PromptEvent, error) {
	return f.prompts[kind], nil
}

func (f *fakeStore) FindUsage(_ context.Context, id string) (*Usage, error) {
	if u, ok := f.usage[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (f *fakeStore) InsertUsage(_ context.Context, id string, u Usage) (bool, error) {
	if f.loseRace {
		f.usage[id] = Usage{OutputTokens: 999}
		return false, nil
	}
	f.usage[id] = u
	return true, nil
}

func (f *fakeStore) PatchUsage(_ context.Context, id string, u Usage) error {
	f.patches++
	f.usage[id] = u
	return nil
}

func (f *fakeStore) FindSystemInfo(_ context.Context, sid string) (*SystemInfo, error) {
	if si, ok := f.sysinfo[sid]; ok {
		return &si, nil
	}
	return nil, nil
}

func (f *fakeStore) InsertSystemInfo(_ context.Context, info SystemInfo) (bool, error) {
	if f.loseRace {
		f.sysinfo[info.SessionID] = SystemInfo{SessionID: info.SessionID}
		return false, nil
	}
	f.sysinfo[info.SessionID] = info
	return true, nil
}

func (f *fakeStore) PatchSystemInfo(_ context.Context, info SystemInfo) error {
	f.patches++
	f.sysinfo[info.SessionID] = info
	return nil
}

func (f *fakeStore) GetConversation(_ context.Context, id string) (*Conversation, error) {
	for _, c := range f.convs {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListConversations(context.Context, int, int) ([]Conversation, error) {
	return nil, nil
}

func (f *fakeStore) ListSystemInfo(context.Context, int) ([]SystemInfo, error) {
	return nil, nil
}

func (f *fakeStore) TotalOutputTokens(context.Context) (int64, error) {
	return 0, nil
}

func newTestService(st Store) *Service {
	s := NewService(st)
	s.newConversationID = func() string { return "conv" }
	s.newExchangeID = func() string { return "ex" }
	return s
}

func TestService_ConversationRaceConverges(t *testing.T) {
	st := newFakeStore()
	st.loseRace = true
	svc := newTestService(st)

	id, err := svc.Upsert(context.Background(), "s")
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if id != "winner" {
		t.Errorf("id: got %q, want the winning row's id", id)
	}
}

func TestService_UsageRacePatchesWinner(t *testing.T) {
	st := newFakeStore()
	st.loseRace = true
	svc := newTestService(st)

	if err := svc.UpsertUsage(context.Background(), "c", Usage{OutputTokens: 4}); err != nil {
		t.Fatalf("UpsertUsage: %v", err)
	}
	if st.patches != 1 {
		t.Errorf("patches: got %d, want 1", st.patches)
	}
	if st.usage["c"].OutputTokens != 4 {
		t.Errorf("OutputTokens: got %d, want 4", st.usage["c"].OutputTokens)
	}
}

func TestService_SystemInfoRacePatchesWinner(t *testing.T) {
	st := newFakeStore()
	st.loseRace = true
	svc := newTestService(st)

	err := svc.UpsertSystemInfo(context.Background(), SystemInfo{SessionID: "s", SystemData: []byte(`{}`), Timestamp: 1})
	if err != nil {
		t.Fatalf("UpsertSystemInfo: %v", err)
	}
	if st.patches != 1 || string(st.sysinfo["s"].SystemData) != `{}` {
		t.Errorf("expected the losing write to patch, got %+v", st.sysinfo["s"])
	}
}

func TestService_AppendFailure(t *testing.T) {
	st := newFakeStore()
	st.appendErr = errors.New("disk full")
	svc := newTestService(st)

	text := "hi"
	_, err := svc.UpsertAndAppend(context.Background(), "s", &text, nil, 1)
	if !errors.Is(err, ErrStoreWrite) {
		t.Fatalf("got %v, want ErrStoreWrite", err)
	}
	if !errors.Is(err, st.appendErr) {
		t.Error("expected the storage error to be wrapped")
	}
	var swe *StoreWriteError
	if !errors.As(err, &swe) || swe.Op != opAddPrompt || swe.Key != "s" {
		t.Errorf("StoreWriteError: got %+v", swe)
	}
}

func TestService_IngestUsesOneExchangeID(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(st)

	req, err := ParseIngest([]byte(`{"session_id":"s","prompt":"a","ai_prompt":"A"}`))
	if err != nil {
		t.Fatalf("ParseIngest: %v", err)
	}
	res, err := svc.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.ConversationID != "conv" || res.ExchangeID != "ex" || res.Operation != opAddPrompt {
		t.Errorf("result: got %+v", res)
	}
	if st.prompts[KindOriginal][0].ExchangeID != "ex" || st.prompts[KindRewritten][0].ExchangeID != "ex" {
		t.Errorf("exchange ids: %+v", st.prompts)
	}
}
