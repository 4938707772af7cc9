package session

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Service implements conversation upsert, prompt appends, snapshot upserts
// and the enrichment trigger on top of a Store. It keeps no state between
// calls; concurrent first writes are resolved by the Store.
type Service struct {
	store    Store
	validate *validator.Validate

	now               func() time.Time
	newConversationID func() string
	newExchangeID     func() string
}

// NewService returns a Service backed by st.
func NewService(st Store) *Service {
	return &Service{
		store:             st,
		validate:          validator.New(validator.WithRequiredStructEnabled()),
		now:               time.Now,
		newConversationID: func() string { return uuid.New().String() },
		newExchangeID:     func() string { return ulid.Make().String() },
	}
}

// IngestResult describes what Ingest wrote.
type IngestResult struct {
	ConversationID string `json:"conversationId"`
	// ExchangeID is empty when the request carried no prompt.
	ExchangeID    string `json:"exchangeId,omitempty"`
	Operation     string `json:"operation"`
	UsageRecorded bool   `json:"usageRecorded"`
}

const (
	opAddPrompt  = "addPrompt"
	opUpsert     = "upsert"
	opUsage      = "usage"
	opSystemInfo = "systemInfo"
	opEnrichment = "markEnrichment"
)

// Ingest applies a parsed ingest request: conversation upsert plus appends,
// then the usage snapshot if one was sent. A usage failure does not undo
// the prompt writes; the returned result is still populated in that case.
func (s *Service) Ingest(ctx context.Context, req *IngestRequest) (*IngestResult, error) {
	res := &IngestResult{Operation: opUpsert}
	if req.HasContent() {
		res.Operation = opAddPrompt
	}

	convID, exchangeID, err := s.upsertAndAppend(ctx, req.SessionID, req.Prompt, req.AIPrompt, req.Timestamp)
	if err != nil {
		return nil, err
	}
	res.ConversationID = convID
	res.ExchangeID = exchangeID

	if req.Usage != nil {
		if err := s.UpsertUsage(ctx, convID, *req.Usage); err != nil {
			return res, err
		}
		res.UsageRecorded = true
	}
	return res, nil
}

// Upsert returns the id of the session's conversation, creating it if the
// session has never written.
func (s *Service) Upsert(ctx context.Context, sessionID string) (string, error) {
	if err := CheckSessionID(sessionID); err != nil {
		return "", err
	}
	c, err := s.ensureConversation(ctx, sessionID)
	if err != nil {
		return "", &StoreWriteError{Op: opUpsert, Key: sessionID, Err: err}
	}
	return c.ID, nil
}

// UpsertAndAppend ensures the conversation exists and appends the prompts
// that are present, both stamped with ts (the current time when ts is 0)
// and a fresh exchange id. Calling it twice appends twice.
func (s *Service) UpsertAndAppend(ctx context.Context, sessionID string, prompt, aiPrompt *string, ts int64) (string, error) {
	id, _, err := s.upsertAndAppend(ctx, sessionID, prompt, aiPrompt, ts)
	return id, err
}

func (s *Service) upsertAndAppend(ctx context.Context, sessionID string, prompt, aiPrompt *string, ts int64) (string, string, error) {
	if err := CheckSessionID(sessionID); err != nil {
		return "", "", err
	}
	op := opUpsert
	if prompt != nil || aiPrompt != nil {
		op = opAddPrompt
	}
	fail := func(err error) (string, string, error) {
		return "", "", &StoreWriteError{Op: op, Key: sessionID, Err: err}
	}

	c, err := s.ensureConversation(ctx, sessionID)
	if err != nil {
		return fail(err)
	}
	if op == opUpsert {
		return c.ID, "", nil
	}

	if ts <= 0 {
		ts = s.now().UnixMilli()
	}
	exchangeID := s.newExchangeID()

	if prompt != nil {
		e := PromptEvent{ConversationID: c.ID, Text: *prompt, Timestamp: ts, ExchangeID: exchangeID}
		if err := s.store.AppendPrompt(ctx, KindOriginal, e); err != nil {
			return fail(err)
		}
	}
	if aiPrompt != nil {
		e := PromptEvent{ConversationID: c.ID, Text: *aiPrompt, Timestamp: ts, ExchangeID: exchangeID}
		if err := s.store.AppendPrompt(ctx, KindRewritten, e); err != nil {
			return fail(err)
		}
	}
	return c.ID, exchangeID, nil
}

func (s *Service) ensureConversation(ctx context.Context, sessionID string) (*Conversation, error) {
	c, err := s.store.FindConversationBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if c != nil {
		return c, nil
	}
	c, err = s.store.InsertConversation(ctx, Conversation{
		ID:        s.newConversationID(),
		SessionID: sessionID,
		CreatedAt: s.now().UnixMilli(),
	})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.New("conversation insert returned no row")
	}
	return c, nil
}

// IsFirstMessage reports whether the session has never written: true until
// its conversation exists, false from the first successful write on.
func (s *Service) IsFirstMessage(ctx context.Context, sessionID string) (bool, error) {
	return s.FirstMessage(ctx, sessionID, FirstMessageConversation)
}

// FirstMessage answers the first-message check under rule. With
// FirstMessageEnrichment a session stays on its first message until its
// enrichment flag is set, even after prompts were written. The answer is a
// snapshot; two callers may both see true.
func (s *Service) FirstMessage(ctx context.Context, sessionID string, rule FirstMessageRule) (bool, error) {
	if err := CheckSessionID(sessionID); err != nil {
		return false, err
	}
	c, err := s.store.FindConversationBySession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if c == nil {
		return true, nil
	}
	return rule == FirstMessageEnrichment && !c.Collected(), nil
}

// MarkEnrichmentCollected sets the session's enrichment flag, creating the
// conversation first if needed. Once set the flag never changes, so repeat
// calls are no-ops.
func (s *Service) MarkEnrichmentCollected(ctx context.Context, sessionID string) (string, error) {
	if err := CheckSessionID(sessionID); err != nil {
		return "", err
	}
	c, err := s.ensureConversation(ctx, sessionID)
	if err != nil {
		return "", &StoreWriteError{Op: opEnrichment, Key: sessionID, Err: err}
	}
	if c.Collected() {
		return c.ID, nil
	}
	if err := s.store.SetSystemInfoCollected(ctx, c.ID); err != nil {
		return "", &StoreWriteError{Op: opEnrichment, Key: sessionID, Err: err}
	}
	return c.ID, nil
}

// UpsertUsage replaces the conversation's usage snapshot. The last write
// wins; nothing is accumulated.
func (s *Service) UpsertUsage(ctx context.Context, conversationID string, u Usage) error {
	fail := func(err error) error {
		return &StoreWriteError{Op: opUsage, Key: conversationID, Err: err}
	}

	existing, err := s.store.FindUsage(ctx, conversationID)
	if err != nil {
		return fail(err)
	}
	if existing != nil {
		if err := s.store.PatchUsage(ctx, conversationID, u); err != nil {
			return fail(err)
		}
		return nil
	}

	inserted, err := s.store.InsertUsage(ctx, conversationID, u)
	if err != nil {
		return fail(err)
	}
	if !inserted {
		// Lost the race to a concurrent first write; overwrite it.
		if err := s.store.PatchUsage(ctx, conversationID, u); err != nil {
			return fail(err)
		}
	}
	return nil
}

// UpsertSystemInfo validates info and replaces the session's system info
// snapshot. A zero Timestamp is set to the current time.
func (s *Service) UpsertSystemInfo(ctx context.Context, info SystemInfo) error {
	if err := CheckSessionID(info.SessionID); err != nil {
		return err
	}
	if info.Timestamp == 0 {
		info.Timestamp = s.now().UnixMilli()
	}
	if err := s.validate.Struct(info); err != nil {
		return invalid(ErrMalformedBody, "%v", err)
	}

	fail := func(err error) error {
		return &StoreWriteError{Op: opSystemInfo, Key: info.SessionID, Err: err}
	}

	existing, err := s.store.FindSystemInfo(ctx, info.SessionID)
	if err != nil {
		return fail(err)
	}
	if existing != nil {
		if err := s.store.PatchSystemInfo(ctx, info); err != nil {
			return fail(err)
		}
		return nil
	}

	inserted, err := s.store.InsertSystemInfo(ctx, info)
	if err != nil {
		return fail(err)
	}
	if !inserted {
		if err := s.store.PatchSystemInfo(ctx, info); err != nil {
			return fail(err)
		}
	}
	return nil
}
