package api

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/allaspectsdev/promptstudio/internal/cache"
	"github.com/allaspectsdev/promptstudio/internal/metrics"
	"github.com/allaspectsdev/promptstudio/internal/session"
	"github.com/allaspectsdev/promptstudio/internal/tokenizer"
	"github.com/allaspectsdev/promptstudio/internal/tracing"
)

// handleListConversations returns a page of conversations, newest first.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 50)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}
	offset := (page - 1) * limit

	convs, err := s.svc.ListConversations(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": convs,
		"page":          page,
		"limit":         limit,
	})
}

// strategyParam returns the ?strategy= override or the configured default.
func (s *Server) strategyParam(r *http.Request) (session.Strategy, error) {
	raw := r.URL.Query().Get("strategy")
	if raw == "" {
		return s.live.Load().strategy, nil
	}
	return session.ParseStrategy(raw)
}

type conversationResponse struct {
	*session.ConversationDetail
	Tokens tokenizer.Estimate `json:"tokens"`
}

// handleGetConversation returns a conversation's paired rows, stats, usage
// and per-row token estimates.
func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	strategy, err := s.strategyParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid strategy", Details: err.Error()})
		return
	}

	detail, err := s.svc.Detail(r.Context(), chi.URLParam(r, "id"), strategy)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, conversationResponse{
		ConversationDetail: detail,
		Tokens:             s.tokens.EstimateRows(detail.Rows),
	})
}

type adviceResponse struct {
	ConversationID string   `json:"conversationId"`
	Advice         []string `json:"advice"`
	Cached         bool     `json:"cached"`
}

// handleAdvice asks the advice workflow to review a conversation. Replies
// are cached by conversation content, so asking again without new prompts
// does not call the workflow.
func (s *Server) handleAdvice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	strategy, err := s.strategyParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid strategy", Details: err.Error()})
		return
	}
	detail, err := s.svc.Detail(ctx, id, strategy)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	key := cache.Key(detail.Conversation.ID, detail.Rows)
	if s.advice != nil {
		if advice, ok := s.advice.Get(ctx, key); ok {
			tracing.SetAdviceAttributes(ctx, id, len(detail.Rows), true)
			s.collector.RecordAdvice(metrics.AdviceCacheHit)
			writeJSON(w, http.StatusOK, adviceResponse{ConversationID: id, Advice: advice, Cached: true})
			return
		}
	}

	tracing.SetAdviceAttributes(ctx, id, len(detail.Rows), false)
	if s.enricher == nil {
		s.collector.RecordAdvice(metrics.AdviceUnavailable)
		s.writeError(w, r, fmt.Errorf("%w: advice workflow not configured", session.ErrEnrichmentUnavailable), nil)
		return
	}
	if ok, wait := s.live.Load().limiter.Allow(clientKey(r)); !ok {
		s.collector.RecordAdvice(metrics.AdviceRateLimited)
		retry := int(math.Ceil(wait.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:   "rate limited",
			Details: fmt.Sprintf("too many advice requests, retry in %ds", retry),
		})
		return
	}
	advice, err := s.enricher.Advice(ctx, detail.Conversation.SessionID, detail.Rows)
	if err != nil {
		s.collector.RecordAdvice(metrics.AdviceUnavailable)
		s.writeError(w, r, err, nil)
		return
	}
	if s.advice != nil {
		s.advice.Put(ctx, key, id, advice)
	}
	s.collector.RecordAdvice(metrics.AdviceFetched)
	writeJSON(w, http.StatusOK, adviceResponse{ConversationID: id, Advice: advice})
}

// clientKey is the caller's address without the port. RealIP has already
// applied any forwarding headers.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
