package api

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/allaspectsdev/promptstudio/internal/tracing"
)

// ingestResponse is the success body of the ingest endpoints.
type ingestResponse struct {
	OK             bool   `json:"ok"`
	ConversationID string `json:"conversationId"`
	ExchangeID     string `json:"exchangeId,omitempty"`
}

// handleIngest records one prompt exchange, or touches the conversation
// when the body carries no prompt, then applies the usage snapshot.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	req, err := s.live.Load().policy.Parse(body)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	l := reqLogger(r).With().Str("session_id", req.SessionID).Logger()
	res, err := s.svc.Ingest(r.Context(), req)
	if res != nil {
		l.UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("conversation_id", res.ConversationID)
		})
	}
	if err != nil {
		s.writeError(w, r.WithContext(l.WithContext(r.Context())), err, req.RawUsage)
		return
	}

	tracing.SetIngestAttributes(r.Context(), req.SessionID, res.ConversationID,
		req.Prompt != nil, req.AIPrompt != nil, req.Usage != nil)
	s.collector.RecordIngest(req.Prompt != nil, req.AIPrompt != nil, res.UsageRecorded)

	l.Debug().Str("operation", res.Operation).Bool("usage", res.UsageRecorded).Msg("ingest accepted")
	writeJSON(w, http.StatusOK, ingestResponse{OK: true, ConversationID: res.ConversationID, ExchangeID: res.ExchangeID})
}
