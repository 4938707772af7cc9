package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleFirstMessage reports whether the session is on its first message
// under the configured ingest.first_message rule.
func (s *Server) handleFirstMessage(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "session")
	first, err := s.svc.FirstMessage(r.Context(), sid, s.live.Load().first)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId":    sid,
		"firstMessage": first,
	})
}

// handleMarkEnrichment flips the session's enrichment flag.
func (s *Server) handleMarkEnrichment(w http.ResponseWriter, r *http.Request) {
	convID, err := s.svc.MarkEnrichmentCollected(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{OK: true, ConversationID: convID})
}
