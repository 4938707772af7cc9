package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/allaspectsdev/promptstudio/internal/session"
)

type systemInfoRequest struct {
	SessionID     string          `json:"session_id"`
	SessionIDAlt  string          `json:"sessionId"`
	SystemData    json.RawMessage `json:"system_data"`
	SystemDataAlt json.RawMessage `json:"systemData"`
	Timestamp     int64           `json:"timestamp"`
}

func parseSystemInfo(body []byte) (session.SystemInfo, error) {
	var req systemInfoRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return session.SystemInfo{}, &session.ValidationError{Kind: session.ErrMalformedBody, Detail: err.Error()}
	}
	info := session.SystemInfo{
		SessionID:  req.SessionID,
		SystemData: req.SystemData,
		Timestamp:  req.Timestamp,
	}
	if strings.TrimSpace(info.SessionID) == "" {
		info.SessionID = req.SessionIDAlt
	}
	if len(info.SystemData) == 0 {
		info.SystemData = req.SystemDataAlt
	}
	if err := session.CheckSessionID(info.SessionID); err != nil {
		return info, err
	}
	if len(info.SystemData) == 0 || bytes.Equal(info.SystemData, []byte("null")) {
		return info, &session.ValidationError{Kind: session.ErrMalformedBody, Detail: "system_data is required"}
	}
	if info.Timestamp <= 0 {
		info.Timestamp = time.Now().UnixMilli()
	}
	return info, nil
}

type systemInfoResponse struct {
	OK             bool   `json:"ok"`
	ConversationID string `json:"conversationId"`
	Forwarded      bool   `json:"forwarded"`
	WebhookError   string `json:"webhookError,omitempty"`
}

// handlePostSystemInfo stores a session's system snapshot, forwarding it
// to the system-info webhook first when one is configured, and marks the
// session's enrichment as collected. A webhook failure is reported in the
// response but does not prevent storing the snapshot.
func (s *Server) handlePostSystemInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	info, err := parseSystemInfo(body)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	l := reqLogger(r).With().Str("session_id", info.SessionID).Logger()

	resp := systemInfoResponse{OK: true}
	if s.enricher != nil && s.enricher.WebhookEnabled() {
		reply, err := s.enricher.ForwardSystemInfo(ctx, info)
		if err != nil {
			l.Warn().Err(err).Msg("system info webhook failed")
			s.collector.RecordError(errorKind(err))
			resp.WebhookError = err.Error()
		} else {
			info.WebhookResponse = reply
			resp.Forwarded = true
		}
	}

	if err := s.svc.UpsertSystemInfo(ctx, info); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	convID, err := s.svc.MarkEnrichmentCollected(ctx, info.SessionID)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	resp.ConversationID = convID
	s.collector.RecordSystemInfo(resp.Forwarded)

	l.Info().Str("conversation_id", convID).Bool("forwarded", resp.Forwarded).Msg("system info stored")
	writeJSON(w, http.StatusOK, resp)
}

// handleListSystemInfo returns stored snapshots, newest first.
func (s *Server) handleListSystemInfo(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	if limit < 1 || limit > 1000 {
		limit = 100
	}
	infos, err := s.svc.ListSystemInfo(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if infos == nil {
		infos = []session.SystemInfo{}
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleGetSystemInfo returns one session's snapshot.
func (s *Server) handleGetSystemInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.SystemInfoFor(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
