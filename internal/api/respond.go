package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/promptstudio/internal/session"
)

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

// errorBody is the shape of every error response.
type errorBody struct {
	Error          string          `json:"error"`
	Details        string          `json:"details,omitempty"`
	Operation      string          `json:"operation,omitempty"`
	SessionID      string          `json:"sessionId,omitempty"`
	ConversationID string          `json:"conversationId,omitempty"`
	UsageData      json.RawMessage `json:"usageData,omitempty"`
}

// storeWriteMessages are the user facing messages per failed operation.
var storeWriteMessages = map[string]string{
	"addPrompt":      "Failed to create/update conversation",
	"upsert":         "Failed to create/update conversation",
	"usage":          "Failed to save usage data",
	"systemInfo":     "Failed to save system info",
	"markEnrichment": "Failed to mark enrichment collected",
}

// errorKind names an error for the error counter.
func errorKind(err error) string {
	switch {
	case errors.Is(err, session.ErrMalformedBody):
		return "malformed_body"
	case errors.Is(err, session.ErrMissingSessionID):
		return "missing_session_id"
	case errors.Is(err, session.ErrMissingContent):
		return "missing_content"
	case errors.Is(err, session.ErrNotFound):
		return "not_found"
	case errors.Is(err, session.ErrEnrichmentUnavailable):
		return "enrichment_unavailable"
	case errors.Is(err, session.ErrStoreWrite):
		return "store_write"
	default:
		return "internal"
	}
}

// writeError maps err to a status code and error body, counts it and logs
// server side failures. rawUsage is echoed back when a usage write failed.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, rawUsage json.RawMessage) {
	s.collector.RecordError(errorKind(err))

	var (
		ve *session.ValidationError
		sw *session.StoreWriteError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Kind.Error(), Details: ve.Detail})

	case errors.Is(err, session.ErrMissingSessionID),
		errors.Is(err, session.ErrMalformedBody),
		errors.Is(err, session.ErrMissingContent):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})

	case errors.As(err, &sw):
		reqLogger(r).Error().Err(err).Str("operation", sw.Op).Msg("store write failed")
		body := errorBody{Error: storeWriteMessages[sw.Op], Details: sw.Err.Error(), Operation: sw.Op}
		if body.Error == "" {
			body.Error = session.ErrStoreWrite.Error()
		}
		if sw.Op == "usage" {
			body.ConversationID = sw.Key
			body.UsageData = rawUsage
		} else {
			body.SessionID = sw.Key
		}
		writeJSON(w, http.StatusInternalServerError, body)

	case errors.Is(err, session.ErrEnrichmentUnavailable):
		reqLogger(r).Warn().Err(err).Msg("enrichment unavailable")
		writeJSON(w, http.StatusBadGateway, errorBody{Error: session.ErrEnrichmentUnavailable.Error(), Details: err.Error()})

	case errors.Is(err, session.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: session.ErrNotFound.Error(), Details: err.Error()})

	default:
		reqLogger(r).Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Details: err.Error()})
	}
}

// readBody reads the whole request body. Oversized and unreadable bodies
// are reported as malformed.
func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, &session.ValidationError{Kind: session.ErrMalformedBody, Detail: fmt.Sprintf("body exceeds %d bytes", mbe.Limit)}
		}
		return nil, &session.ValidationError{Kind: session.ErrMalformedBody, Detail: err.Error()}
	}
	return body, nil
}

// queryInt reads an integer query parameter with a default fallback.
func queryInt(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return n
}
