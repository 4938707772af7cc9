package session

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// IngestRequest is a validated ingest body. Prompt and AIPrompt are nil when
// absent or blank. Timestamp is zero when the caller did not supply one.
type IngestRequest struct {
	SessionID string
	Prompt    *string
	AIPrompt  *string
	Usage     *Usage
	Timestamp int64

	// RawUsage is the usage object as received, echoed back when the
	// usage write fails.
	RawUsage json.RawMessage
}

// HasContent reports whether the request carries either prompt.
func (r *IngestRequest) HasContent() bool {
	return r.Prompt != nil || r.AIPrompt != nil
}

// IngestPolicy controls what ParseIngest accepts.
type IngestPolicy struct {
	// RequireContent rejects bodies with neither prompt nor ai_prompt
	// instead of treating them as a conversation touch.
	RequireContent bool
}

// ParseIngest validates an ingest body with the default policy.
func ParseIngest(body []byte) (*IngestRequest, error) {
	return IngestPolicy{}.Parse(body)
}

// Parse validates an ingest body.
func (p IngestPolicy) Parse(body []byte) (*IngestRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, invalid(ErrMalformedBody, "%v", err)
	}
	if fields == nil {
		return nil, invalid(ErrMalformedBody, "Body must be a valid JSON object")
	}

	req := &IngestRequest{}

	req.SessionID = stringField(fields, "session_id")
	if isBlank(req.SessionID) {
		req.SessionID = stringField(fields, "sessionId")
	}
	if err := CheckSessionID(req.SessionID); err != nil {
		return nil, err
	}

	req.Prompt = textField(fields, "prompt")
	req.AIPrompt = textField(fields, "ai_prompt")
	if p.RequireContent && !req.HasContent() {
		return nil, invalid(ErrMissingContent, "at least one of prompt or ai_prompt must be a non-blank string")
	}

	if raw, ok := fields["usage"]; ok {
		if u, ok := parseUsage(raw); ok {
			req.Usage = u
			req.RawUsage = raw
		}
	}

	if raw, ok := fields["timestamp"]; ok {
		if v, ok := decodeLoose(raw); ok {
			req.Timestamp = coerceCount(v)
		}
	}

	return req, nil
}

// CheckSessionID rejects a session id that is empty or only whitespace.
// Any other id is used exactly as sent, surrounding spaces included.
func CheckSessionID(id string) error {
	if isBlank(id) {
		return invalid(ErrMissingSessionID, "session_id must be a non-empty string")
	}
	return nil
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// textField returns the string at key unless it is missing, not a string,
// or blank after trimming. The returned text is not trimmed.
func textField(fields map[string]json.RawMessage, key string) *string {
	s := stringField(fields, key)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func parseUsage(raw json.RawMessage) (*Usage, bool) {
	v, ok := decodeLoose(raw)
	if !ok {
		return nil, false
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}

	nested, _ := obj["cache_creation"].(map[string]interface{})

	return &Usage{
		CacheCreationInputTokens:            coerceCount(obj["cache_creation_input_tokens"]),
		CacheReadInputTokens:                coerceCount(obj["cache_read_input_tokens"]),
		OutputTokens:                        coerceCount(obj["output_tokens"]),
		Ephemeral1hInputTokens:              coerceCount(obj["ephemeral_1h_input_tokens"]),
		CacheCreationEphemeral5mInputTokens: coerceCount(nested["ephemeral_5m_input_tokens"]),
		CacheCreationEphemeral1hInputTokens: coerceCount(nested["ephemeral_1h_input_tokens"]),
	}, true
}

func decodeLoose(raw json.RawMessage) (interface{}, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// coerceCount reads v as a non-negative integer counter. Numbers and numeric
// strings are parsed, booleans count as 1 or 0, and anything else is 0.
// Negative, NaN and infinite values become 0; fractions are truncated.
func coerceCount(v interface{}) int64 {
	var f float64
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			if n < 0 {
				return 0
			}
			return n
		}
		parsed, err := x.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case float64:
		f = x
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			if n < 0 {
				return 0
			}
			return n
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = parsed
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0
	}
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(f)
}
