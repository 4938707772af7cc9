package testutil

import (
	"encoding/json"
	"fmt"
	"strings"
)

// IngestBody builds an ingest request body. Empty prompt or aiPrompt
// fields are left out.
func IngestBody(sessionID, prompt, aiPrompt string) []byte {
	req := map[string]interface{}{"session_id": sessionID}
	if prompt != "" {
		req["prompt"] = prompt
	}
	if aiPrompt != "" {
		req["ai_prompt"] = aiPrompt
	}
	data, _ := json.Marshal(req)
	return data
}

// IngestBodyWithUsage is IngestBody plus a usage object in the client's
// wire shape, including the nested cache_creation counters.
func IngestBodyWithUsage(sessionID, prompt string, outputTokens int64) []byte {
	req := map[string]interface{}{
		"session_id": sessionID,
		"prompt":     prompt,
		"usage": map[string]interface{}{
			"cache_creation_input_tokens": 120,
			"cache_read_input_tokens":     "40",
			"output_tokens":               outputTokens,
			"ephemeral_1h_input_tokens":   0,
			"cache_creation": map[string]interface{}{
				"ephemeral_5m_input_tokens": 7,
				"ephemeral_1h_input_tokens": 3,
			},
		},
	}
	data, _ := json.Marshal(req)
	return data
}

// SystemInfoBody builds a system-info request body.
func SystemInfoBody(sessionID string) []byte {
	req := map[string]interface{}{
		"session_id": sessionID,
		"system_data": map[string]interface{}{
			"os":        "linux",
			"cpu_count": 8,
		},
	}
	data, _ := json.Marshal(req)
	return data
}

// TranscriptJSONL returns a transcript with n user events and n assistant
// events interleaved, in the format the seed command imports.
func TranscriptJSONL(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `{"type":"user","timestamp":"2025-01-0%dT10:00:00Z","message":{"content":"question %d"}}`+"\n", i%9+1, i)
		fmt.Fprintf(&b, `{"type":"assistant","timestamp":"2025-01-0%dT10:00:05Z","message":{"content":[{"type":"text","text":"answer %d"}]}}`+"\n", i%9+1, i)
	}
	return b.String()
}
