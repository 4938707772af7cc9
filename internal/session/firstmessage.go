package session

import (
	"fmt"
	"strings"
)

// FirstMessageRule decides when a session stops being on its first message.
type FirstMessageRule string

const (
	// FirstMessageConversation ends the first message at the session's
	// first successful write.
	FirstMessageConversation FirstMessageRule = "conversation"
	// FirstMessageEnrichment ends it when the enrichment flag is set, so a
	// failed system info collection is retried on the next prompt.
	FirstMessageEnrichment FirstMessageRule = "enrichment"
)

// ParseFirstMessageRule converts a config string into a FirstMessageRule.
func ParseFirstMessageRule(s string) (FirstMessageRule, error) {
	switch r := FirstMessageRule(strings.ToLower(strings.TrimSpace(s))); r {
	case FirstMessageConversation, FirstMessageEnrichment:
		return r, nil
	default:
		return "", fmt.Errorf("unknown first message rule %q", s)
	}
}
