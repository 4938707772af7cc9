package session

import (
	"fmt"
	"sort"
	"strings"
)

// Strategy selects how the two prompt logs are paired for display.
type Strategy string

const (
	// StrategyExchange pairs entries written by the same ingest request.
	// Entries without an exchange id fall back to StrategyTimestamp.
	StrategyExchange Strategy = "exchange"
	// StrategyTimestamp emits one row per distinct timestamp across both
	// logs.
	StrategyTimestamp Strategy = "timestamp"
	// StrategyPositional zips both logs by index after sorting by
	// timestamp and drops the unmatched tail.
	StrategyPositional Strategy = "positional"
)

// ParseStrategy converts a config or query string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyExchange, StrategyTimestamp, StrategyPositional:
		return st, nil
	default:
		return "", fmt.Errorf("unknown pairing strategy %q", s)
	}
}

// PairedRow is one display row. Either side may be missing.
type PairedRow struct {
	Timestamp  int64   `json:"timestamp"`
	ExchangeID string  `json:"exchange_id,omitempty"`
	Original   *string `json:"original,omitempty"`
	Rewritten  *string `json:"rewritten,omitempty"`
}

// Reconcile pairs the original and rewritten logs of one conversation.
// It is pure and deterministic: the same inputs in the same order always
// produce the same rows.
func Reconcile(strategy Strategy, originals, rewrites []PromptEvent) []PairedRow {
	switch strategy {
	case StrategyTimestamp:
		return pairByTimestamp(originals, rewrites)
	case StrategyPositional:
		return pairByPosition(originals, rewrites)
	default:
		return pairByExchange(originals, rewrites)
	}
}

func pairByTimestamp(originals, rewrites []PromptEvent) []PairedRow {
	byTS := make(map[int64]*PairedRow)
	row := func(ts int64) *PairedRow {
		r, ok := byTS[ts]
		if !ok {
			r = &PairedRow{Timestamp: ts}
			byTS[ts] = r
		}
		return r
	}
	// Later entries overwrite earlier ones on the same timestamp.
	for _, e := range originals {
		text := e.Text
		row(e.Timestamp).Original = &text
	}
	for _, e := range rewrites {
		text := e.Text
		row(e.Timestamp).Rewritten = &text
	}

	rows := make([]PairedRow, 0, len(byTS))
	for _, r := range byTS {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp < rows[j].Timestamp })
	return rows
}

func pairByPosition(originals, rewrites []PromptEvent) []PairedRow {
	o := sortedByTimestamp(originals)
	w := sortedByTimestamp(rewrites)

	n := len(o)
	if len(w) < n {
		n = len(w)
	}
	rows := make([]PairedRow, 0, n)
	for i := 0; i < n; i++ {
		orig, rew := o[i].Text, w[i].Text
		rows = append(rows, PairedRow{
			Timestamp:  o[i].Timestamp,
			ExchangeID: o[i].ExchangeID,
			Original:   &orig,
			Rewritten:  &rew,
		})
	}
	return rows
}

func pairByExchange(originals, rewrites []PromptEvent) []PairedRow {
	byID := make(map[string]*PairedRow)
	var legacyOrig, legacyRew []PromptEvent

	add := func(e PromptEvent, original bool) {
		r, ok := byID[e.ExchangeID]
		if !ok {
			r = &PairedRow{Timestamp: e.Timestamp, ExchangeID: e.ExchangeID}
			byID[e.ExchangeID] = r
		}
		if e.Timestamp < r.Timestamp {
			r.Timestamp = e.Timestamp
		}
		text := e.Text
		if original {
			r.Original = &text
		} else {
			r.Rewritten = &text
		}
	}

	for _, e := range originals {
		if e.ExchangeID == "" {
			legacyOrig = append(legacyOrig, e)
			continue
		}
		add(e, true)
	}
	for _, e := range rewrites {
		if e.ExchangeID == "" {
			legacyRew = append(legacyRew, e)
			continue
		}
		add(e, false)
	}

	rows := pairByTimestamp(legacyOrig, legacyRew)
	for _, r := range byID {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Timestamp != rows[j].Timestamp {
			return rows[i].Timestamp < rows[j].Timestamp
		}
		return rows[i].ExchangeID < rows[j].ExchangeID
	})
	return rows
}

func sortedByTimestamp(events []PromptEvent) []PromptEvent {
	out := make([]PromptEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// Stats summarises a conversation for list views.
type Stats struct {
	// Count is the number of original prompts.
	Count   int    `json:"count"`
	Created *int64 `json:"created"`
	Updated *int64 `json:"updated"`
}

// ComputeStats derives Stats from both logs. Created and Updated are the
// smallest and largest timestamps across both logs, nil when both are empty.
func ComputeStats(originals, rewrites []PromptEvent) Stats {
	st := Stats{Count: len(originals)}
	var lo, hi int64
	seen := false
	for _, log := range [][]PromptEvent{originals, rewrites} {
		for _, e := range log {
			if !seen || e.Timestamp < lo {
				lo = e.Timestamp
			}
			if !seen || e.Timestamp > hi {
				hi = e.Timestamp
			}
			seen = true
		}
	}
	if seen {
		st.Created = &lo
		st.Updated = &hi
	}
	return st
}
