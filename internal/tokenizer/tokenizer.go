// Package tokenizer estimates token counts of stored prompts so the
// dashboard can show how much a rewrite grew or shrank a prompt.
package tokenizer

import (
	"sync"
	"unicode/utf8"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/allaspectsdev/promptstudio/internal/session"
)

// DefaultEncoding is used when New is given an empty encoding name.
const DefaultEncoding = "cl100k_base"

// charsPerToken approximates tokens when no BPE encoding can be loaded.
const charsPerToken = 4

// Tokenizer counts tokens with a lazily loaded tiktoken encoding. If the
// encoding cannot be loaded it falls back to a character heuristic, so
// counts are always available but may be approximate.
type Tokenizer struct {
	encoding string

	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

// New creates a Tokenizer for the named tiktoken encoding.
func New(encoding string) *Tokenizer {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &Tokenizer{encoding: encoding}
}

// Encoding returns the configured encoding name.
func (t *Tokenizer) Encoding() string { return t.encoding }

func (t *Tokenizer) encoder() (*tiktoken.Tiktoken, error) {
	t.once.Do(func() {
		t.enc, t.err = tiktoken.GetEncoding(t.encoding)
	})
	return t.enc, t.err
}

// Exact reports whether counts come from the BPE encoding rather than the
// fallback heuristic.
func (t *Tokenizer) Exact() bool {
	_, err := t.encoder()
	return err == nil
}

// Count returns the number of tokens in text.
func (t *Tokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	if enc, err := t.encoder(); err == nil {
		return len(enc.Encode(text, nil, nil))
	}
	return approximate(text)
}

func approximate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}

// RowEstimate holds the token counts of one paired row. Delta is
// rewritten minus original.
type RowEstimate struct {
	Original  int `json:"original"`
	Rewritten int `json:"rewritten"`
	Delta     int `json:"delta"`
}

// Estimate summarises a conversation's token counts.
type Estimate struct {
	Encoding  string        `json:"encoding"`
	Exact     bool          `json:"exact"`
	Rows      []RowEstimate `json:"rows"`
	Original  int           `json:"original"`
	Rewritten int           `json:"rewritten"`
}

// EstimateRows counts both sides of every row. Missing sides count as 0.
func (t *Tokenizer) EstimateRows(rows []session.PairedRow) Estimate {
	est := Estimate{
		Encoding: t.encoding,
		Exact:    t.Exact(),
		Rows:     make([]RowEstimate, 0, len(rows)),
	}
	for _, r := range rows {
		var re RowEstimate
		if r.Original != nil {
			re.Original = t.Count(*r.Original)
		}
		if r.Rewritten != nil {
			re.Rewritten = t.Count(*r.Rewritten)
		}
		re.Delta = re.Rewritten - re.Original
		est.Original += re.Original
		est.Rewritten += re.Rewritten
		est.Rows = append(est.Rows, re)
	}
	return est
}
