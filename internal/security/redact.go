package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Redaction modes.
const (
	ModeOff         = "off"
	ModePlaceholder = "placeholder"
	ModeHash        = "hash"
)

// Finding is one detected value, masked for logging.
type Finding struct {
	Kind   string `json:"kind"`
	Masked string `json:"masked"`
}

// Redactor replaces sensitive values in text. The zero value and a nil
// *Redactor pass text through unchanged.
type Redactor struct {
	mode     string
	patterns []*Pattern
	allow    map[string]struct{}
}

// NewRedactor returns a Redactor for mode. Values in allow are never
// replaced.
func NewRedactor(mode string, allow []string) *Redactor {
	r := &Redactor{mode: strings.ToLower(mode), allow: make(map[string]struct{}, len(allow))}
	if r.mode == "" {
		r.mode = ModePlaceholder
	}
	if r.mode != ModeOff {
		r.patterns = Patterns()
	}
	for _, v := range allow {
		r.allow[v] = struct{}{}
	}
	return r
}

// Mode returns the configured mode.
func (r *Redactor) Mode() string {
	if r == nil || r.mode == "" {
		return ModeOff
	}
	return r.mode
}

// Scope starts a redaction pass. Every text redacted through one Scope
// shares placeholder numbering, so the same value maps to the same
// placeholder across all prompts of a request.
func (r *Redactor) Scope() *Scope {
	return &Scope{r: r, forward: map[string]string{}, reverse: map[string]string{}, next: map[string]int{}}
}

// Scope holds the placeholder mapping of one redaction pass. It is not
// safe for concurrent use.
type Scope struct {
	r        *Redactor
	forward  map[string]string
	reverse  map[string]string
	next     map[string]int
	findings []Finding
}

// Redact returns text with every detected value replaced.
func (s *Scope) Redact(text string) string {
	if s.r == nil || len(s.r.patterns) == 0 || text == "" {
		return text
	}
	for _, p := range s.r.patterns {
		for _, m := range p.Match(text) {
			if _, ok := s.r.allow[m]; ok {
				continue
			}
			if !strings.Contains(text, m) {
				// Consumed by an earlier, overlapping replacement.
				continue
			}
			text = strings.ReplaceAll(text, m, s.replacement(p.Kind, m))
		}
	}
	return text
}

func (s *Scope) replacement(kind, value string) string {
	if ph, ok := s.forward[value]; ok {
		return ph
	}
	s.findings = append(s.findings, Finding{Kind: kind, Masked: mask(value)})

	var ph string
	if s.r.mode == ModeHash {
		sum := sha256.Sum256([]byte(value))
		ph = fmt.Sprintf("[%s:%s]", kind, hex.EncodeToString(sum[:4]))
	} else {
		s.next[kind]++
		ph = fmt.Sprintf("[%s_%d]", kind, s.next[kind])
		s.reverse[ph] = value
	}
	s.forward[value] = ph
	return ph
}

// Restore puts original values back in place of placeholders. Hashed
// values cannot be restored and are left as they are.
func (s *Scope) Restore(text string) string {
	if len(s.reverse) == 0 {
		return text
	}
	// Longest first so [EMAIL_1] does not clobber [EMAIL_10].
	phs := make([]string, 0, len(s.reverse))
	for ph := range s.reverse {
		phs = append(phs, ph)
	}
	sort.Slice(phs, func(i, j int) bool { return len(phs[i]) > len(phs[j]) })
	for _, ph := range phs {
		text = strings.ReplaceAll(text, ph, s.reverse[ph])
	}
	return text
}

// Findings returns what the scope replaced, one entry per distinct value.
func (s *Scope) Findings() []Finding {
	return s.findings
}

// mask keeps the first and last two bytes of values longer than four.
func mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
