// Package security keeps secrets and personal data out of what
// promptstudio sends to external workflows, and rate limits those calls.
package security

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

// Pattern detects one kind of sensitive value. Check, when set, rejects
// regex matches that are false positives.
type Pattern struct {
	Kind  string
	re    *regexp.Regexp
	Check func(match string) bool
}

// Match returns the accepted matches of p in text.
func (p *Pattern) Match(text string) []string {
	var out []string
	for _, m := range p.re.FindAllString(text, -1) {
		if p.Check == nil || p.Check(m) {
			out = append(out, m)
		}
	}
	return out
}

// Patterns returns the detectors in the order they are applied. Secrets
// come before generic shapes so a key is not half-claimed by PHONE.
func Patterns() []*Pattern {
	return []*Pattern{
		{Kind: "API_KEY", re: regexp.MustCompile(`sk-ant-[A-Za-z0-9_\-]{20,}|sk-[A-Za-z0-9]{20,}|AKIA[A-Z0-9]{16}|ghp_[A-Za-z0-9]{36}|github_pat_[A-Za-z0-9_]{22,}|glpat-[A-Za-z0-9\-]{20,}|xox[bpa]-[A-Za-z0-9\-]{10,}`)},
		{Kind: "SECRET", re: regexp.MustCompile(`(?i)(?:api[_\-]?key|secret|token|password|passwd)\s*[=:]\s*["']?[A-Za-z0-9/+_\-]{16,}["']?`), Check: assignmentEntropy},
		{Kind: "PRIVATE_KEY", re: regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)},
		{Kind: "EMAIL", re: regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
		{Kind: "SSN", re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), Check: plausibleSSN},
		{Kind: "CARD", re: regexp.MustCompile(`\b(?:\d[ \-]?){12,18}\d\b`), Check: luhnValid},
		{Kind: "PHONE", re: regexp.MustCompile(`\+[1-9]\d{7,14}\b|\(?\b\d{3}\)?[ .\-]\d{3}[ .\-]\d{4}\b`)},
		{Kind: "HOME_DIR", re: regexp.MustCompile(`/Users/[^/\s]+|/home/[^/\s]+|C:\\Users\\[^\\\s]+`)},
	}
}

func plausibleSSN(m string) bool {
	area, group, serial := m[0:3], m[4:6], m[7:11]
	return area != "000" && area != "666" && area[0] != '9' && group != "00" && serial != "0000"
}

func luhnValid(m string) bool {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, m)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if (len(digits)-1-i)%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

// assignmentEntropy accepts "token = value" matches whose value looks
// random rather than like a word.
func assignmentEntropy(m string) bool {
	i := strings.IndexAny(m, "=:")
	if i < 0 {
		return false
	}
	value := strings.Trim(strings.TrimSpace(m[i+1:]), `"'`)
	return entropy(value) > 3.5
}

// entropy is the Shannon entropy of s in bits per rune.
func entropy(s string) float64 {
	counts := map[rune]int{}
	n := 0
	for _, r := range s {
		counts[r]++
		n++
	}
	if n == 0 {
		return 0
	}
	var h float64
	for _, c := range counts {
		p := float64(c) / float64(n)
		h -= p * math.Log2(p)
	}
	return h
}
