package tokenizer

import (
	"testing"

	"github.com/allaspectsdev/promptstudio/internal/session"
)

func TestCount_NonZeroForText(t *testing.T) {
	tok := New("")
	if n := tok.Count("Hello, world! This is a test."); n <= 0 {
		t.Errorf("Count: got %d, want > 0", n)
	}
}

func TestCount_ZeroForEmptyText(t *testing.T) {
	if n := New("").Count(""); n != 0 {
		t.Errorf("Count(\"\"): got %d, want 0", n)
	}
}

func TestNew_DefaultEncoding(t *testing.T) {
	if got := New("").Encoding(); got != DefaultEncoding {
		t.Errorf("Encoding: got %q, want %q", got, DefaultEncoding)
	}
	if got := New("o200k_base").Encoding(); got != "o200k_base" {
		t.Errorf("Encoding: got %q", got)
	}
}

func TestUnknownEncodingFallsBack(t *testing.T) {
	tok := New("no_such_encoding")
	if tok.Exact() {
		t.Fatal("unknown encoding should not be exact")
	}
	if got := tok.Count("abcdefgh"); got != 2 {
		t.Errorf("fallback Count: got %d, want 2", got)
	}
	if got := tok.Count("abcdefghi"); got != 3 {
		t.Errorf("fallback Count rounds up: got %d, want 3", got)
	}
}

func TestApproximate_CountsRunes(t *testing.T) {
	if got := approximate("日本語です"); got != 2 {
		t.Errorf("approximate: got %d, want 2", got)
	}
}

func TestEstimateRows(t *testing.T) {
	tok := New("no_such_encoding")
	orig := "fix bug"                                   // 7 runes -> 2
	rew := "Please fix the failing bug in the parser." // 41 runes -> 11
	rows := []session.PairedRow{
		{Timestamp: 1, Original: &orig, Rewritten: &rew},
		{Timestamp: 2, Original: &orig},
	}

	est := tok.EstimateRows(rows)
	if len(est.Rows) != 2 {
		t.Fatalf("rows: got %d, want 2", len(est.Rows))
	}
	if est.Rows[0].Original != 2 || est.Rows[0].Rewritten != 11 || est.Rows[0].Delta != 9 {
		t.Errorf("row 0: got %+v", est.Rows[0])
	}
	if est.Rows[1].Rewritten != 0 || est.Rows[1].Delta != -2 {
		t.Errorf("row 1: got %+v", est.Rows[1])
	}
	if est.Original != 4 || est.Rewritten != 11 {
		t.Errorf("totals: got original %d rewritten %d", est.Original, est.Rewritten)
	}
	if est.Exact {
		t.Error("Exact: got true for fallback encoding")
	}
}
