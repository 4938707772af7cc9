package main

import "testing"

func TestFlagValue(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--file=a.jsonl"}, "a.jsonl"},
		{[]string{"--session-id", "s", "--file", "b.jsonl"}, "b.jsonl"},
		{[]string{"--files=x"}, "def"},
		{[]string{"--file"}, "def"},
		{nil, "def"},
	}
	for _, tt := range tests {
		if got := flagValue(tt.args, "file", "def"); got != tt.want {
			t.Errorf("flagValue(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestPositional(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"out.jsonl.zst"}, "out.jsonl.zst"},
		{[]string{"--url", "http://x", "out.jsonl"}, "out.jsonl"},
		{[]string{"--url=http://x", "out.jsonl"}, "out.jsonl"},
		{[]string{"--url", "http://x"}, ""},
	}
	for _, tt := range tests {
		if got := positional(tt.args); got != tt.want {
			t.Errorf("positional(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}
