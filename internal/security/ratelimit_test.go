package security

import (
	"testing"
	"time"
)

func TestLimiter_BurstThenRefill(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewLimiter(60, 2, 10) // one token per second
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("a"); !ok {
			t.Fatalf("call %d within burst was limited", i)
		}
	}
	ok, wait := l.Allow("a")
	if ok {
		t.Fatal("call beyond burst was allowed")
	}
	if wait != time.Second {
		t.Errorf("wait = %v, want 1s", wait)
	}

	if ok, _ := l.Allow("b"); !ok {
		t.Error("keys should not share a bucket")
	}

	now = now.Add(1500 * time.Millisecond)
	if ok, _ := l.Allow("a"); !ok {
		t.Error("expected a refilled token")
	}
	if ok, _ := l.Allow("a"); ok {
		t.Error("only one token should have refilled")
	}
}

func TestLimiter_EvictedKeyStartsFull(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewLimiter(1, 1, 1)
	l.now = func() time.Time { return now }

	l.Allow("a")
	if ok, _ := l.Allow("a"); ok {
		t.Fatal("expected a to be limited")
	}
	l.Allow("b") // evicts a
	if ok, _ := l.Allow("a"); !ok {
		t.Error("evicted key should start with a full bucket")
	}
}

func TestLimiter_Nil(t *testing.T) {
	var l *Limiter
	if ok, _ := l.Allow("x"); !ok {
		t.Error("nil limiter should allow")
	}
}
