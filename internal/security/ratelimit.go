package security

import (
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// bucket is a token bucket refilled continuously at rate per second.
type bucket struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// Limiter rate limits by key, one token bucket per key. Only the most
// recently used keys keep a bucket; an evicted key starts over full.
type Limiter struct {
	rate  float64
	burst int
	now   func() time.Time

	mu      sync.Mutex
	buckets *lru.Cache[string, *bucket]
}

// NewLimiter allows burst calls at once per key, refilled at perMinute.
// maxKeys bounds memory.
func NewLimiter(perMinute float64, burst, maxKeys int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	if maxKeys < 1 {
		maxKeys = 1024
	}
	buckets, _ := lru.New[string, *bucket](maxKeys)
	return &Limiter{
		rate:    perMinute / 60,
		burst:   burst,
		now:     time.Now,
		buckets: buckets,
	}
}

// Allow takes a token for key. When none is left it reports how long
// until the next one.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	b := l.bucketFor(key)
	now := l.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = math.Min(float64(l.burst), b.tokens+now.Sub(b.last).Seconds()*l.rate)
	b.last = now
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if l.rate <= 0 {
		return false, time.Minute
	}
	wait := time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
	return false, wait
}

func (l *Limiter) bucketFor(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets.Get(key); ok {
		return b
	}
	b := &bucket{tokens: float64(l.burst), last: l.now()}
	l.buckets.Add(key, b)
	return b
}
