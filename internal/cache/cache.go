// Package cache keeps advice responses in a two-tier cache: an in-memory LRU
// in front of an optional persistent Store.
package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
)

// Entry is one cached advice response.
type Entry struct {
	ConversationID string
	Advice         []string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Expired reports whether the entry has passed its expiry.
func (e *Entry) Expired() bool {
	return time.Now().After(e.ExpiresAt)
}

// Store is the persistence interface behind the in-memory tier.
type Store interface {
	GetEntry(ctx context.Context, key string) (*Entry, error)
	SetEntry(ctx context.Context, key string, entry *Entry) error
	DeleteExpired(ctx context.Context) error
}

// AdviceCache caches advice lists by content key.
type AdviceCache struct {
	memory  *lru.Cache[string, *Entry]
	store   Store
	ttl     time.Duration
	enabled bool
}

// New creates an AdviceCache. store may be nil for memory-only caching.
func New(store Store, ttlSeconds, maxEntries int, enabled bool) (*AdviceCache, error) {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	memCache, err := lru.New[string, *Entry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("cache: creating LRU: %w", err)
	}
	return &AdviceCache{
		memory:  memCache,
		store:   store,
		ttl:     time.Duration(ttlSeconds) * time.Second,
		enabled: enabled,
	}, nil
}

// Enabled reports whether the cache is active.
func (c *AdviceCache) Enabled() bool {
	return c.enabled
}

// Get returns the cached advice for key. A hit in the persistent tier is
// promoted into memory.
func (c *AdviceCache) Get(ctx context.Context, key string) ([]string, bool) {
	if !c.enabled {
		return nil, false
	}

	if entry, ok := c.memory.Get(key); ok {
		if !entry.Expired() {
			return entry.Advice, true
		}
		c.memory.Remove(key)
	}

	if c.store != nil {
		entry, err := c.store.GetEntry(ctx, key)
		if err == nil && entry != nil && !entry.Expired() {
			c.memory.Add(key, entry)
			return entry.Advice, true
		}
	}
	return nil, false
}

// Put stores advice under key in both tiers. Empty advice is not cached.
func (c *AdviceCache) Put(ctx context.Context, key, conversationID string, advice []string) {
	if !c.enabled || len(advice) == 0 {
		return
	}
	now := time.Now()
	entry := &Entry{
		ConversationID: conversationID,
		Advice:         advice,
		CreatedAt:      now,
		ExpiresAt:      now.Add(c.ttl),
	}
	c.memory.Add(key, entry)

	if c.store != nil {
		if err := c.store.SetEntry(ctx, key, entry); err != nil {
			log.Warn().Err(err).Str("conversation_id", conversationID).Msg("advice cache: persisting entry failed")
		}
	}
}

// Len returns the number of entries in the memory tier.
func (c *AdviceCache) Len() int {
	return c.memory.Len()
}

// StartPurger evicts expired entries from both tiers every interval until
// ctx is cancelled. The returned channel is closed when the goroutine exits
// so callers can wait before closing the store.
func (c *AdviceCache) StartPurger(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Error().Interface("panic", r).Msg("advice cache purger: recovered from panic")
						}
					}()
					c.purge(ctx)
				}()
			}
		}
	}()
	return done
}

func (c *AdviceCache) purge(ctx context.Context) {
	if c.store != nil {
		if err := c.store.DeleteExpired(ctx); err != nil {
			log.Warn().Err(err).Msg("advice cache: purge failed")
		}
	}
	for _, key := range c.memory.Keys() {
		if entry, ok := c.memory.Peek(key); ok && entry.Expired() {
			c.memory.Remove(key)
		}
	}
}
