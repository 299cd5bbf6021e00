// Package cache implements the suggestion cache: raw (unranked) lookup
// results keyed by prefix with a short TTL, invalidated wholesale on
// rebuild, by exact prefix via clear_cache, or by pattern.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/evgenyvinnik/typeahead-core/pkg/phrase"
)

// DefaultTTL is the cache_ttl_sec default.
const DefaultTTL = 60 * time.Second

type entry struct {
	suggestions []phrase.Suggestion
	expiresAt   time.Time
}

// Cache is a process-local, TTL-bounded suggestion cache held in an
// in-memory map. It has no external backing store; entries are not shared
// between processes.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
}

// New constructs a Cache with the given TTL (0 uses DefaultTTL).
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{ttl: ttl, now: time.Now, entries: make(map[string]entry)}
}

// Key builds the cache key for a prefix lookup. The empty-prefix
// (popular) case uses a fixed key distinct from any real prefix.
func Key(prefix string) string {
	if prefix == "" {
		return "\x00popular"
	}
	return prefix
}

// Get returns the cached raw suggestion list for prefix, if present and unexpired.
func (c *Cache) Get(prefix string) ([]phrase.Suggestion, bool) {
	k := Key(prefix)
	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	out := make([]phrase.Suggestion, len(e.suggestions))
	copy(out, e.suggestions)
	return out, true
}

// Set stores the raw suggestion list for prefix under the cache's TTL.
func (c *Cache) Set(prefix string, suggestions []phrase.Suggestion) {
	k := Key(prefix)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[k] = entry{suggestions: suggestions, expiresAt: c.now().Add(c.ttl)}
}

// InvalidateAll drops every cached entry, for rebuild_trie.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Invalidate drops the entry for exactly one prefix, for clear_cache.
func (c *Cache) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, Key(prefix))
}

// InvalidatePattern drops every key with the given string prefix, for
// administrative pattern invalidation. An empty pattern invalidates
// everything.
func (c *Cache) InvalidatePattern(pattern string) {
	if pattern == "" {
		c.InvalidateAll()
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, pattern) {
			delete(c.entries, k)
		}
	}
}
