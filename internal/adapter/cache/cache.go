package cache

import (
	"container/list"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"solmate/internal/domain"
	"solmate/internal/infra/config"
)

// keyParams is the canonical subset of generation parameters that
// participate in cache keys. Anything else (api keys, cache toggles) must
// never affect the key.
type keyParams struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
	TopP        float64 `json:"topP"`
}

// Key builds the canonical cache key for a prompt. The prompt is normalized
// (lowercased, trimmed) so trivially different phrasings of the same request
// share an entry.
func Key(provider, model, prompt string, opts domain.GenerateOptions) string {
	params, _ := json.Marshal(keyParams{
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		TopP:        opts.TopP,
	})
	normalized := strings.ToLower(strings.TrimSpace(prompt))
	return fmt.Sprintf("%s:%s:%s:%s", provider, model, params, normalized)
}

type entry struct {
	key       string
	resp      *domain.CompletionResponse
	expiresAt time.Time
}

// Stats is a point-in-time snapshot of cache state for the metrics surface.
type Stats struct {
	Entries    int   `json:"entries"`
	MaxEntries int   `json:"max_entries"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
}

// ResponseCache is a bounded TTL+LRU cache for completion responses.
// Each hit refreshes the entry's TTL (sliding expiry) and its recency.
// Expired entries are dropped lazily on access and in bulk by Sweep.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = least recently used, back = most recent
	ttl     time.Duration
	max     int
	enabled bool
	now     func() time.Time
	logger  *slog.Logger

	hits      int64
	misses    int64
	evictions int64
}

// New creates a ResponseCache from config. A disabled cache accepts calls
// but never stores or returns anything.
func New(cfg config.CacheConfig, logger *slog.Logger) *ResponseCache {
	return &ResponseCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		ttl:     cfg.TTL,
		max:     cfg.MaxEntries,
		enabled: cfg.Enabled,
		now:     time.Now,
		logger:  logger,
	}
}

// Get returns the cached response for key, if present and fresh. A hit
// refreshes both the TTL and the entry's recency.
func (c *ResponseCache) Get(key string) (*domain.CompletionResponse, bool) {
	if !c.enabled {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	e := el.Value.(*entry)
	now := c.now()
	if now.After(e.expiresAt) {
		c.removeLocked(el)
		c.misses++
		return nil, false
	}

	e.expiresAt = now.Add(c.ttl)
	c.order.MoveToBack(el)
	c.hits++
	return e.resp, true
}

// Set stores a response under key, evicting the least recently used entry
// when the cache is full. Storing an existing key refreshes it in place.
func (c *ResponseCache) Set(key string, resp *domain.CompletionResponse) {
	if !c.enabled || resp == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		e.resp = resp
		e.expiresAt = now.Add(c.ttl)
		c.order.MoveToBack(el)
		return
	}

	if c.order.Len() >= c.max {
		if oldest := c.order.Front(); oldest != nil {
			c.removeLocked(oldest)
			c.evictions++
		}
	}

	el := c.order.PushBack(&entry{
		key:       key,
		resp:      resp,
		expiresAt: now.Add(c.ttl),
	})
	c.entries[key] = el
}

// Delete removes a single entry.
func (c *ResponseCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
}

// Clear drops all entries. Counters are preserved.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Sweep removes all expired entries and returns how many were dropped.
// Intended to run on a schedule so idle expired entries do not pin memory
// until their key is touched again.
func (c *ResponseCache) Sweep() int {
	if !c.enabled {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if now.After(el.Value.(*entry).expiresAt) {
			c.removeLocked(el)
			removed++
		}
		el = next
	}

	if removed > 0 {
		c.logger.Debug("cache sweep", "removed", removed, "remaining", c.order.Len())
	}
	return removed
}

// Stats returns a snapshot of cache counters and occupancy.
func (c *ResponseCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Entries:    c.order.Len(),
		MaxEntries: c.max,
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
	}
}

// Enabled reports whether the cache stores anything at all.
func (c *ResponseCache) Enabled() bool { return c.enabled }

func (c *ResponseCache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	delete(c.entries, e.key)
	c.order.Remove(el)
}
