package cache

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"solmate/internal/domain"
	"solmate/internal/infra/config"
)

func newTestCache(t *testing.T, cfg config.CacheConfig) (*ResponseCache, *time.Time) {
	t.Helper()
	c := New(cfg, slog.Default())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func resp(content string) *domain.CompletionResponse {
	return &domain.CompletionResponse{Provider: "openai", Model: "gpt-4", Content: content}
}

func TestKeyNormalizesPrompt(t *testing.T) {
	opts := domain.GenerateOptions{Temperature: 0.7, MaxTokens: 1000, TopP: 1}
	a := Key("openai", "gpt-4", "  What is Solana?  ", opts)
	b := Key("openai", "gpt-4", "what is solana?", opts)
	if a != b {
		t.Errorf("normalized keys differ:\n%s\n%s", a, b)
	}
}

func TestKeyIgnoresNonGenerationOptions(t *testing.T) {
	base := domain.GenerateOptions{Temperature: 0.7, MaxTokens: 1000, TopP: 1}
	withExtras := base
	withExtras.APIKey = "sk-secret"
	withExtras.DisableCache = true
	withExtras.Provider = "something-else"

	a := Key("openai", "gpt-4", "hi", base)
	b := Key("openai", "gpt-4", "hi", withExtras)
	if a != b {
		t.Error("key must depend only on temperature, maxTokens and topP")
	}
	if strings.Contains(a, "sk-secret") {
		t.Error("key leaked the api key")
	}
}

func TestKeyVariesWithParams(t *testing.T) {
	a := Key("openai", "gpt-4", "hi", domain.GenerateOptions{Temperature: 0.7})
	b := Key("openai", "gpt-4", "hi", domain.GenerateOptions{Temperature: 0.2})
	if a == b {
		t.Error("different temperatures must produce different keys")
	}
}

func TestGetRefreshesSlidingTTL(t *testing.T) {
	c, now := newTestCache(t, config.CacheConfig{Enabled: true, TTL: time.Hour, MaxEntries: 10})

	c.Set("k", resp("v"))

	// 50 minutes later: still fresh, and the hit refreshes the TTL.
	*now = now.Add(50 * time.Minute)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	// Another 50 minutes: past the original deadline but within the
	// refreshed one.
	*now = now.Add(50 * time.Minute)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("sliding TTL should have kept the entry alive")
	}

	// 61 minutes idle: expired.
	*now = now.Add(61 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected lazy expiry")
	}

	if got := c.Stats().Entries; got != 0 {
		t.Errorf("entries = %d after lazy expiry", got)
	}
}

func TestEvictionIsLRUByAccess(t *testing.T) {
	c, _ := newTestCache(t, config.CacheConfig{Enabled: true, TTL: time.Hour, MaxEntries: 2})

	c.Set("a", resp("1"))
	c.Set("b", resp("2"))

	// Touch "a" so "b" becomes least recently used.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit on a")
	}

	c.Set("c", resp("3"))

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should have survived")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should be present")
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("evictions = %d", got)
	}
}

func TestSetExistingKeyRefreshesInPlace(t *testing.T) {
	c, _ := newTestCache(t, config.CacheConfig{Enabled: true, TTL: time.Hour, MaxEntries: 2})

	c.Set("a", resp("old"))
	c.Set("b", resp("2"))
	c.Set("a", resp("new"))

	got, ok := c.Get("a")
	if !ok || got.Content != "new" {
		t.Errorf("got %+v, want refreshed entry", got)
	}
	if c.Stats().Entries != 2 {
		t.Errorf("entries = %d", c.Stats().Entries)
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	c, now := newTestCache(t, config.CacheConfig{Enabled: true, TTL: time.Minute, MaxEntries: 10})

	c.Set("a", resp("1"))
	c.Set("b", resp("2"))

	*now = now.Add(2 * time.Minute)
	c.Set("c", resp("3"))

	if removed := c.Sweep(); removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("fresh entry should survive sweep")
	}
}

func TestDisabledCacheStoresNothing(t *testing.T) {
	c, _ := newTestCache(t, config.CacheConfig{Enabled: false, TTL: time.Hour, MaxEntries: 10})

	c.Set("k", resp("v"))
	if _, ok := c.Get("k"); ok {
		t.Error("disabled cache must miss")
	}
	if c.Sweep() != 0 {
		t.Error("disabled cache has nothing to sweep")
	}
	if c.Enabled() {
		t.Error("Enabled() should be false")
	}
}

func TestStatsCounters(t *testing.T) {
	c, _ := newTestCache(t, config.CacheConfig{Enabled: true, TTL: time.Hour, MaxEntries: 10})

	c.Set("k", resp("v"))
	c.Get("k")
	c.Get("k")
	c.Get("absent")

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 {
		t.Errorf("hits = %d, misses = %d", s.Hits, s.Misses)
	}
	if s.Entries != 1 || s.MaxEntries != 10 {
		t.Errorf("entries = %d/%d", s.Entries, s.MaxEntries)
	}
}

func TestClear(t *testing.T) {
	c, _ := newTestCache(t, config.CacheConfig{Enabled: true, TTL: time.Hour, MaxEntries: 10})

	c.Set("a", resp("1"))
	c.Set("b", resp("2"))
	c.Clear()

	if c.Stats().Entries != 0 {
		t.Errorf("entries = %d after clear", c.Stats().Entries)
	}
	if _, ok := c.Get("a"); ok {
		t.Error("cleared entry returned")
	}
}
