package usecase

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"solmate/internal/domain"
	"solmate/internal/infra/config"
)

// stubGenerator counts calls so tests can assert fast-fail paths never reach
// the backend.
type stubGenerator struct {
	name  string
	resp  *domain.CompletionResponse
	err   error
	calls int
	last  domain.GenerateRequest
}

func (s *stubGenerator) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.CompletionResponse, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func (s *stubGenerator) Name() string { return s.name }

type stubStreamingGenerator struct {
	stubGenerator
	deltas    []domain.StreamDelta
	streamErr error
}

func (s *stubStreamingGenerator) GenerateStream(ctx context.Context, req domain.GenerateRequest) (<-chan domain.StreamDelta, error) {
	s.calls++
	s.last = req
	if s.streamErr != nil {
		return nil, s.streamErr
	}
	ch := make(chan domain.StreamDelta, len(s.deltas))
	for _, d := range s.deltas {
		ch <- d
	}
	close(ch)
	return ch, nil
}

type stubRegistry struct {
	generators map[string]domain.Generator
	profiles   map[string]domain.ProviderProfile
	order      []string
}

func newStubRegistry() *stubRegistry {
	return &stubRegistry{
		generators: map[string]domain.Generator{},
		profiles:   map[string]domain.ProviderProfile{},
	}
}

func (r *stubRegistry) add(gen domain.Generator, profile domain.ProviderProfile) {
	r.generators[gen.Name()] = gen
	r.profiles[gen.Name()] = profile
	r.order = append(r.order, gen.Name())
}

func (r *stubRegistry) Get(name string) (domain.Generator, error) {
	g, ok := r.generators[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrUnsupportedProvider, name)
	}
	return g, nil
}

func (r *stubRegistry) Profile(name string) (domain.ProviderProfile, error) {
	p, ok := r.profiles[name]
	if !ok {
		return domain.ProviderProfile{}, domain.NewDomainError("Registry.Profile", domain.ErrUnsupportedProvider, name)
	}
	return p, nil
}

func (r *stubRegistry) Profiles() []domain.ProviderProfile {
	out := make([]domain.ProviderProfile, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.profiles[name])
	}
	return out
}

type stubStore struct {
	data    map[string]*domain.CompletionResponse
	enabled bool
	sets    int
}

func newStubStore(enabled bool) *stubStore {
	return &stubStore{data: map[string]*domain.CompletionResponse{}, enabled: enabled}
}

func (s *stubStore) Get(key string) (*domain.CompletionResponse, bool) {
	r, ok := s.data[key]
	return r, ok
}

func (s *stubStore) Set(key string, resp *domain.CompletionResponse) {
	s.sets++
	s.data[key] = resp
}

func (s *stubStore) Enabled() bool { return s.enabled }

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		DefaultProvider: "openai",
		Defaults: config.GenerationDefaults{
			Temperature: 0.7,
			MaxTokens:   1000,
			TopP:        1,
		},
	}
}

func openaiProfile(hasKey bool) domain.ProviderProfile {
	return domain.ProviderProfile{
		ID:              "openai",
		DisplayName:     "OpenAI",
		DefaultModel:    "gpt-4",
		AvailableModels: []string{"gpt-3.5-turbo", "gpt-4"},
		RequiresKey:     true,
		HasKey:          hasKey,
	}
}

func userPrompt(content string) []domain.Message {
	return []domain.Message{{Role: domain.RoleUser, Content: content}}
}

func TestDispatcherGenerateAppliesDefaults(t *testing.T) {
	gen := &stubGenerator{
		name: "openai",
		resp: &domain.CompletionResponse{Provider: "openai", Model: "gpt-4", Content: "hi"},
	}
	reg := newStubRegistry()
	reg.add(gen, openaiProfile(true))

	d := NewDispatcher(reg, newStubStore(false), NewMetrics(), testLLMConfig(), slog.Default())

	resp, cached, err := d.Generate(context.Background(), userPrompt("hello"), domain.GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if cached {
		t.Error("cached = true with cache disabled")
	}
	if resp.Content != "hi" {
		t.Errorf("content = %q", resp.Content)
	}

	if gen.last.Model != "gpt-4" {
		t.Errorf("model = %q, want profile default", gen.last.Model)
	}
	if gen.last.Temperature != 0.7 || gen.last.MaxTokens != 1000 || gen.last.TopP != 1 {
		t.Errorf("defaults not applied: %+v", gen.last)
	}
}

func TestDispatcherUnsupportedProviderFailsFast(t *testing.T) {
	gen := &stubGenerator{name: "openai", resp: &domain.CompletionResponse{}}
	reg := newStubRegistry()
	reg.add(gen, openaiProfile(true))

	m := NewMetrics()
	d := NewDispatcher(reg, newStubStore(false), m, testLLMConfig(), slog.Default())

	_, _, err := d.Generate(context.Background(), userPrompt("hello"), domain.GenerateOptions{Provider: "gemini"})
	if !errors.Is(err, domain.ErrUnsupportedProvider) {
		t.Errorf("error = %v", err)
	}
	if gen.calls != 0 {
		t.Error("backend must not be called for unknown providers")
	}
	if s := m.Snapshot(); s.Errors != 1 || s.TotalCalls != 1 {
		t.Errorf("metrics = %+v", s)
	}
}

func TestDispatcherMissingCredentialFailsFast(t *testing.T) {
	gen := &stubGenerator{name: "openai", resp: &domain.CompletionResponse{}}
	reg := newStubRegistry()
	reg.add(gen, openaiProfile(false))

	d := NewDispatcher(reg, newStubStore(false), NewMetrics(), testLLMConfig(), slog.Default())

	_, _, err := d.Generate(context.Background(), userPrompt("hello"), domain.GenerateOptions{})
	if !errors.Is(err, domain.ErrMissingCredential) {
		t.Errorf("error = %v", err)
	}
	if gen.calls != 0 {
		t.Error("backend must not be called without a credential")
	}

	// A per-request key satisfies the credential check.
	_, _, err = d.Generate(context.Background(), userPrompt("hello"), domain.GenerateOptions{APIKey: "sk-caller"})
	if err != nil {
		t.Fatalf("Generate with caller key: %v", err)
	}
	if gen.last.APIKey != "sk-caller" {
		t.Errorf("api key not forwarded: %q", gen.last.APIKey)
	}
}

func TestDispatcherKeyOptionalProviderNeedsNoKey(t *testing.T) {
	gen := &stubGenerator{name: "llama", resp: &domain.CompletionResponse{Provider: "llama", Content: "ok"}}
	reg := newStubRegistry()
	reg.add(gen, domain.ProviderProfile{ID: "llama", DefaultModel: "llama-3-70b-chat", RequiresKey: false})

	d := NewDispatcher(reg, newStubStore(false), NewMetrics(), testLLMConfig(), slog.Default())

	_, _, err := d.Generate(context.Background(), userPrompt("hello"), domain.GenerateOptions{Provider: "llama"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
}

func TestDispatcherCachesSingleUserMessage(t *testing.T) {
	gen := &stubGenerator{
		name: "openai",
		resp: &domain.CompletionResponse{Provider: "openai", Model: "gpt-4", Content: "answer"},
	}
	reg := newStubRegistry()
	reg.add(gen, openaiProfile(true))

	store := newStubStore(true)
	m := NewMetrics()
	d := NewDispatcher(reg, store, m, testLLMConfig(), slog.Default())

	_, cached, err := d.Generate(context.Background(), userPrompt("What is SOL?"), domain.GenerateOptions{})
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if cached {
		t.Error("first call must be a miss")
	}

	resp, cached, err := d.Generate(context.Background(), userPrompt("what is sol?  "), domain.GenerateOptions{})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !cached {
		t.Error("normalized prompt must hit the cache")
	}
	if resp.Content != "answer" {
		t.Errorf("content = %q", resp.Content)
	}
	if gen.calls != 1 {
		t.Errorf("backend calls = %d, want 1", gen.calls)
	}

	s := m.Snapshot()
	if s.CacheHits != 1 || s.CacheMisses != 1 || s.TotalCalls != 2 {
		t.Errorf("metrics = %+v", s)
	}
}

func TestDispatcherSkipsCacheForConversations(t *testing.T) {
	gen := &stubGenerator{
		name: "openai",
		resp: &domain.CompletionResponse{Provider: "openai", Content: "ok"},
	}
	reg := newStubRegistry()
	reg.add(gen, openaiProfile(true))

	store := newStubStore(true)
	d := NewDispatcher(reg, store, NewMetrics(), testLLMConfig(), slog.Default())

	multi := []domain.Message{
		{Role: domain.RoleSystem, Content: "persona"},
		{Role: domain.RoleUser, Content: "hello"},
	}
	if _, _, err := d.Generate(context.Background(), multi, domain.GenerateOptions{}); err != nil {
		t.Fatal(err)
	}
	if store.sets != 0 {
		t.Error("multi-message prompts must not be cached")
	}

	// DisableCache opts out even for single user messages.
	if _, _, err := d.Generate(context.Background(), userPrompt("hello"), domain.GenerateOptions{DisableCache: true}); err != nil {
		t.Fatal(err)
	}
	if store.sets != 0 {
		t.Error("disableCache must bypass the cache")
	}
}

func TestDispatcherUpstreamErrorCounted(t *testing.T) {
	gen := &stubGenerator{name: "openai", err: domain.ErrUpstream}
	reg := newStubRegistry()
	reg.add(gen, openaiProfile(true))

	m := NewMetrics()
	d := NewDispatcher(reg, newStubStore(false), m, testLLMConfig(), slog.Default())

	_, _, err := d.Generate(context.Background(), userPrompt("hello"), domain.GenerateOptions{})
	if !errors.Is(err, domain.ErrUpstream) {
		t.Errorf("error = %v", err)
	}
	if s := m.Snapshot(); s.Errors != 1 {
		t.Errorf("errors = %d", s.Errors)
	}
}

func TestDispatcherProvidersFiltersByKey(t *testing.T) {
	reg := newStubRegistry()
	reg.add(&stubGenerator{name: "openai"}, openaiProfile(true))
	reg.add(&stubGenerator{name: "anthropic"}, domain.ProviderProfile{ID: "anthropic", RequiresKey: true, HasKey: false})
	reg.add(&stubGenerator{name: "llama"}, domain.ProviderProfile{ID: "llama", RequiresKey: false})

	d := NewDispatcher(reg, newStubStore(false), NewMetrics(), testLLMConfig(), slog.Default())

	got := d.Providers()
	if len(got) != 2 {
		t.Fatalf("providers = %d, want openai and llama", len(got))
	}
	if got[0].ID != "openai" || got[1].ID != "llama" {
		t.Errorf("providers = %v, %v", got[0].ID, got[1].ID)
	}
}

func TestDispatcherModels(t *testing.T) {
	reg := newStubRegistry()
	reg.add(&stubGenerator{name: "openai"}, openaiProfile(true))

	d := NewDispatcher(reg, newStubStore(false), NewMetrics(), testLLMConfig(), slog.Default())

	if got := d.Models("openai"); len(got) != 2 {
		t.Errorf("models = %v", got)
	}
	if got := d.Models("nope"); len(got) != 0 {
		t.Errorf("unknown provider models = %v, want empty", got)
	}
}
