package usecase

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"solmate/internal/adapter/cache"
	"solmate/internal/domain"
	"solmate/internal/infra/config"
)

// ProviderRegistry resolves backend adapters and their profiles by name.
type ProviderRegistry interface {
	Get(name string) (domain.Generator, error)
	Profile(name string) (domain.ProviderProfile, error)
	Profiles() []domain.ProviderProfile
}

// ResponseStore is the cache surface the dispatcher needs.
type ResponseStore interface {
	Get(key string) (*domain.CompletionResponse, bool)
	Set(key string, resp *domain.CompletionResponse)
	Enabled() bool
}

// resolver maps generation options to a concrete backend, profile, and
// request. Shared by the dispatcher and the streaming relay so both fail
// fast, before any network I/O, on unknown providers and missing
// credentials.
type resolver struct {
	registry        ProviderRegistry
	defaults        config.GenerationDefaults
	defaultProvider string
}

func (rv resolver) resolve(op string, messages []domain.Message, opts domain.GenerateOptions, stream bool) (domain.Generator, domain.ProviderProfile, domain.GenerateRequest, error) {
	name := opts.Provider
	if name == "" {
		name = rv.defaultProvider
	}

	gen, err := rv.registry.Get(name)
	if err != nil {
		return nil, domain.ProviderProfile{}, domain.GenerateRequest{}, err
	}
	profile, err := rv.registry.Profile(name)
	if err != nil {
		return nil, domain.ProviderProfile{}, domain.GenerateRequest{}, err
	}

	if profile.RequiresKey && !profile.HasKey && opts.APIKey == "" {
		return nil, domain.ProviderProfile{}, domain.GenerateRequest{},
			domain.NewDomainError(op, domain.ErrMissingCredential, name)
	}

	req := domain.GenerateRequest{
		Model:       opts.Model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		TopP:        opts.TopP,
		APIKey:      opts.APIKey,
		Stream:      stream,
	}
	if req.Model == "" {
		req.Model = profile.DefaultModel
	}
	if req.Temperature == 0 {
		req.Temperature = rv.defaults.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = rv.defaults.MaxTokens
	}
	if req.TopP == 0 {
		req.TopP = rv.defaults.TopP
	}

	return gen, profile, req, nil
}

// Dispatcher routes non-streaming generation requests: it resolves the
// provider and credentials, consults the cache, applies generation defaults,
// and records metrics exactly once per call.
type Dispatcher struct {
	resolver
	cache   ResponseStore
	metrics *Metrics
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher. A rate limit config with RPS <= 0
// disables request limiting.
func NewDispatcher(registry ProviderRegistry, store ResponseStore, metrics *Metrics, cfg config.LLMConfig, logger *slog.Logger) *Dispatcher {
	var limiter *rate.Limiter
	if cfg.RateLimit.RPS > 0 {
		burst := cfg.RateLimit.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), burst)
	}

	return &Dispatcher{
		resolver: resolver{
			registry:        registry,
			defaults:        cfg.Defaults,
			defaultProvider: cfg.DefaultProvider,
		},
		cache:   store,
		metrics: metrics,
		limiter: limiter,
		logger:  logger,
	}
}

// Generate produces a completion for the given prompt. The second return
// value reports whether the response came from cache.
func (d *Dispatcher) Generate(ctx context.Context, messages []domain.Message, opts domain.GenerateOptions) (*domain.CompletionResponse, bool, error) {
	d.metrics.RecordCall()
	start := time.Now()

	gen, profile, req, err := d.resolve("Dispatcher.Generate", messages, opts, false)
	if err != nil {
		d.metrics.RecordError()
		return nil, false, err
	}

	cacheable := d.cacheable(messages, opts)
	var key string
	if cacheable {
		effective := opts
		effective.Temperature = req.Temperature
		effective.MaxTokens = req.MaxTokens
		effective.TopP = req.TopP
		key = cache.Key(profile.ID, req.Model, messages[0].Content, effective)

		if cached, ok := d.cache.Get(key); ok {
			d.logger.Debug("cache hit", "provider", profile.ID, "model", req.Model)
			d.metrics.RecordCacheHit()
			d.metrics.ObserveLatency(time.Since(start))
			return cached, true, nil
		}
		d.logger.Debug("cache miss", "provider", profile.ID, "model", req.Model)
		d.metrics.RecordCacheMiss()
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			d.metrics.RecordError()
			return nil, false, domain.WrapOp("Dispatcher.Generate", err)
		}
	}

	d.logger.Info("generating response", "provider", profile.ID, "model", req.Model)

	resp, err := gen.Generate(ctx, req)
	if err != nil {
		d.metrics.RecordError()
		return nil, false, err
	}

	if cacheable {
		d.cache.Set(key, resp)
	}

	d.metrics.ObserveLatency(time.Since(start))
	return resp, false, nil
}

// Providers returns the profiles of backends usable right now: those with a
// configured key, plus those that do not need one.
func (d *Dispatcher) Providers() []domain.ProviderProfile {
	all := d.registry.Profiles()
	out := make([]domain.ProviderProfile, 0, len(all))
	for _, p := range all {
		if p.HasKey || !p.RequiresKey {
			out = append(out, p)
		}
	}
	return out
}

// Models returns the model catalogue for a provider, or an empty list for
// unknown providers.
func (d *Dispatcher) Models(provider string) []string {
	profile, err := d.registry.Profile(provider)
	if err != nil {
		return []string{}
	}
	models := make([]string, len(profile.AvailableModels))
	copy(models, profile.AvailableModels)
	return models
}

// cacheable reports whether this request may be served from or stored to the
// cache: caching is restricted to bare single-turn user prompts so
// multi-message conversations never leak between users.
func (d *Dispatcher) cacheable(messages []domain.Message, opts domain.GenerateOptions) bool {
	return d.cache.Enabled() &&
		!opts.DisableCache &&
		len(messages) == 1 &&
		messages[0].Role == domain.RoleUser
}
