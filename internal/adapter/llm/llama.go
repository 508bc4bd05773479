package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"solmate/internal/domain"
	"solmate/internal/infra/config"
)

// Compile-time interface assertion. Llama backends deliver responses whole;
// the relay chunks them downstream.
var _ domain.Generator = (*LlamaProvider)(nil)

// Default Llama timeouts: short connect (usually a local or LAN inference
// server), long response (model loading, slow generation).
const (
	llamaDefaultConnTimeout = 5 * time.Second
	llamaDefaultRespTimeout = 300 * time.Second
)

// LlamaProvider wraps OpenAIProvider to work with self-hosted Llama
// inference servers exposing an OpenAI-compatible endpoint. An API key is
// optional; when absent no Authorization header is sent.
type LlamaProvider struct {
	inner *OpenAIProvider
}

// NewLlamaProvider creates a Llama provider that delegates to OpenAIProvider
// with local-server timeout defaults.
func NewLlamaProvider(cfg config.ProviderConfig, logger *slog.Logger) *LlamaProvider {
	llamaCfg := cfg
	if llamaCfg.ConnTimeout == 0 {
		llamaCfg.ConnTimeout = llamaDefaultConnTimeout
	}
	if llamaCfg.RespTimeout == 0 {
		llamaCfg.RespTimeout = llamaDefaultRespTimeout
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:8000/v1"
	}

	return &LlamaProvider{
		inner: &OpenAIProvider{
			name:    cfg.Name,
			model:   cfg.Model,
			apiKey:  cfg.APIKey,
			baseURL: baseURL,
			client:  NewHTTPClient(llamaCfg),
			logger:  logger,
		},
	}
}

// Generate implements domain.Generator.
func (p *LlamaProvider) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.CompletionResponse, error) {
	return p.inner.Generate(ctx, req)
}

// Name implements domain.Generator.
func (p *LlamaProvider) Name() string { return p.inner.Name() }
