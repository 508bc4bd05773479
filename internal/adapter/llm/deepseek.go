package llm

import (
	"context"
	"log/slog"
	"strings"

	"solmate/internal/domain"
	"solmate/internal/infra/config"
)

// Compile-time interface assertion. DeepSeek is deliberately not a
// StreamingGenerator: its responses are delivered whole and chunked
// downstream by the relay.
var _ domain.Generator = (*DeepSeekProvider)(nil)

// DeepSeekProvider wraps OpenAIProvider to work with the DeepSeek API,
// which is OpenAI-compatible for chat completions.
type DeepSeekProvider struct {
	inner *OpenAIProvider
}

// NewDeepSeekProvider creates a DeepSeek provider that delegates to
// OpenAIProvider with the DeepSeek endpoint as default.
func NewDeepSeekProvider(cfg config.ProviderConfig, logger *slog.Logger) *DeepSeekProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.deepseek.com/v1"
	}

	return &DeepSeekProvider{
		inner: &OpenAIProvider{
			name:    cfg.Name,
			model:   cfg.Model,
			apiKey:  cfg.APIKey,
			baseURL: baseURL,
			client:  NewHTTPClient(cfg),
			logger:  logger,
		},
	}
}

// Generate implements domain.Generator.
func (p *DeepSeekProvider) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.CompletionResponse, error) {
	return p.inner.Generate(ctx, req)
}

// Name implements domain.Generator.
func (p *DeepSeekProvider) Name() string { return p.inner.Name() }
