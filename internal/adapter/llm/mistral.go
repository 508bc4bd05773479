package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"solmate/internal/domain"
	"solmate/internal/infra/config"
	"solmate/internal/infra/tracer"
)

// Compile-time interface assertions.
var (
	_ domain.Generator          = (*MistralProvider)(nil)
	_ domain.StreamingGenerator = (*MistralProvider)(nil)
)

// MistralProvider implements domain.Generator for the Mistral chat
// completions API.
type MistralProvider struct {
	name    string
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewMistralProvider creates a provider for the Mistral API.
func NewMistralProvider(cfg config.ProviderConfig, logger *slog.Logger) *MistralProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.mistral.ai/v1"
	}

	return &MistralProvider{
		name:    cfg.Name,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  NewHTTPClient(cfg),
		logger:  logger,
	}
}

// Generate implements domain.Generator.
func (p *MistralProvider) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.CompletionResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.generate",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
		),
	)
	defer span.End()

	if req.Model == "" {
		req.Model = p.model
	}

	body, err := json.Marshal(toMistralRequest(req))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := doJSONRequest(ctx, p.client, p.baseURL+"/chat/completions", body, p.headers(req))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var mResp mistralResponse
	if err := json.Unmarshal(respBody, &mResp); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("%w: unmarshal response: %v", domain.ErrUpstream, err)
	}

	result := fromMistralResponse(p.name, req.Model, mResp, respBody)
	tracer.SetOK(span)
	logGenerateCompleted(p.logger, p.name, result)

	return result, nil
}

// GenerateStream implements domain.StreamingGenerator.
func (p *MistralProvider) GenerateStream(ctx context.Context, req domain.GenerateRequest) (<-chan domain.StreamDelta, error) {
	if req.Model == "" {
		req.Model = p.model
	}
	req.Stream = true

	body, err := json.Marshal(toMistralRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpResp, err := doStreamRequest(ctx, p.client, p.baseURL+"/chat/completions", body, p.headers(req))
	if err != nil {
		return nil, err
	}

	ch := parseSSEStream(ctx, httpResp.Body, func(data []byte) (*domain.StreamDelta, error) {
		var chunk mistralStreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return nil, err
		}

		delta := &domain.StreamDelta{}
		if len(chunk.Choices) > 0 {
			c := chunk.Choices[0]
			delta.Content = c.Delta.Content
			if c.FinishReason != nil && *c.FinishReason != "" {
				delta.Done = true
			}
		}
		return delta, nil
	})

	return ch, nil
}

// Name implements domain.Generator.
func (p *MistralProvider) Name() string { return p.name }

func (p *MistralProvider) headers(req domain.GenerateRequest) map[string]string {
	key := p.apiKey
	if req.APIKey != "" {
		key = req.APIKey
	}

	headers := map[string]string{}
	if key != "" {
		headers["Authorization"] = "Bearer " + key
	}
	return headers
}

// --- Mistral API wire types ---

type mistralRequest struct {
	Model       string           `json:"model"`
	Messages    []mistralMessage `json:"messages"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	TopP        *float64         `json:"top_p,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
}

type mistralMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type mistralResponse struct {
	ID      string          `json:"id"`
	Model   string          `json:"model"`
	Choices []mistralChoice `json:"choices"`
	Created int64           `json:"created"`
}

type mistralChoice struct {
	Index        int            `json:"index"`
	Message      mistralMessage `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

type mistralStreamChunk struct {
	ID      string                `json:"id"`
	Choices []mistralStreamChoice `json:"choices"`
}

type mistralStreamChoice struct {
	Delta        mistralMessage `json:"delta"`
	FinishReason *string        `json:"finish_reason"`
}

func toMistralRequest(req domain.GenerateRequest) mistralRequest {
	msgs := make([]mistralMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, mistralMessage{Role: m.Role, Content: m.Content})
	}

	mReq := mistralRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   req.Stream,
	}

	if req.MaxTokens > 0 {
		mReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		mReq.Temperature = &req.Temperature
	}
	if req.TopP > 0 {
		mReq.TopP = &req.TopP
	}

	return mReq
}

func fromMistralResponse(provider, reqModel string, resp mistralResponse, raw []byte) *domain.CompletionResponse {
	result := &domain.CompletionResponse{
		Provider:  provider,
		Model:     resp.Model,
		Raw:       raw,
		CreatedAt: time.Now().UTC(),
	}
	if result.Model == "" {
		result.Model = reqModel
	}
	if resp.Created > 0 {
		result.CreatedAt = time.Unix(resp.Created, 0).UTC()
	}
	if len(resp.Choices) > 0 {
		result.Content = resp.Choices[0].Message.Content
	}
	return result
}
